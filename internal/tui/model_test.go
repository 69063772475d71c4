package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcdetect"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	svc := ddcdetect.New(ddcconfig.Default(), afero.NewMemMapFs())
	working := ddcref.New(iopath.I2C(1))
	working.SetDisplayNumber(1)
	working.SetFlags(ddcref.DDCCommsWorking)
	svc.Reg.Add(working)

	invalid := ddcref.New(iopath.I2C(2))
	invalid.SetDisplayNumber(ddcref.DisplayNumberInvalid)
	svc.Reg.Add(invalid)

	return New(svc, ddcbus.RealProber{})
}

func TestRefreshCatalogSkipsNonPositiveDisplayNumbers(t *testing.T) {
	m := newTestModel(t)
	msg := m.refreshCatalog()
	items, ok := msg.(catalogMsg)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "Display 1 (ddc ok)", items[0].(displayItem).Title())
}

func TestUpdateCatalogMsgPopulatesList(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(catalogMsg([]list.Item{displayItem{ref: ddcref.New(iopath.I2C(1))}}))
	mm := updated.(Model)
	assert.Equal(t, 1, len(mm.list.Items()))
}

func TestBrightnessMsgTransitionsStateOnSuccess(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(brightnessMsg{current: 40, max: 100})
	mm := updated.(Model)
	assert.Equal(t, stateBrightness, mm.state)
	assert.Equal(t, uint16(40), mm.current)
}

func TestBrightnessMsgTransitionsToErrorOnFailure(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(brightnessMsg{err: assertErr{}})
	mm := updated.(Model)
	assert.Equal(t, stateError, mm.state)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestUpdateKeyQuitsFromCatalog(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.updateKey(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	msg := cmd()
	_, isQuit := msg.(tea.QuitMsg)
	assert.True(t, isQuit)
}
