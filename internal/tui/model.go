// Package tui implements the interactive monitor view (design section4.15):
// a bubbletea program that lists the detected catalog and lets the user
// adjust brightness on a selected display, grounded in the installer
// wizard's list-then-act view pattern and style set. It owns no detection
// logic of its own — purely a view over ddcdetect.Service's published
// catalog and ddchandle's get/set nontable calls.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddchandle"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcdetect"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
)

const brightnessVCPCode = 0x10
const brightnessStep = 2

// displayItem adapts a *ddcref.Ref to bubbles/list's Item interface.
type displayItem struct{ ref *ddcref.Ref }

func (i displayItem) Title() string {
	working := "not responding"
	if i.ref.HasFlag(ddcref.DDCCommsWorking) {
		working = "ddc ok"
	}
	return fmt.Sprintf("Display %d (%s)", i.ref.DisplayNumber(), working)
}

func (i displayItem) Description() string { return i.ref.IOPath.String() }
func (i displayItem) FilterValue() string { return i.Title() }

// Model is the root bubbletea model for `ddcutil monitor`.
type Model struct {
	svc    *ddcdetect.Service
	prober ddcbus.Prober
	styles styles

	state state
	list  list.Model

	selected *ddcref.Ref
	handle   *ddchandle.Handle
	current  uint16
	max      uint16

	err error
}

// New constructs the monitor view around an already-constructed Service;
// detection is assumed to have already run once (the CLI command does this
// before launching the program, the same ordering `detect` uses).
func New(svc *ddcdetect.Service, prober ddcbus.Prober) Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Displays"
	return Model{svc: svc, prober: prober, styles: defaultStyles(), state: stateCatalog, list: l}
}

func (m Model) Init() tea.Cmd { return m.refreshCatalog }

type catalogMsg []list.Item
type brightnessMsg struct {
	handle       *ddchandle.Handle
	current, max uint16
	err          error
}
type errMsg struct{ err error }

func (m Model) refreshCatalog() tea.Msg {
	items := make([]list.Item, 0, m.svc.Reg.Len())
	for _, r := range m.svc.Reg.All() {
		if r.DisplayNumber() <= 0 {
			continue
		}
		items = append(items, displayItem{ref: r})
	}
	return catalogMsg(items)
}

func (m Model) openBrightness(ref *ddcref.Ref) tea.Cmd {
	return func() tea.Msg {
		handle, err := m.svc.Open(ref, false)
		if err != nil {
			return brightnessMsg{err: err}
		}
		reply, err := handle.GetVCPNontable(context.Background(), brightnessVCPCode)
		if err != nil {
			handle.Close()
			return brightnessMsg{err: err}
		}
		return brightnessMsg{handle: handle, current: reply.CurValue, max: reply.MaxValue}
	}
}

func (m Model) setBrightness(value uint16) tea.Cmd {
	handle, max := m.handle, m.max
	return func() tea.Msg {
		if err := handle.SetVCPNontable(context.Background(), brightnessVCPCode, value); err != nil {
			return brightnessMsg{handle: handle, err: err}
		}
		return brightnessMsg{handle: handle, current: value, max: max}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case catalogMsg:
		m.list.SetItems(msg)
		return m, nil

	case brightnessMsg:
		m.handle = msg.handle
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.current, m.max = msg.current, msg.max
		m.state = stateBrightness
		return m, nil

	case errMsg:
		m.err = msg.err
		m.state = stateError
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case stateCatalog:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(displayItem); ok {
				m.selected = item.ref
				return m, m.openBrightness(item.ref)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd

	case stateBrightness:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.handle != nil {
				m.handle.Close()
				m.handle = nil
			}
			m.state = stateCatalog
			return m, m.refreshCatalog
		case "left":
			v := m.current
			if v >= brightnessStep {
				v -= brightnessStep
			} else {
				v = 0
			}
			return m, m.setBrightness(v)
		case "right":
			v := m.current + brightnessStep
			if v > m.max {
				v = m.max
			}
			return m, m.setBrightness(v)
		}
		return m, nil

	case stateError:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		m.state = stateCatalog
		return m, m.refreshCatalog
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateBrightness:
		return m.viewBrightness()
	case stateError:
		return m.viewError()
	default:
		return m.viewCatalog()
	}
}

func (m Model) viewCatalog() string {
	return m.list.View() + "\n" + m.styles.Subtle.Render("enter: adjust brightness  q: quit")
}

func (m Model) viewBrightness() string {
	title := m.styles.Title.Render(fmt.Sprintf("Brightness — %s", m.selected.ShortName()))
	bar := fmt.Sprintf("%d / %d", m.current, m.max)
	help := m.styles.Subtle.Render("left/right: adjust  esc: back  q: quit")
	return title + "\n\n" + m.styles.Success.Render(bar) + "\n\n" + help
}

func (m Model) viewError() string {
	msg := m.styles.Warning.Render(fmt.Sprintf("error: %v", m.err))
	return msg + "\n\n" + m.styles.Subtle.Render("press any key to return  q: quit")
}
