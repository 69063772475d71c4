package ddcdetect

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

type fakeProber struct {
	responds map[int]bool
}

func (p fakeProber) ProbeX37(bus int) (bool, error) { return p.responds[bus], nil }
func (fakeProber) ReadEDIDAt50(bus int) ([128]byte, error) { return [128]byte{}, nil }

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestEnsureDetectedIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/dev/i2c-0", "")

	svc := New(ddcconfig.Default(), fs)
	require.NoError(t, svc.EnsureDetected(context.Background(), fakeProber{}))
	firstBuses := svc.Buses()

	require.NoError(t, svc.EnsureDetected(context.Background(), fakeProber{}))
	assert.Equal(t, firstBuses, svc.Buses())
}

func TestEnsureDetectedSkipsDDCDisabledBusWithoutOpening(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/dev/i2c-0", "")
	writeFile(t, fs, "/sys/bus/i2c/devices/i2c-0/ddc_disabled", "1")

	svc := New(ddcconfig.Default(), fs)
	require.NoError(t, svc.EnsureDetected(context.Background(), fakeProber{}))

	ref, err := svc.ResolveIdentifier(iopath.FromI2CBusNumber(0))
	require.NoError(t, err)
	assert.Equal(t, ddcref.DisplayNumberDDCDisabled, ref.DisplayNumber())
}

func TestEnsureDetectedMarksUnreachableBusInvalid(t *testing.T) {
	// No real /dev/i2c-N transport exists in this environment, so every
	// materialized ref fails DDC_COMMS_WORKING and must end up with the
	// negative "invalid" sentinel rather than a positive display number.
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/dev/i2c-0", "")
	edid := make([]byte, 128)
	edid[0], edid[1] = 0x00, 0xff
	writeFile(t, fs, "/sys/bus/i2c/devices/i2c-0/edid", string(edid))

	svc := New(ddcconfig.Default(), fs)
	require.NoError(t, svc.EnsureDetected(context.Background(), fakeProber{responds: map[int]bool{0: true}}))

	all := svc.Reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, ddcref.DisplayNumberInvalid, all[0].DisplayNumber())
}

func TestMaterializeRefsBindsConnectorByBusno(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/sys/class/drm/card0-VGA-1/ddc_busno", "3")

	svc := New(ddcconfig.Default(), fs)
	bus := &ddcbus.Bus{Number: 3, Flags: ddcbus.Exists | ddcbus.Accessible | ddcbus.AddrX37Responded | ddcbus.X50EDIDRead}
	refs := svc.materializeRefs([]*ddcbus.Bus{bus})

	require.Len(t, refs, 1)
	assert.Equal(t, "card0-VGA-1", refs[0].DRMConnector())
	assert.Equal(t, "card0-VGA-1", bus.DRMConnectorName)
	assert.Equal(t, ddcbus.ByBusno, bus.DRMConnectorFoundBy)
}

func TestAssignDisplayNumbersSkipsSentinelsAndInvalidates(t *testing.T) {
	working := ddcref.New(iopath.I2C(1))
	working.SetFlags(ddcref.DDCCommsWorking)

	notWorking := ddcref.New(iopath.I2C(2))

	busy := ddcref.New(iopath.I2C(3))
	busy.SetDisplayNumber(ddcref.DisplayNumberBusy)

	refs := []*ddcref.Ref{working, notWorking, busy}
	assignDisplayNumbers(refs)

	assert.Equal(t, 1, working.DisplayNumber())
	assert.Equal(t, ddcref.DisplayNumberInvalid, notWorking.DisplayNumber())
	assert.Equal(t, ddcref.DisplayNumberBusy, busy.DisplayNumber())
}

func TestDpmsHintSeedsAsleepFlagOnDetection(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/dev/i2c-0", "")

	svc := New(ddcconfig.Default(), fs)
	svc.DpmsHint = func() bool { return true }
	require.NoError(t, svc.EnsureDetected(context.Background(), fakeProber{responds: map[int]bool{0: true}}))

	all := svc.Reg.All()
	require.Len(t, all, 1)
	assert.True(t, all[0].HasFlag(ddcref.DpmsAsleep))
}

func TestResolveIdentifierByDisplayNumberAndEDID(t *testing.T) {
	svc := New(ddcconfig.Default(), afero.NewMemMapFs())

	r1 := ddcref.New(iopath.I2C(1))
	r1.SetDisplayNumber(1)
	svc.Reg.Add(r1)

	r2 := ddcref.New(iopath.USB(1, 2, 0))
	r2.SetDisplayNumber(2)
	svc.Reg.Add(r2)

	got, err := svc.ResolveIdentifier(iopath.FromDisplayNumber(1))
	require.NoError(t, err)
	assert.Same(t, r1, got)

	got, err = svc.ResolveIdentifier(iopath.FromUSBBusDevice(1, 2))
	require.NoError(t, err)
	assert.Same(t, r2, got)

	_, err = svc.ResolveIdentifier(iopath.FromDisplayNumber(99))
	assert.Error(t, err)
}
