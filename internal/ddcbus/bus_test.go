package ddcbus

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	responds map[int]bool
	edid     map[int][128]byte
}

func (f *fakeProber) ProbeX37(bus int) (bool, error) {
	return f.responds[bus], nil
}

func (f *fakeProber) ReadEDIDAt50(bus int) ([128]byte, error) {
	return f.edid[bus], nil
}

func newMemFS(t *testing.T) afero.Fs {
	t.Helper()
	return afero.NewMemMapFs()
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestScanSkipsNonexistentDevices(t *testing.T) {
	fs := newMemFS(t)
	writeFile(t, fs, "/dev/i2c-2", "")

	buses, err := Scan(fs, &fakeProber{}, NewX37Table(), 4)
	require.NoError(t, err)
	require.Len(t, buses, 1)
	assert.Equal(t, 2, buses[0].Number)
}

func TestScanMarksDDCDisabledAndSkipsProbing(t *testing.T) {
	fs := newMemFS(t)
	writeFile(t, fs, "/dev/i2c-0", "")
	writeFile(t, fs, "/sys/bus/i2c/devices/i2c-0/ddc_disabled", "1")

	prober := &fakeProber{responds: map[int]bool{0: true}}
	buses, err := Scan(fs, prober, NewX37Table(), 1)
	require.NoError(t, err)
	require.Len(t, buses, 1)

	b := buses[0]
	assert.True(t, b.HasFlag(DDCDisabled))
	assert.False(t, b.HasFlag(Accessible))
	assert.False(t, b.HasFlag(AddrX37Responded))
}

func TestScanDetectsLVDS(t *testing.T) {
	fs := newMemFS(t)
	writeFile(t, fs, "/dev/i2c-1", "")
	writeFile(t, fs, "/sys/bus/i2c/devices/i2c-1/name", "Intel LVDS i2c adapter")

	buses, err := Scan(fs, &fakeProber{}, NewX37Table(), 2)
	require.NoError(t, err)
	require.Len(t, buses, 1)
	assert.True(t, buses[0].HasFlag(LVDSOrEDP))
}

func TestScanPrefersSysfsEDIDOverX50Read(t *testing.T) {
	fs := newMemFS(t)
	writeFile(t, fs, "/dev/i2c-3", "")
	sysfsEDID := make([]byte, 128)
	sysfsEDID[0] = 0x00
	sysfsEDID[1] = 0xff
	require.NoError(t, afero.WriteFile(fs, "/sys/bus/i2c/devices/i2c-3/edid", sysfsEDID, 0o644))

	var fromX50 [128]byte
	fromX50[0] = 0xAA
	prober := &fakeProber{
		responds: map[int]bool{3: true},
		edid:     map[int][128]byte{3: fromX50},
	}

	buses, err := Scan(fs, prober, NewX37Table(), 4)
	require.NoError(t, err)
	require.Len(t, buses, 1)

	b := buses[0]
	assert.True(t, b.HasFlag(SysfsEDIDPresent))
	assert.True(t, b.HasFlag(AddrX37Responded))
	assert.False(t, b.HasFlag(X50EDIDRead))
	assert.Equal(t, byte(0xff), b.EDID[1])
}

func TestX37TableShortCircuitsRepeatedProbes(t *testing.T) {
	table := NewX37Table()
	var edid [128]byte
	edid[0] = 0x42

	assert.Equal(t, NotRecorded, table.Lookup(3, edid))
	table.Record(3, edid, Detected)
	assert.Equal(t, Detected, table.Lookup(3, edid))
}

func TestBusNumberFromDevicePath(t *testing.T) {
	n, ok := BusNumberFromDevicePath("/dev/i2c-7")
	require.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = BusNumberFromDevicePath("/dev/usb/hiddev0")
	assert.False(t, ok)
}
