package ddccache

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcedid"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

func sampleEDID() [128]byte {
	var raw [128]byte
	copy(raw[0:8], []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00})
	raw[8], raw[9] = 0x04, 0x6d
	var sum byte
	for i := 0; i < 127; i++ {
		sum += raw[i]
	}
	raw[127] = byte((256 - int(sum)%256) % 256)
	return raw
}

func TestBuildSerializeDeserializeRoundTrip(t *testing.T) {
	raw := sampleEDID()
	parsed, err := ddcedid.Parse(raw)
	require.NoError(t, err)

	ref := ddcref.New(iopath.I2C(4))
	ref.SetDisplayNumber(1)
	ref.SetFlags(ddcref.DDCCommsChecked | ddcref.DDCCommsWorking)
	ref.SetVCPVersionProbed(ddcconfig.VersionSpec{Major: 2, Minor: 1})
	ref.SetEDID(parsed)
	ref.SetCapabilitiesString("(prot(monitor)type(lcd))")

	bus := &ddcbus.Bus{Number: 4, Flags: ddcbus.Exists | ddcbus.Accessible, Driver: "i915 gmbus"}

	doc := Build([]*ddcref.Ref{ref}, []*ddcbus.Bus{bus})
	require.Len(t, doc.AllDisplays, 1)
	require.Len(t, doc.AllBuses, 1)

	text, err := Serialize(doc)
	require.NoError(t, err)

	restored, err := Deserialize(text)
	require.NoError(t, err)
	assert.Equal(t, doc.AllDisplays[0].DisplayNumber, restored.AllDisplays[0].DisplayNumber)
	assert.Equal(t, doc.AllDisplays[0].EDIDHex, restored.AllDisplays[0].EDIDHex)

	seed := ToRef(restored.AllDisplays[0])
	require.NotNil(t, seed)
	assert.Equal(t, ref.IOPath, seed.IOPath)
	assert.Equal(t, ref.VCPVersionProbed(), seed.VCPVersionProbed())
	assert.Equal(t, "", seed.CommunicationErrorSummary())
	require.NotNil(t, seed.EDID())
	assert.Equal(t, parsed.Bytes(), seed.EDID().Bytes())

	seedBus := ToBus(restored.AllBuses[0])
	assert.Equal(t, bus.Number, seedBus.Number)
	assert.Equal(t, bus.Driver, seedBus.Driver)
}

func TestDeserializeRejectsUnknownVersion(t *testing.T) {
	_, err := Deserialize(`{"version":99,"all_displays":[],"all_buses":[]}`)
	assert.Error(t, err)
}

func TestStoreAndRestoreThroughFS(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := Doc{Version: CurrentVersion, AllDisplays: []DisplayEntry{{IOPathKind: "i2c", BusNumber: 2, DisplayNumber: 1}}}

	require.NoError(t, Store(fs, "/home/user/.cache/ddcutil/detect.json", doc))

	restored, err := Restore(fs, "/home/user/.cache/ddcutil/detect.json")
	require.NoError(t, err)
	assert.Equal(t, doc.AllDisplays[0].BusNumber, restored.AllDisplays[0].BusNumber)
}

func TestRestoreMissingFileFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Restore(fs, "/nonexistent")
	assert.Error(t, err)
}
