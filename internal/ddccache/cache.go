// Package ddccache implements the detection-state cache (design
// section4.11): a JSON snapshot of the catalog's identity that lets repeated
// tool invocations seed a new run without re-probing hardware that hasn't
// changed. The restored catalog only ever seeds identity — every ref must
// still pass the x37 short-circuit check (design section4.10 step 2) and the
// initial-checks engine before its cached flags are trusted.
package ddccache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcedid"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

// CurrentVersion is the only schema version this build writes. Reading an
// unknown version must fail gracefully and fall through to full detection
// rather than error out (design section6).
const CurrentVersion = 1

// Doc is the top-level cache document.
type Doc struct {
	Version     int            `json:"version"`
	AllDisplays []DisplayEntry `json:"all_displays"`
	AllBuses    []BusEntry     `json:"all_buses"`
}

type DisplayEntry struct {
	IOPathKind string `json:"io_path_kind"`
	BusNumber  uint16 `json:"bus_number,omitempty"`

	USBBus         uint16 `json:"usb_bus,omitempty"`
	USBDevice      uint16 `json:"usb_device,omitempty"`
	USBHiddevName  string `json:"usb_hiddev_name,omitempty"`

	VCPVersionProbed          ddcconfig.VersionSpec `json:"vcp_version_probed"`
	VCPVersionCmdlineOverride ddcconfig.VersionSpec `json:"vcp_version_cmdline_override"`

	Flags uint32 `json:"flags"`

	CapabilitiesString string `json:"capabilities_string,omitempty"`

	EDIDHex   string `json:"parsed_edid_hex,omitempty"` // 256-char uppercase hex
	EDIDSource string `json:"parsed_edid_source,omitempty"`

	MfgID       string `json:"mfg_id,omitempty"`
	ModelName   string `json:"model_name,omitempty"`
	ProductCode uint16 `json:"product_code,omitempty"`

	DisplayNumber int `json:"display_number"`

	ActualDisplayPath string `json:"actual_display_path,omitempty"`

	DriverName string `json:"driver_name,omitempty"`
}

type BusEntry struct {
	BusNumber     int    `json:"busno"`
	Functionality uint32 `json:"functionality"`
	EDIDHex       string `json:"edid_hex,omitempty"`
	Flags         uint16 `json:"flags"`
	Driver        string `json:"driver,omitempty"`
	DRMConnector  string `json:"drm_connector_name,omitempty"`
	DRMFoundBy    string `json:"drm_connector_found_by,omitempty"`
}

// Build snapshots a catalog and bus list into a cache document.
func Build(refs []*ddcref.Ref, buses []*ddcbus.Bus) Doc {
	doc := Doc{Version: CurrentVersion}

	for _, r := range refs {
		entry := DisplayEntry{
			IOPathKind:                r.IOPath.Kind.String(),
			BusNumber:                 r.IOPath.BusNumber,
			USBBus:                    r.IOPath.USBBus,
			USBDevice:                 r.IOPath.USBDevice,
			USBHiddevName:             r.USBHiddevName,
			VCPVersionProbed:          r.VCPVersionProbed(),
			VCPVersionCmdlineOverride: r.VCPVersionCmdlineOverride(),
			Flags:                     uint32(r.Flags()),
			CapabilitiesString:        r.CapabilitiesString(),
			DisplayNumber:             r.DisplayNumber(),
			DriverName:                r.DriverName(),
		}

		if e := r.EDID(); e != nil {
			b := e.Bytes()
			entry.EDIDHex = strings.ToUpper(hex.EncodeToString(b[:]))
			entry.EDIDSource = "sysfs-or-i2c-0x50"
			entry.MfgID = e.MfgID()
			entry.ModelName = e.ModelName()
			entry.ProductCode = e.ProductCode()
		}

		if actual := r.ActualDisplay(); actual != nil {
			entry.ActualDisplayPath = actual.IOPath.String()
		}

		doc.AllDisplays = append(doc.AllDisplays, entry)
	}

	for _, b := range buses {
		entry := BusEntry{
			BusNumber:     b.Number,
			Functionality: b.Functionality,
			Flags:         uint16(b.Flags),
			Driver:        b.Driver,
			DRMConnector:  b.DRMConnectorName,
			DRMFoundBy:    string(b.DRMConnectorFoundBy),
		}
		if b.HasFlag(ddcbus.SysfsEDIDPresent) || b.HasFlag(ddcbus.X50EDIDRead) {
			entry.EDIDHex = strings.ToUpper(hex.EncodeToString(b.EDID[:]))
		}
		doc.AllBuses = append(doc.AllBuses, entry)
	}

	return doc
}

// Serialize marshals doc as indented JSON.
func Serialize(doc Doc) (string, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Deserialize parses a cache document. An unknown version is reported as an
// error so callers can fall through to full detection rather than trust
// stale/foreign data.
func Deserialize(data string) (Doc, error) {
	var doc Doc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return Doc{}, fmt.Errorf("ddccache: parse: %w", err)
	}
	if doc.Version != CurrentVersion {
		return Doc{}, fmt.Errorf("ddccache: unsupported cache schema version %d", doc.Version)
	}
	return doc, nil
}

// Store writes doc to path on fs.
func Store(fs afero.Fs, path string, doc Doc) error {
	data, err := Serialize(doc)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, []byte(data), 0o644); err != nil {
		return err
	}
	log.Debugf("ddccache: wrote %d displays, %d buses to %s", len(doc.AllDisplays), len(doc.AllBuses), path)
	return nil
}

// Restore reads and parses the cache file at path. A missing file or
// parse failure is reported to the caller, who is expected to fall through
// to full detection rather than treat it as fatal.
func Restore(fs afero.Fs, path string) (Doc, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Doc{}, err
	}
	return Deserialize(string(data))
}

// ToRef rebuilds a seed Ref from a cache entry, clearing its
// CommunicationErrorSummary. Only identity is trusted; the caller must
// still run the initial-checks engine before trusting any flag here (design
// scenario 6).
func ToRef(entry DisplayEntry) *ddcref.Ref {
	var path iopath.Path
	switch entry.IOPathKind {
	case iopath.KindI2C.String():
		path = iopath.I2C(entry.BusNumber)
	case iopath.KindUSB.String():
		path = iopath.USB(entry.USBBus, entry.USBDevice, 0)
	default:
		return nil
	}

	ref := ddcref.New(path)
	ref.USBHiddevName = entry.USBHiddevName
	ref.SetVCPVersionProbed(entry.VCPVersionProbed)
	ref.SetVCPVersionCmdlineOverride(entry.VCPVersionCmdlineOverride)
	ref.SetDisplayNumber(entry.DisplayNumber)
	ref.SetCapabilitiesString(entry.CapabilitiesString)
	ref.SetDriverName(entry.DriverName)
	ref.SetFlags(ddcref.Flag(entry.Flags))
	ref.ClearCommunicationErrorSummary()

	if entry.EDIDHex != "" {
		raw, err := hex.DecodeString(entry.EDIDHex)
		if err == nil && len(raw) == 128 {
			var arr [128]byte
			copy(arr[:], raw)
			if parsed, err := ddcedid.Parse(arr); err == nil {
				ref.SetEDID(parsed)
			}
		}
	}

	return ref
}

// ToBus rebuilds a seed Bus descriptor from a cache entry.
func ToBus(entry BusEntry) *ddcbus.Bus {
	b := &ddcbus.Bus{
		Number:              entry.BusNumber,
		Functionality:       entry.Functionality,
		Flags:               ddcbus.Flag(entry.Flags),
		Driver:              entry.Driver,
		DRMConnectorName:    entry.DRMConnector,
		DRMConnectorFoundBy: ddcbus.ConnectorFoundBy(entry.DRMFoundBy),
	}
	if entry.EDIDHex != "" {
		raw, err := hex.DecodeString(entry.EDIDHex)
		if err == nil && len(raw) == 128 {
			copy(b.EDID[:], raw)
		}
	}
	return b
}
