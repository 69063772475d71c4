// Package ddcbus implements the bus enumerator (design section4.6): scanning
// /dev/i2c-0 through /dev/i2c-N for candidate adapters and classifying each
// one with flags the rest of detection consumes. Sysfs reads go through an
// injectable afero.Fs so the whole enumerator is testable without a real
// adapter tree.
package ddcbus

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

// Flag classifies a bus discovered during enumeration.
type Flag uint16

const (
	Exists Flag = 1 << iota
	Accessible
	AddrX37Responded
	SysfsEDIDPresent
	X50EDIDRead
	LVDSOrEDP
	DDCDisabled
	InitialCheckDone
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// ConnectorFoundBy records how (or whether) a bus was matched to a DRM
// connector name.
type ConnectorFoundBy string

const (
	NotChecked ConnectorFoundBy = "NotChecked"
	NotFound   ConnectorFoundBy = "NotFound"
	ByBusno    ConnectorFoundBy = "ByBusno"
	ByEdid     ConnectorFoundBy = "ByEdid"
)

// Bus is one discovered I2C adapter and its sysfs context.
type Bus struct {
	Number int

	Flags         Flag
	Functionality uint32
	Driver        string

	DRMConnectorName    string
	DRMConnectorFoundBy ConnectorFoundBy

	OpenErrno error

	// EDID, if SysfsEDIDPresent or X50EDIDRead is set, holds the 128-byte
	// block read for this bus.
	EDID [128]byte
}

func (b *Bus) HasFlag(bit Flag) bool { return b.Flags.Has(bit) }

// Prober is the real-transport collaborator the enumerator uses to test
// address 0x37 responsiveness and fall back to an address-0x50 EDID read.
// Production code backs this with direct syscalls (prober_linux.go); tests
// substitute a scripted fake.
type Prober interface {
	ProbeX37(bus int) (bool, error)
	ReadEDIDAt50(bus int) ([128]byte, error)
}

const maxBusNumber = 256

// DefaultMaxBusNumber is the cap design section4.6 imposes on the scan range.
const DefaultMaxBusNumber = maxBusNumber

// x37Key keys the side table recording whether an (edid, busno) pair has
// already been confirmed to respond at 0x37, short-circuiting re-probing.
type x37Key struct {
	Busno int
	EDID  [128]byte
}

// X37State is the recorded outcome for an (edid, busno) pair.
type X37State int

const (
	NotRecorded X37State = iota
	Detected
	NotDetected
)

// X37Table is the side table design section4.6 names, keyed by (edid, busno).
type X37Table struct {
	mu sync.Mutex
	m  map[x37Key]X37State
}

func NewX37Table() *X37Table {
	return &X37Table{m: make(map[x37Key]X37State)}
}

func (t *X37Table) Lookup(bus int, edid [128]byte) X37State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[x37Key{Busno: bus, EDID: edid}]
}

func (t *X37Table) Record(bus int, edid [128]byte, state X37State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[x37Key{Busno: bus, EDID: edid}] = state
}

// Scan walks /dev/i2c-0..maxBus, building a Bus descriptor for each adapter
// that exists, probing 0x37 responsiveness (short-circuited by x37 when
// the pairing is already confirmed) and reading sysfs context.
func Scan(fs afero.Fs, prober Prober, x37 *X37Table, maxBus int) ([]*Bus, error) {
	if maxBus <= 0 || maxBus > maxBusNumber {
		maxBus = maxBusNumber
	}

	var buses []*Bus
	for n := 0; n < maxBus; n++ {
		devPath := fmt.Sprintf("/dev/i2c-%d", n)
		if _, err := fs.Stat(devPath); err != nil {
			continue
		}

		b := &Bus{Number: n, Flags: Exists, DRMConnectorFoundBy: NotChecked}
		b.Functionality, b.Driver = readSysfsAdapterInfo(fs, n)

		if isLVDSorEDP(fs, n) {
			b.Flags |= LVDSOrEDP
		}

		if isDDCDisabled(fs, n) {
			b.Flags |= DDCDisabled
			buses = append(buses, b)
			continue
		}

		b.Flags |= Accessible

		edidBytes, sysfsHasEDID := readSysfsEDID(fs, n)
		if sysfsHasEDID {
			b.Flags |= SysfsEDIDPresent
			b.EDID = edidBytes
		}

		responded, edid := probeAddrX37(n, sysfsHasEDID, edidBytes, prober, x37)
		if responded {
			b.Flags |= AddrX37Responded
			if !sysfsHasEDID {
				b.Flags |= X50EDIDRead
				b.EDID = edid
			}
		}

		buses = append(buses, b)
	}

	log.Debugf("ddcbus: scanned %d candidate adapters", len(buses))
	return buses, nil
}

// probeAddrX37 decides whether to trust the x37 side table or actually
// probe the bus, per design section4.6's short-circuit.
func probeAddrX37(bus int, sysfsHasEDID bool, sysfsEDID [128]byte, prober Prober, table *X37Table) (bool, [128]byte) {
	if sysfsHasEDID {
		if state := table.Lookup(bus, sysfsEDID); state != NotRecorded {
			return state == Detected, sysfsEDID
		}
	}

	if prober == nil {
		return false, [128]byte{}
	}

	ok, err := prober.ProbeX37(bus)
	if err != nil {
		log.Debugf("ddcbus: probe x37 on bus %d: %v", bus, err)
		return false, [128]byte{}
	}
	if !ok {
		if sysfsHasEDID {
			table.Record(bus, sysfsEDID, NotDetected)
		}
		return false, [128]byte{}
	}

	var edid [128]byte
	if sysfsHasEDID {
		edid = sysfsEDID
		table.Record(bus, sysfsEDID, Detected)
		return true, edid
	}

	edid, err = prober.ReadEDIDAt50(bus)
	if err != nil {
		log.Debugf("ddcbus: read edid at 0x50 on bus %d: %v", bus, err)
		return true, [128]byte{}
	}
	table.Record(bus, edid, Detected)
	return true, edid
}

func readSysfsAdapterInfo(fs afero.Fs, bus int) (functionality uint32, driver string) {
	namePath := fmt.Sprintf("/sys/bus/i2c/devices/i2c-%d/name", bus)
	if data, err := afero.ReadFile(fs, namePath); err == nil {
		driver = strings.TrimSpace(string(data))
	}
	return 0, driver
}

func isLVDSorEDP(fs afero.Fs, bus int) bool {
	namePath := fmt.Sprintf("/sys/bus/i2c/devices/i2c-%d/name", bus)
	data, err := afero.ReadFile(fs, namePath)
	if err != nil {
		return false
	}
	name := strings.ToLower(strings.TrimSpace(string(data)))
	return strings.Contains(name, "lvds") || strings.Contains(name, "edp")
}

func isDDCDisabled(fs afero.Fs, bus int) bool {
	disabledPath := fmt.Sprintf("/sys/bus/i2c/devices/i2c-%d/ddc_disabled", bus)
	data, err := afero.ReadFile(fs, disabledPath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

func readSysfsEDID(fs afero.Fs, bus int) ([128]byte, bool) {
	connPath := fmt.Sprintf("/sys/bus/i2c/devices/i2c-%d/edid", bus)
	data, err := afero.ReadFile(fs, connPath)
	if err != nil || len(data) < 128 {
		return [128]byte{}, false
	}
	var out [128]byte
	copy(out[:], data[:128])
	return out, true
}

// BusNumberFromDevicePath parses "/dev/i2c-7" style paths back to a bus
// number, used by the report layer and the cache restorer.
func BusNumberFromDevicePath(path string) (int, bool) {
	const prefix = "/dev/i2c-"
	if !strings.HasPrefix(path, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(path, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
