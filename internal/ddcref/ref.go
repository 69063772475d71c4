// Package ddcref implements the Display-Ref type and the catalog registry:
// the logical identity of one monitor, independent of whether it is
// currently open, plus the process-wide list of all known monitors.
//
// A 4-byte magic header exists in some C implementations only to catch
// use-after-free in a language without a garbage collector; Go's GC makes
// that class of bug unreachable for a plain *Ref, so no sentinel field is
// carried here.
package ddcref

import (
	"strconv"
	"sync"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcedid"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

// Flag is the closed bitset from the design
type Flag uint32

const (
	DDCCommsChecked Flag = 1 << iota
	DDCCommsWorking
	IsMonitorChecked
	IsMonitor
	UnsupportedChecked
	UsesNullResponseForUnsupported
	UsesMhMlShSlZeroForUnsupported
	UsesDDCFlagForUnsupported
	DoesNotIndicateUnsupported
	Transient
	Open
	DDCBusy
	Removed
	DpmsAsleep
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Reserved display-number sentinel values.
const (
	DisplayNumberNone        = 0
	DisplayNumberInvalid     = -1
	DisplayNumberPhantom     = -2
	DisplayNumberRemoved     = -3
	DisplayNumberBusy        = -4
	DisplayNumberDDCDisabled = -5
)

// Detail is the tagged union the source's `void*` detail pointer becomes:
// transport-specific bus/monitor context copied in at ref creation time by
// the bus enumerator (C6) / EDID collector (C7).
type Detail struct {
	Kind iopath.Kind
	I2C  I2CDetail
	USB  USBDetail
}

type I2CDetail struct {
	BusNumber         uint16
	Functionality     uint32
	Driver            string
	DRMConnector      string
	DRMConnectorFound string // "NotChecked" | "NotFound" | "ByBusno" | "ByEdid"
}

type USBDetail struct {
	Bus          uint16
	Device       uint16
	HiddevNumber uint16
	HiddevName   string
}

// Ref is the logical identity of one monitor.
type Ref struct {
	IOPath iopath.Path

	USBBus         uint16
	USBDevice      uint16
	USBHiddevName  string

	Detail Detail

	mu sync.RWMutex

	parsedEDID ddcedid.EDID
	mmid       ddcedid.MMID

	vcpVersionProbed          ddcconfig.VersionSpec
	vcpVersionCmdlineOverride ddcconfig.VersionSpec

	flags Flag

	displayNumber int

	capabilitiesString        string
	communicationErrorSummary string

	driverName   string
	drmConnector string

	// actualDisplay is a weak back-pointer to the real monitor this ref is
	// a phantom duplicate of. Go's GC means a plain pointer here can never
	// dangle the way the source's raw-pointer equivalent could; it is
	// still read-only from this ref's perspective (never owns).
	actualDisplay *Ref
}

// New constructs a Ref for the given IO-Path. EDID and mmid are set
// separately via SetEDID once the EDID collector has read the block.
func New(path iopath.Path) *Ref {
	return &Ref{
		IOPath:                    path,
		vcpVersionProbed:          ddcconfig.Unqueried,
		vcpVersionCmdlineOverride: ddcconfig.Unqueried,
		displayNumber:             DisplayNumberNone,
	}
}

func (r *Ref) SetEDID(e ddcedid.EDID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsedEDID = e
	if e != nil {
		r.mmid = ddcedid.MMID{MfgID: e.MfgID(), ModelName: e.ModelName(), ProductCode: e.ProductCode()}
		r.flags |= IsMonitor
	}
	r.flags |= IsMonitorChecked
}

func (r *Ref) EDID() ddcedid.EDID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parsedEDID
}

func (r *Ref) MMID() ddcedid.MMID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mmid
}

func (r *Ref) Flags() Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags
}

func (r *Ref) SetFlags(bits Flag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags |= bits
}

func (r *Ref) ClearFlags(bits Flag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags &^= bits
}

func (r *Ref) HasFlag(bit Flag) bool {
	return r.Flags().Has(bit)
}

func (r *Ref) DisplayNumber() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.displayNumber
}

func (r *Ref) SetDisplayNumber(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displayNumber = n
}

func (r *Ref) VCPVersionProbed() ddcconfig.VersionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vcpVersionProbed
}

func (r *Ref) SetVCPVersionProbed(v ddcconfig.VersionSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vcpVersionProbed = v
}

func (r *Ref) VCPVersionCmdlineOverride() ddcconfig.VersionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vcpVersionCmdlineOverride
}

func (r *Ref) SetVCPVersionCmdlineOverride(v ddcconfig.VersionSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vcpVersionCmdlineOverride = v
}

// EffectiveVCPVersion returns the command-line override if known, else the
// probed value.
func (r *Ref) EffectiveVCPVersion() ddcconfig.VersionSpec {
	if v := r.VCPVersionCmdlineOverride(); v.Known() {
		return v
	}
	return r.VCPVersionProbed()
}

func (r *Ref) CapabilitiesString() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capabilitiesString
}

func (r *Ref) SetCapabilitiesString(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilitiesString = s
}

func (r *Ref) CommunicationErrorSummary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.communicationErrorSummary
}

func (r *Ref) SetCommunicationErrorSummary(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.communicationErrorSummary = s
}

func (r *Ref) ClearCommunicationErrorSummary() {
	r.SetCommunicationErrorSummary("")
}

func (r *Ref) DriverName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.driverName
}

func (r *Ref) SetDriverName(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.driverName = s
}

func (r *Ref) DRMConnector() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.drmConnector
}

func (r *Ref) SetDRMConnector(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drmConnector = s
}

func (r *Ref) ActualDisplay() *Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actualDisplay
}

func (r *Ref) SetActualDisplay(actual *Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actualDisplay = actual
}

// ShortName is the stable human-readable identity used in logs and error
// context annotation.
func (r *Ref) ShortName() string {
	n := r.DisplayNumber()
	if n > 0 {
		return "display " + strconv.Itoa(n) + " (" + r.IOPath.String() + ")"
	}
	return r.IOPath.String()
}
