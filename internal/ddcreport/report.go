// Package ddcreport implements the report/debug views (design section4.12):
// structured textual dumps, keyed by indentation depth, whose output is
// stable across runs for a given input. Display-Refs, buses and the catalog
// each get a DebugReport-style function here rather than an ad hoc
// String()/fmt.Stringer, so verbose output and `environment` diagnostics
// share one formatting convention.
package ddcreport

import (
	"fmt"
	"strings"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcedid"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
)

func indent(depth int) string { return strings.Repeat("   ", depth) }

// Ref renders one Display-Ref at the given indentation depth.
func Ref(r *ddcref.Ref, depth int) string {
	var b strings.Builder
	pad := indent(depth)

	fmt.Fprintf(&b, "%sDisplay %d\n", pad, r.DisplayNumber())
	fmt.Fprintf(&b, "%s   IO path:        %s\n", pad, r.IOPath.String())

	if mmid := r.MMID(); mmid != (ddcedid.MMID{}) {
		fmt.Fprintf(&b, "%s   Mfg/model/code: %s / %s / 0x%04x\n", pad, mmid.MfgID, mmid.ModelName, mmid.ProductCode)
	}

	fmt.Fprintf(&b, "%s   MCCS version:   %s\n", pad, versionString(r))
	fmt.Fprintf(&b, "%s   Flags:          %s\n", pad, flagsString(r.Flags()))

	if s := r.DriverName(); s != "" {
		fmt.Fprintf(&b, "%s   Driver:         %s\n", pad, s)
	}
	if s := r.DRMConnector(); s != "" {
		fmt.Fprintf(&b, "%s   DRM connector:  %s\n", pad, s)
	}
	if actual := r.ActualDisplay(); actual != nil {
		fmt.Fprintf(&b, "%s   Phantom of:     %s\n", pad, actual.IOPath.String())
	}
	if s := r.CommunicationErrorSummary(); s != "" {
		fmt.Fprintf(&b, "%s   Comm errors:    %s\n", pad, s)
	}

	return b.String()
}

func versionString(r *ddcref.Ref) string {
	v := r.EffectiveVCPVersion()
	if !v.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func flagsString(f ddcref.Flag) string {
	names := []struct {
		bit  ddcref.Flag
		name string
	}{
		{ddcref.DDCCommsChecked, "DDC_COMMS_CHECKED"},
		{ddcref.DDCCommsWorking, "DDC_COMMS_WORKING"},
		{ddcref.IsMonitorChecked, "IS_MONITOR_CHECKED"},
		{ddcref.IsMonitor, "IS_MONITOR"},
		{ddcref.UnsupportedChecked, "UNSUPPORTED_CHECKED"},
		{ddcref.UsesNullResponseForUnsupported, "USES_NULL_RESPONSE_FOR_UNSUPPORTED"},
		{ddcref.UsesMhMlShSlZeroForUnsupported, "USES_MH_ML_SH_SL_ZERO_FOR_UNSUPPORTED"},
		{ddcref.UsesDDCFlagForUnsupported, "USES_DDC_FLAG_FOR_UNSUPPORTED"},
		{ddcref.DoesNotIndicateUnsupported, "DOES_NOT_INDICATE_UNSUPPORTED"},
		{ddcref.Transient, "TRANSIENT"},
		{ddcref.Open, "OPEN"},
		{ddcref.DDCBusy, "DDC_BUSY"},
		{ddcref.Removed, "REMOVED"},
		{ddcref.DpmsAsleep, "DPMS_ASLEEP"},
	}

	var set []string
	for _, n := range names {
		if f.Has(n.bit) {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "(none)"
	}
	return strings.Join(set, "|")
}

// Bus renders one discovered I2C adapter at the given depth.
func Bus(b *ddcbus.Bus, depth int) string {
	var out strings.Builder
	pad := indent(depth)

	fmt.Fprintf(&out, "%sBus /dev/i2c-%d\n", pad, b.Number)
	fmt.Fprintf(&out, "%s   Driver:         %s\n", pad, b.Driver)
	fmt.Fprintf(&out, "%s   Flags:          %s\n", pad, busFlagsString(b.Flags))
	if b.DRMConnectorName != "" {
		fmt.Fprintf(&out, "%s   DRM connector:  %s (%s)\n", pad, b.DRMConnectorName, b.DRMConnectorFoundBy)
	}
	if b.OpenErrno != nil {
		fmt.Fprintf(&out, "%s   Open error:     %v\n", pad, b.OpenErrno)
	}

	return out.String()
}

func busFlagsString(f ddcbus.Flag) string {
	names := []struct {
		bit  ddcbus.Flag
		name string
	}{
		{ddcbus.Exists, "EXISTS"},
		{ddcbus.Accessible, "ACCESSIBLE"},
		{ddcbus.AddrX37Responded, "ADDR_X37_RESPONDED"},
		{ddcbus.SysfsEDIDPresent, "SYSFS_EDID_PRESENT"},
		{ddcbus.X50EDIDRead, "X50_EDID_READ"},
		{ddcbus.LVDSOrEDP, "LVDS_OR_EDP"},
		{ddcbus.DDCDisabled, "DDC_DISABLED"},
		{ddcbus.InitialCheckDone, "INITIAL_CHECK_DONE"},
	}
	var set []string
	for _, n := range names {
		if f.Has(n.bit) {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "(none)"
	}
	return strings.Join(set, "|")
}

// Catalog renders every ref in refs, in order, at depth 0.
func Catalog(refs []*ddcref.Ref) string {
	var b strings.Builder
	for _, r := range refs {
		b.WriteString(Ref(r, 0))
		b.WriteString("\n")
	}
	return b.String()
}
