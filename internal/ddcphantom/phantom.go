// Package ddcphantom implements the phantom-display filter (design
// section4.9): detecting a spurious second Display-Ref produced when one
// physical monitor is reachable through more than one connector (discrete
// GPU exposing both VGA and DVI on the same panel, or an MST splitter
// exposing parent and child connectors).
package ddcphantom

import (
	"github.com/spf13/afero"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcedid"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

const dpMSTDeviceName = "DPMST"

// identity is the comparison key design section4.9 uses deliberately instead
// of the full EDID, which can differ between inputs of the same panel.
type identity struct {
	MfgID       string
	ModelName   string
	ProductCode uint16
	SerialAscii string
	SerialBin   uint32
}

func identityOf(ref *ddcref.Ref) (identity, bool) {
	e := ref.EDID()
	if e == nil {
		return identity{}, false
	}
	return identity{
		MfgID:       e.MfgID(),
		ModelName:   e.ModelName(),
		ProductCode: e.ProductCode(),
		SerialAscii: e.SerialAscii(),
		SerialBin:   e.SerialBinary(),
	}, true
}

// Filter runs the phantom-display detection pass over refs, already
// flagged with a provisional display number by the caller. It marks phantom
// refs in place (display number set to the phantom sentinel and the actual
// display recorded; REMOVED is not touched) and returns nothing: the caller
// re-derives the contiguous positive numbering after this pass, per design
// section4.10 step 6.
func Filter(fs afero.Fs, refs []*ddcref.Ref, cfg ddcconfig.Config) {
	var valid, invalid []*ddcref.Ref
	for _, r := range refs {
		if r.DisplayNumber() > 0 {
			valid = append(valid, r)
		} else if r.DisplayNumber() < 0 {
			invalid = append(invalid, r)
		}
	}

	for _, iv := range invalid {
		for _, v := range valid {
			if !sameMonitor(iv, v, cfg) {
				continue
			}
			if invalidLooksDisconnected(fs, iv) {
				markPhantom(iv, v)
				break
			}
		}
	}

	applyMSTRule(fs, valid)
}

func sameMonitor(a, b *ddcref.Ref, cfg ddcconfig.Config) bool {
	if cfg.ComparePhantomByFullEDID {
		ea, eb := a.EDID(), b.EDID()
		if ea == nil || eb == nil {
			return false
		}
		return ea.Bytes() == eb.Bytes()
	}

	ia, ok1 := identityOf(a)
	ib, ok2 := identityOf(b)
	return ok1 && ok2 && ia == ib
}

func invalidLooksDisconnected(fs afero.Fs, ref *ddcref.Ref) bool {
	connector := ref.DRMConnector()
	if connector == "" {
		return false
	}
	status := ddcedid.ReadConnectorStatus(fs, connector)
	return status.Status == "disconnected" && status.Enabled == "disabled" && !status.HasEDID
}

func markPhantom(phantom, actual *ddcref.Ref) {
	phantom.SetDisplayNumber(ddcref.DisplayNumberPhantom)
	phantom.SetActualDisplay(actual)
	log.Debugf("phantom display %s duplicates %s", phantom.IOPath.String(), actual.IOPath.String())
}

// applyMSTRule implements design section4.9's MST special case: a valid ref
// whose connector is a DP-MST child, paired by EDID with a non-MST valid ref
// that is itself not a duplicate of any other non-MST ref, causes the
// non-MST ref to be retagged phantom pointing at the MST one.
func applyMSTRule(fs afero.Fs, valid []*ddcref.Ref) {
	var mstRefs, nonMSTRefs []*ddcref.Ref
	for _, r := range valid {
		status := ddcedid.ReadConnectorStatus(fs, r.DRMConnector())
		if status.DeviceName == dpMSTDeviceName {
			mstRefs = append(mstRefs, r)
		} else {
			nonMSTRefs = append(nonMSTRefs, r)
		}
	}

	for _, mst := range mstRefs {
		mstEDID := mst.EDID()
		if mstEDID == nil {
			continue
		}

		var matches []*ddcref.Ref
		for _, nm := range nonMSTRefs {
			e := nm.EDID()
			if e != nil && e.Bytes() == mstEDID.Bytes() {
				matches = append(matches, nm)
			}
		}
		if len(matches) != 1 {
			continue // zero or ambiguous matches: leave both alone
		}

		nonMST := matches[0]
		if isDuplicateOfAnotherNonMST(nonMST, nonMSTRefs) {
			continue
		}

		markPhantom(nonMST, mst)
	}
}

func isDuplicateOfAnotherNonMST(ref *ddcref.Ref, nonMSTRefs []*ddcref.Ref) bool {
	e := ref.EDID()
	if e == nil {
		return false
	}
	for _, other := range nonMSTRefs {
		if other == ref {
			continue
		}
		oe := other.EDID()
		if oe != nil && oe.Bytes() == e.Bytes() {
			return true
		}
	}
	return false
}
