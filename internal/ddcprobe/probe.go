// Package ddcprobe implements the initial-checks engine (design
// section4.8): probe a freshly opened display exactly once to determine
// whether DDC/CI communication works, which of the four "unsupported
// feature" indication styles the monitor uses, and its MCCS version —
// so every higher layer can trust cached flags instead of repeating this
// I/O on every call.
package ddcprobe

import (
	"context"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcsleep"
	"github.com/rockowitz/ddcutil-sub004/internal/ddctransport"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

const (
	featureLuminance    = 0x10 // exists on every MCCS monitor
	featureCRTOnly      = 0x41 // should not exist on any real monitor
	featureReserved1    = 0xdd
	featureReserved2    = 0x00
	featureVCPVersion   = 0xdf
)

// Prober is the capability the initial-checks engine needs from an open
// display: a nontable VCP get. *ddchandle.Handle satisfies this without
// ddcprobe needing to import ddchandle (which would create a cycle if
// ddchandle ever needed probe results directly).
type Prober interface {
	GetVCPNontable(ctx context.Context, code byte) (ddctransport.NonTableReply, error)
}

// Sleeper is the subset of *ddcsleep.Multiplier the engine needs to
// implement step 1's "disable adaptive sleep and retry once" rule.
type Sleeper interface {
	BelowOne() bool
	Disable() bool
}

// multiplierAdapter lets *ddcsleep.Multiplier (whose Disable returns
// nothing) satisfy Sleeper without changing its public signature elsewhere.
type multiplierAdapter struct{ m *ddcsleep.Multiplier }

func (a multiplierAdapter) BelowOne() bool { return a.m.BelowOne() }
func (a multiplierAdapter) Disable() bool  { a.m.Disable(); return true }

func AdaptSleeper(m *ddcsleep.Multiplier) Sleeper { return multiplierAdapter{m: m} }

// Run executes the initial-checks algorithm against ref, using prober for
// VCP I/O. It mutates ref's flags and cached MCCS version directly and
// never returns an error for a "comms not working" outcome — that is a
// valid terminal classification, not a failure of the check itself.
func Run(ctx context.Context, ref *ddcref.Ref, prober Prober, sleep Sleeper, cfg ddcconfig.Config) {
	if cfg.ForceBusTestMode {
		ref.SetFlags(ddcref.DDCCommsChecked | ddcref.DDCCommsWorking | ddcref.UnsupportedChecked | ddcref.UsesDDCFlagForUnsupported)
		log.Debugf("%s: force-bus test mode, short-circuiting classification", ref.ShortName())
		return
	}

	working, stop := connectivityProbe(ctx, ref, prober, sleep)
	if stop {
		return
	}

	if working {
		ref.SetFlags(ddcref.DDCCommsWorking)
	}
	ref.SetFlags(ddcref.DDCCommsChecked)

	if !working {
		ref.SetFlags(ddcref.UnsupportedChecked)
		return
	}

	if ref.IOPath.Kind != iopath.KindUSB {
		classifyUnsupportedIndication(ctx, ref, prober, cfg)
	} else {
		// USB HID monitor report responses already carry explicit
		// success/unsupported signalling; there is nothing to classify.
		ref.SetFlags(ddcref.UsesDDCFlagForUnsupported)
	}
	ref.SetFlags(ddcref.UnsupportedChecked)

	probeMCCSVersion(ctx, ref, prober, cfg)
}

// connectivityProbe is design section4.8 step 1. It returns whether comms
// are working and whether the caller should stop entirely (the EBUSY
// case, which leaves DDCCommsChecked unset per spec).
func connectivityProbe(ctx context.Context, ref *ddcref.Ref, prober Prober, sleep Sleeper) (working, stop bool) {
	_, err := prober.GetVCPNontable(ctx, featureLuminance)
	if err == nil {
		return true, false
	}

	var unsupported *ddcerrs.UnsupportedError
	if ok, _ := asUnsupported(err, &unsupported); ok {
		return true, false
	}

	var busy *ddcerrs.BusyError
	if ok, _ := asBusy(err, &busy); ok {
		ref.SetFlags(ddcref.DDCBusy)
		return false, true
	}

	var retries *ddcerrs.RetriesError
	if ok, _ := asRetries(err, &retries); ok && sleep != nil && sleep.BelowOne() {
		sleep.Disable()
		_, err2 := prober.GetVCPNontable(ctx, featureLuminance)
		if err2 == nil {
			return true, false
		}
		if ok2, _ := asUnsupported(err2, &unsupported); ok2 {
			return true, false
		}
		return false, false
	}

	return false, false
}

// classifyUnsupportedIndication is design section4.8 step 2.
//
// When cfg.NeverUseNullAsUnsupported is set (a testing hook per spec.md §6),
// a null/all-null reply is not trusted as this monitor's unsupported-feature
// signal: the classifier falls through to the next candidate code instead of
// stopping, and if every candidate comes back null it falls to the same
// Retries-exhausted guess the fallback branch below makes.
func classifyUnsupportedIndication(ctx context.Context, ref *ddcref.Ref, prober Prober, cfg ddcconfig.Config) {
	candidates := []byte{featureCRTOnly, featureReserved1, featureReserved2}

	var lastErr error
	var lastReply ddctransport.NonTableReply
	gotReply := false

	for _, code := range candidates {
		reply, err := prober.GetVCPNontable(ctx, code)
		if err == nil {
			lastReply = reply
			gotReply = true
			break
		}

		var unsupported *ddcerrs.UnsupportedError
		if ok, _ := asUnsupported(err, &unsupported); ok {
			ref.SetFlags(ddcref.UsesDDCFlagForUnsupported)
			return
		}

		var nullErr *ddcerrs.NullResponseError
		var allNullErr *ddcerrs.AllResponsesNullError
		if ok, _ := asNull(err, &nullErr); ok {
			if cfg.NeverUseNullAsUnsupported {
				lastErr = err
				continue
			}
			ref.SetFlags(ddcref.UsesNullResponseForUnsupported)
			return
		}
		if ok, _ := asAllNull(err, &allNullErr); ok {
			if cfg.NeverUseNullAsUnsupported {
				lastErr = err
				continue
			}
			ref.SetFlags(ddcref.UsesNullResponseForUnsupported)
			return
		}

		var ioErr *ddcerrs.IOError
		if ok, _ := asIOError(err, &ioErr); ok {
			if !ddcerrs.IsEIO(ioErr.Err) {
				log.Debugf("%s: ioerror during unsupported-indication probe of 0x%02x: %v", ref.ShortName(), code, ioErr)
			}
			lastErr = err
			continue
		}

		// *ddcerrs.RetriesError or anything else: try the next candidate.
		lastErr = err
	}

	if gotReply {
		if lastReply.AllZero() {
			ref.SetFlags(ddcref.UsesMhMlShSlZeroForUnsupported)
		} else {
			ref.SetFlags(ddcref.DoesNotIndicateUnsupported)
		}
		return
	}

	log.Errorf("%s: could not classify unsupported-feature indication after trying 0x%02x/0x%02x/0x%02x, guessing DDC flag: %v",
		ref.ShortName(), candidates[0], candidates[1], candidates[2], lastErr)
	ref.SetFlags(ddcref.UsesDDCFlagForUnsupported)
}

// probeMCCSVersion is design section4.8 step 3.
func probeMCCSVersion(ctx context.Context, ref *ddcref.Ref, prober Prober, cfg ddcconfig.Config) {
	if cfg.MCCSVersionOverride.Known() {
		ref.SetVCPVersionCmdlineOverride(cfg.MCCSVersionOverride)
		return
	}

	reply, err := prober.GetVCPNontable(ctx, featureVCPVersion)
	if err != nil {
		ref.SetVCPVersionProbed(ddcconfig.Unqueried)
		return
	}

	major := byte(reply.CurValue >> 8)
	minor := byte(reply.CurValue)
	ref.SetVCPVersionProbed(ddcconfig.VersionSpec{Major: major, Minor: minor})
}

func asUnsupported(err error, target **ddcerrs.UnsupportedError) (bool, error) {
	u, ok := err.(*ddcerrs.UnsupportedError)
	if ok {
		*target = u
	}
	return ok, err
}

func asBusy(err error, target **ddcerrs.BusyError) (bool, error) {
	b, ok := err.(*ddcerrs.BusyError)
	if ok {
		*target = b
	}
	return ok, err
}

func asRetries(err error, target **ddcerrs.RetriesError) (bool, error) {
	r, ok := err.(*ddcerrs.RetriesError)
	if ok {
		*target = r
	}
	return ok, err
}

func asNull(err error, target **ddcerrs.NullResponseError) (bool, error) {
	n, ok := err.(*ddcerrs.NullResponseError)
	if ok {
		*target = n
	}
	return ok, err
}

func asAllNull(err error, target **ddcerrs.AllResponsesNullError) (bool, error) {
	n, ok := err.(*ddcerrs.AllResponsesNullError)
	if ok {
		*target = n
	}
	return ok, err
}

func asIOError(err error, target **ddcerrs.IOError) (bool, error) {
	i, ok := err.(*ddcerrs.IOError)
	if ok {
		*target = i
	}
	return ok, err
}
