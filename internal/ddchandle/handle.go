// Package ddchandle implements the Display-Handle: a Display-Ref bound to
// an open OS transport. A handle's lifetime is strictly shorter than the
// Ref it references; it is created only by Open and destroyed by Close,
// and is never shared across goroutines.
package ddchandle

import (
	"context"
	"fmt"

	"github.com/rockowitz/ddcutil-sub004/internal/ddclock"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/ddctransport"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

// OpenOptions controls how Open behaves.
type OpenOptions struct {
	// Wait, if true, blocks on the display lock instead of polling with a
	// bound.
	Wait bool

	// ForceSlaveAddress uses I2C_SLAVE_FORCE instead of I2C_SLAVE, the
	// ddcutil --force equivalent for a bus another driver already claims.
	ForceSlaveAddress bool
}

// Handle is a Display-Ref plus an open transport strategy. It also carries
// the "testing unsupported feature active" flag; the handle's VCP operations
// do not consult it.
type Handle struct {
	ref      *ddcref.Ref
	strategy ddctransport.Strategy
	locks    *ddclock.Table
	owner    ddclock.Owner

	testingUnsupportedActive bool
}

// Open acquires the display lock for ref's IO-Path and opens the matching
// OS transport, in that order, per design section4.4.
func Open(ref *ddcref.Ref, locks *ddclock.Table, owner ddclock.Owner, opts OpenOptions) (*Handle, error) {
	if ref.HasFlag(ddcref.Removed) {
		return nil, &ddcerrs.DisconnectedError{IOPath: ref.IOPath.String()}
	}

	if _, err := locks.Lock(ref.IOPath, owner, opts.Wait); err != nil {
		return nil, err
	}

	strategy, err := openTransport(ref.IOPath, opts.ForceSlaveAddress)
	if err != nil {
		_ = locks.Unlock(ref.IOPath, owner)
		var ioErr *ddcerrs.IOError
		if isEBUSY(err, &ioErr) {
			ref.SetFlags(ddcref.DDCBusy)
			return nil, &ddcerrs.BusyError{IOPath: ref.IOPath.String(), Errno: ioErr.Err}
		}
		return nil, err
	}

	ref.ClearFlags(ddcref.DDCBusy)
	ref.SetFlags(ddcref.Open)

	log.Debugf("opened %s", ref.ShortName())
	return &Handle{ref: ref, strategy: strategy, locks: locks, owner: owner}, nil
}

func openTransport(path iopath.Path, force bool) (ddctransport.Strategy, error) {
	switch path.Kind {
	case iopath.KindI2C:
		return ddctransport.OpenI2C(int(path.BusNumber), force)
	case iopath.KindUSB:
		return ddctransport.OpenUSB(fmt.Sprintf("/dev/usb/hiddev%d", path.USBHiddevNumber))
	default:
		return nil, &ddcerrs.ArgumentError{Message: "invalid io-path kind"}
	}
}

func isEBUSY(err error, target **ddcerrs.IOError) bool {
	ioErr, ok := err.(*ddcerrs.IOError)
	if !ok {
		return false
	}
	*target = ioErr
	return ddcerrs.IsEBUSY(ioErr.Err)
}

// Close closes the OS transport and releases the display lock. It is not
// idempotent: a second call fails to release the already released lock, so callers must pair every Open with
// exactly one Close on every exit path, using defer.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	err := h.strategy.Close()
	h.ref.ClearFlags(ddcref.Open)
	if unlockErr := h.locks.Unlock(h.ref.IOPath, h.owner); unlockErr != nil && err == nil {
		err = unlockErr
	}
	log.Debugf("closed %s", h.ref.ShortName())
	return err
}

func (h *Handle) Ref() *ddcref.Ref { return h.ref }

// SetTestingUnsupportedActive records the "testing unsupported feature
// active" flag. It only stores the value: GetVCPNontable and the other
// operations read the transport regardless of it.
func (h *Handle) SetTestingUnsupportedActive(v bool) { h.testingUnsupportedActive = v }
func (h *Handle) TestingUnsupportedActive() bool     { return h.testingUnsupportedActive }

// dpmsGuard returns an error if the ref is known to be DPMS-asleep; VCP
// writes are accepted by many monitors in this state but have no visible
// effect, so callers are warned rather than silently succeeding.
func (h *Handle) dpmsGuard() error {
	if h.ref.HasFlag(ddcref.DpmsAsleep) {
		return &ddcerrs.DpmsAsleepError{IOPath: h.ref.IOPath.String()}
	}
	return nil
}

func (h *Handle) GetVCPNontable(ctx context.Context, code byte) (ddctransport.NonTableReply, error) {
	return h.strategy.GetVCPNontable(ctx, code)
}

func (h *Handle) SetVCPNontable(ctx context.Context, code byte, value uint16) error {
	if err := h.dpmsGuard(); err != nil {
		log.Warnf("setvcp on %s while DPMS asleep: command may have no effect", h.ref.ShortName())
	}
	return h.strategy.SetVCPNontable(ctx, code, value)
}

func (h *Handle) GetCapabilitiesFragment(ctx context.Context, offset uint16) ([]byte, error) {
	return h.strategy.GetCapabilitiesFragment(ctx, offset)
}

func (h *Handle) SaveCurrentSettings(ctx context.Context) error {
	return h.strategy.SaveCurrentSettings(ctx)
}

// GetCapabilitiesString drives GetCapabilitiesFragment in a loop until an
// empty fragment signals end of string, per design section4.5.
func (h *Handle) GetCapabilitiesString(ctx context.Context) (string, error) {
	var out []byte
	var offset uint16
	for {
		fragment, err := h.GetCapabilitiesFragment(ctx, offset)
		if err != nil {
			return "", err
		}
		if len(fragment) == 0 {
			break
		}
		out = append(out, fragment...)
		offset += uint16(len(fragment))
	}
	s := string(out)
	h.ref.SetCapabilitiesString(s)
	return s, nil
}
