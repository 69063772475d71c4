// Package ddcerrs is the error taxonomy used across the display-control
// stack. Every variant is a concrete type implementing error and carrying
// structured fields, so callers can branch on type via errors.As instead of
// string-matching.
package ddcerrs

import (
	"errors"
	"fmt"
	"syscall"
)

// ArgumentError covers an invalid display identifier, a nil input where one
// is required, or an identifier variant that cannot be satisfied.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string { return "argument error: " + e.Message }

// NotFoundError: no display in the catalog matches the identifier.
type NotFoundError struct {
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("display not found: %s", e.Identifier)
}

// DisconnectedError: the ref is REMOVED or sysfs reports the connector gone.
type DisconnectedError struct {
	IOPath string
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("display disconnected: %s", e.IOPath)
}

// DpmsAsleepError: the monitor is DPMS-off; writes may be accepted but have
// no visible effect.
type DpmsAsleepError struct {
	IOPath string
}

func (e *DpmsAsleepError) Error() string {
	return fmt.Sprintf("display asleep (DPMS): %s", e.IOPath)
}

// BusyError: EBUSY opening the transport, usually another driver (ddcci)
// holding the bus.
type BusyError struct {
	IOPath string
	Errno  error
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("bus busy: %s: %v", e.IOPath, e.Errno)
}

func (e *BusyError) Unwrap() error { return e.Errno }

// LockedError: another thread in this process holds the display lock.
type LockedError struct {
	IOPath       string
	OwnerThread  string
	AttemptCount int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("display %s locked by thread %s after %d attempts", e.IOPath, e.OwnerThread, e.AttemptCount)
}

// AlreadyOpenError: the current thread is re-acquiring its own lock.
type AlreadyOpenError struct {
	IOPath string
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("display %s already open by this thread", e.IOPath)
}

// UnsupportedKind distinguishes the two ways a feature can be unsupported.
type UnsupportedKind uint8

const (
	ReportedUnsupported UnsupportedKind = iota
	DeterminedUnsupported
)

// UnsupportedError: a VCP feature is not supported by the monitor.
type UnsupportedError struct {
	Feature byte
	Kind    UnsupportedKind
}

func (e *UnsupportedError) Error() string {
	kind := "reported"
	if e.Kind == DeterminedUnsupported {
		kind = "determined"
	}
	return fmt.Sprintf("vcp feature 0x%02x unsupported (%s)", e.Feature, kind)
}

// NullResponseError: the monitor answered with an all-null DDC reply once.
type NullResponseError struct{ Feature byte }

func (e *NullResponseError) Error() string {
	return fmt.Sprintf("null response for feature 0x%02x", e.Feature)
}

// AllResponsesNullError: every retry yielded Null.
type AllResponsesNullError struct {
	Feature  byte
	Attempts int
}

func (e *AllResponsesNullError) Error() string {
	return fmt.Sprintf("all %d responses null for feature 0x%02x", e.Attempts, e.Feature)
}

// RetriesError: other transport failures exhausted the retry budget.
type RetriesError struct {
	Feature  byte
	Attempts int
	Last     error
}

func (e *RetriesError) Error() string {
	return fmt.Sprintf("retries exhausted (%d) for feature 0x%02x: %v", e.Attempts, e.Feature, e.Last)
}

func (e *RetriesError) Unwrap() error { return e.Last }

// IOError wraps a raw errno/OS error from the transport layer.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("io error during %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// BadDataError: a reply was structurally malformed (bad checksum, wrong
// opcode, wrong length).
type BadDataError struct {
	Message string
}

func (e *BadDataError) Error() string { return "bad data: " + e.Message }

// InvalidProtocolError: a reply violated the wire protocol in a way BadData
// doesn't cover (e.g. reply to the wrong feature code).
type InvalidProtocolError struct {
	Message string
}

func (e *InvalidProtocolError) Error() string { return "invalid protocol: " + e.Message }

// InternalError: marker mismatch or logic inconsistency. Fatal in debug
// builds; the caller decides whether to panic on it.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string { return "internal error: " + e.Message }

// IsEBUSY reports whether err is, or wraps, syscall.EBUSY. Used to
// distinguish "another driver holds the bus" from other open failures when
// opening an I2C adapter.
func IsEBUSY(err error) bool {
	return errors.Is(err, syscall.EBUSY)
}

// IsEIO reports whether err is, or wraps, syscall.EIO, the one IOError the
// initial-checks engine treats specially (step 2 classification logs but
// does not change classification for non-EIO IOErrors).
func IsEIO(err error) bool {
	return errors.Is(err, syscall.EIO)
}
