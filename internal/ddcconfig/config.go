// Package ddcconfig holds the explicit configuration struct threaded into
// detection and handle-open, replacing the source's process-wide variables
// for output-level, adaptive-sleep, and trace flags.
package ddcconfig

import "time"

// VersionSpec is an MCCS {major, minor} pair, or the "unqueried"/"unknown"
// sentinel when both fields are zero.
type VersionSpec struct {
	Major, Minor uint8
}

// Unqueried is the sentinel meaning "never probed".
var Unqueried = VersionSpec{}

func (v VersionSpec) Known() bool { return v != Unqueried }

// Config is the set of options the CLI layer chooses and hands to the core.
type Config struct {
	// AsyncThreshold: spawn one worker per ref when the ref count is at
	// least this; otherwise run initial checks sequentially.
	AsyncThreshold int

	// MaxLockWait and LockPollInterval bound a non-blocking lock() call.
	MaxLockWait      time.Duration
	LockPollInterval time.Duration

	DetectUSB   bool
	EnableCache bool

	// ForceSlaveAddress retries with I2C_SLAVE_FORCE when I2C_SLAVE on a
	// bus returns EBUSY.
	ForceSlaveAddress bool

	// MCCSVersionOverride, if Known(), skips the 0xdf probe entirely.
	MCCSVersionOverride VersionSpec

	// NeverUseNullAsUnsupported is a testing hook for the unsupported-
	// indication classifier: when set, a null/all-null reply from a
	// candidate feature is not trusted as this monitor's unsupported
	// signal, and classification falls through to the next candidate
	// instead of stopping.
	NeverUseNullAsUnsupported bool

	// ComparePhantomByFullEDID switches the phantom filter from mfg/model/product/serial comparison to a full
	// 128-byte EDID comparison.
	ComparePhantomByFullEDID bool

	// ForceBusTestMode short-circuits the unsupported-indication
	// classifier to USES_DDC_FLAG_FOR_UNSUPPORTED with comms-working set.
	ForceBusTestMode bool

	// CachePath, if empty, uses the default per-user path supplied by the
	// CLI layer at construction time.
	CachePath string

	// SyslogThreshold, if non-empty, makes ddcdetect.New mirror log output
	// to syslog (see log.MirrorToSyslog). The value must parse as a level;
	// every line the logger emits is mirrored, including lines below it.
	SyslogThreshold string
}

// Default returns the configuration the source's built-in defaults imply.
func Default() Config {
	return Config{
		AsyncThreshold:      3,
		MaxLockWait:         4000 * time.Millisecond,
		LockPollInterval:    100 * time.Millisecond,
		DetectUSB:           true,
		EnableCache:         true,
		ForceSlaveAddress:   false,
		MCCSVersionOverride: Unqueried,
	}
}
