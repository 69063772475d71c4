package ddctransport

import (
	"context"
	"time"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcsleep"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

// Strategy is the capability set the design dispatches to by io_path.tag:
// write/read the raw wire, and the four higher-level DDC/CI operations
// built on top of them.
type Strategy interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxLen int) ([]byte, error)
	GetVCPNontable(ctx context.Context, code byte) (NonTableReply, error)
	SetVCPNontable(ctx context.Context, code byte, value uint16) error
	GetCapabilitiesFragment(ctx context.Context, offset uint16) ([]byte, error)
	SaveCurrentSettings(ctx context.Context) error
	Close() error
}

// RetryPolicy is the bounded-retry behavior applied over a caller-supplied
// attempt function so the I2C and USB strategies don't each reimplement it.
// Both strategies apply it to GetVCPNontable only; SetVCPNontable,
// GetCapabilitiesFragment and SaveCurrentSettings make a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	Sleep       *ddcsleep.Multiplier
	BaseDelay   time.Duration
}

func DefaultRetryPolicy(sleep *ddcsleep.Multiplier) RetryPolicy {
	if sleep == nil {
		sleep = ddcsleep.NewMultiplier()
	}
	return RetryPolicy{MaxAttempts: 4, Sleep: sleep, BaseDelay: 40 * time.Millisecond}
}

// attemptFn performs one try of a nontable get and reports which
// distinguishable outcome it hit.
type attemptFn func() (NonTableReply, error)

// RunWithRetries drives attempt up to p.MaxAttempts times, classifying
// errors into the spec's distinguishable outcomes:
//   - nil error: success, returned immediately.
//   - *ddcerrs.NullResponseError: retried; if every attempt is Null,
//     returns *ddcerrs.AllResponsesNullError.
//   - *ddcerrs.UnsupportedError: returned immediately (not a transport
//     failure).
//   - anything else: retried; if attempts are exhausted, returns
//     *ddcerrs.RetriesError wrapping the last error.
func RunWithRetries(feature byte, policy RetryPolicy, attempt attemptFn) (NonTableReply, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	nullCount := 0
	var lastErr error

	for i := 0; i < attempts; i++ {
		reply, err := attempt()
		if err == nil {
			return reply, nil
		}

		var unsupported *ddcerrs.UnsupportedError
		if isUnsupported(err, &unsupported) {
			return NonTableReply{}, err
		}

		var null *ddcerrs.NullResponseError
		if isNull(err, &null) {
			nullCount++
			lastErr = err
			log.Debugf("null response for feature 0x%02x, attempt %d/%d", feature, i+1, attempts)
			policy.Sleep.Grow()
			continue
		}

		lastErr = err
		policy.Sleep.Grow()
	}

	if nullCount == attempts {
		return NonTableReply{}, &ddcerrs.AllResponsesNullError{Feature: feature, Attempts: attempts}
	}

	return NonTableReply{}, &ddcerrs.RetriesError{Feature: feature, Attempts: attempts, Last: lastErr}
}

func isUnsupported(err error, target **ddcerrs.UnsupportedError) bool {
	u, ok := err.(*ddcerrs.UnsupportedError)
	if ok {
		*target = u
	}
	return ok
}

func isNull(err error, target **ddcerrs.NullResponseError) bool {
	n, ok := err.(*ddcerrs.NullResponseError)
	if ok {
		*target = n
	}
	return ok
}
