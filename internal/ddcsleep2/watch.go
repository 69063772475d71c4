// Package sessionwatch implements the session-sleep watcher (design
// section4.16): a godbus/dbus subscription to logind's PrepareForSleep
// signal that maintains a process-wide Hint the detection orchestrator
// consults to pre-seed DPMS_ASLEEP on the next pass, without the core ever
// importing godbus/dbus itself. Named ddcsleep2/sessionwatch rather than
// ddcsleep to avoid colliding with the unrelated adaptive-retry-sleep
// package.
package sessionwatch

import (
	"context"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

// debounceWindow: a resume edge arriving within this long of the sleep edge
// is assumed spurious (logind is known to fire PrepareForSleep(false) twice
// on some distros) and is ignored rather than clearing the hint early.
const debounceWindow = 2 * time.Second

// Hint is the process-wide flag the orchestrator reads. Safe for concurrent
// use; the watcher goroutine is the only writer.
type Hint struct {
	mu      sync.Mutex
	asleep  bool
	sleptAt time.Time
}

func (h *Hint) Asleep() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.asleep
}

func (h *Hint) setAsleep(v bool, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v {
		h.asleep = true
		h.sleptAt = now
		return
	}
	if now.Sub(h.sleptAt) <= debounceWindow {
		log.Debugf("sessionwatch: ignoring resume edge within debounce window")
		return
	}
	h.asleep = false
}

// Watch connects to the system bus and subscribes to
// org.freedesktop.login1.Manager.PrepareForSleep, updating the returned
// Hint on every edge until ctx is canceled. Connection failure is non-fatal:
// it is logged at Debug and a Hint that always reports false is returned, so
// the core behaves exactly as if the watcher didn't exist.
func Watch(ctx context.Context) *Hint {
	hint := &Hint{}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		log.Debugf("sessionwatch: system bus unavailable, DPMS hint disabled: %v", err)
		return hint
	}

	matchRule := "type='signal',interface='org.freedesktop.login1.Manager',member='PrepareForSleep'"
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		log.Debugf("sessionwatch: could not subscribe to PrepareForSleep, DPMS hint disabled: %v", err)
		conn.Close()
		return hint
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)

	go func() {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig.Name != "org.freedesktop.login1.Manager.PrepareForSleep" || len(sig.Body) != 1 {
					continue
				}
				entering, ok := sig.Body[0].(bool)
				if !ok {
					continue
				}
				hint.setAsleep(entering, time.Now())
			}
		}
	}()

	return hint
}
