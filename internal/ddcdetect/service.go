// Package ddcdetect implements the detection orchestrator (design
// section4.10): the single entry point, EnsureDetected, that turns a bus
// scan into a published catalog of Display-Refs, and Service, the explicit
// top-level object design section9 calls for in place of the source's
// "many if-not-already-initialized singletons" (lock table, detection
// cache) — constructed once, with explicit, testable construction order.
package ddcdetect

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/afero"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddccache"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcedid"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/ddchandle"
	"github.com/rockowitz/ddcutil-sub004/internal/ddclock"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcphantom"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcprobe"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcsleep"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

// Service is the long-lived object a CLI invocation or daemon constructs
// once: it owns the registry, the lock table, the adaptive-sleep
// multiplier, and the detection configuration, and exposes EnsureDetected
// plus the open/get/set operations built on top of it.
type Service struct {
	Config ddcconfig.Config
	FS     afero.Fs
	Locks  *ddclock.Table
	Reg    *ddcref.Registry

	sleep *ddcsleep.Multiplier
	x37   *ddcbus.X37Table
	owner ddclock.Owner

	mu       sync.Mutex
	detected bool
	buses    []*ddcbus.Bus

	// DpmsHint, if set, is consulted once per detection pass to pre-seed
	// DPMS_ASLEEP on every materialized ref (design section4.16). Left nil
	// by New; the CLI layer wires it to sessionwatch.Hint.Asleep when it
	// starts that watcher.
	DpmsHint func() bool
}

// Prober is the collaborator used for address-0x37/0x50 bus probing,
// injected so tests can substitute a scripted fake instead of touching
// real hardware.
type Prober = ddcbus.Prober

// New constructs a Service with explicit, testable wiring. fs is the
// filesystem sysfs/cache reads go through (production: afero.NewOsFs()).
func New(cfg ddcconfig.Config, fs afero.Fs) *Service {
	if cfg.SyslogThreshold != "" {
		log.MirrorToSyslog(cfg.SyslogThreshold)
	}
	return &Service{
		Config: cfg,
		FS:     fs,
		Locks:  ddclock.New(cfg.MaxLockWait, cfg.LockPollInterval),
		Reg:    ddcref.NewRegistry(),
		sleep:  ddcsleep.NewMultiplier(),
		x37:    ddcbus.NewX37Table(),
		owner:  ddclock.NewOwner(),
	}
}

// Buses returns the most recent bus scan, empty until EnsureDetected has
// run at least once.
func (s *Service) Buses() []*ddcbus.Bus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ddcbus.Bus, len(s.buses))
	copy(out, s.buses)
	return out
}

// EnsureDetected runs the detection pipeline exactly once; subsequent
// calls are no-ops. The "already detected" flag is guarded by s.mu, the
// Service mutex that also guards the bus list (the registry has its own),
// per design section4.10's idempotence requirement.
func (s *Service) EnsureDetected(ctx context.Context, prober Prober) error {
	s.mu.Lock()
	if s.detected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.doDetect(ctx, prober)
}

// Rescan forces a fresh detection pass regardless of whether one already
// ran, the daemon's equivalent of the brightness manager's Rescan: a caller
// (daemon-client, or the subscribe poll loop below) asks for the catalog to
// be rebuilt rather than waiting on EnsureDetected's one-shot guard.
func (s *Service) Rescan(ctx context.Context, prober Prober) error {
	return s.doDetect(ctx, prober)
}

func (s *Service) doDetect(ctx context.Context, prober Prober) error {
	buses, err := ddcbus.Scan(s.FS, prober, s.x37, ddcbus.DefaultMaxBusNumber)
	if err != nil {
		return fmt.Errorf("ddcdetect: bus scan: %w", err)
	}

	refs := s.materializeRefs(buses)
	if s.Config.DetectUSB {
		refs = append(refs, s.materializeUSBRefs()...)
	}

	cached := s.loadCache()
	refs = seedFromCache(refs, cached, buses)

	if s.DpmsHint != nil && s.DpmsHint() {
		for _, r := range refs {
			r.SetFlags(ddcref.DpmsAsleep)
		}
	}

	s.runInitialChecks(ctx, refs)

	// Phantom filtering (design section4.9) partitions refs on a provisional
	// display number, so one must already be assigned before Filter runs.
	// The renumbering pass afterward makes positive numbers contiguous again
	// once Filter has retagged any duplicates as phantom (design section4.10
	// step 6).
	assignDisplayNumbers(refs)

	ddcphantom.Filter(s.FS, refs, s.Config)

	assignDisplayNumbers(refs)

	s.mu.Lock()
	s.buses = buses
	s.detected = true
	s.mu.Unlock()

	for _, r := range refs {
		s.Reg.ReplaceByPath(r.IOPath, r)
	}

	if s.Config.EnableCache && s.Config.CachePath != "" {
		doc := ddccache.Build(refs, buses)
		if err := ddccache.Store(s.FS, s.Config.CachePath, doc); err != nil {
			log.Warnf("ddcdetect: failed to write detection cache: %v", err)
		}
	}

	log.Infof("ddcdetect: detected %d display(s) across %d bus(es)", countPositive(refs), len(buses))
	return nil
}

func countPositive(refs []*ddcref.Ref) int {
	n := 0
	for _, r := range refs {
		if r.DisplayNumber() > 0 {
			n++
		}
	}
	return n
}

// materializeRefs builds one Ref per bus that exposed an EDID at either
// sysfs or address 0x50, binding its DRM connector per design section4.7.
// Materialization is gated on EDID presence, not on whether 0x37 answered:
// a phantom display's bus (design section4.9) typically carries a readable
// EDID while failing to respond on 0x37, and it must still become a Ref so
// the phantom filter has an invalid-but-identifiable counterpart to match
// against the real display.
func (s *Service) materializeRefs(buses []*ddcbus.Bus) []*ddcref.Ref {
	var refs []*ddcref.Ref
	for _, b := range buses {
		if b.HasFlag(ddcbus.DDCDisabled) {
			r := ddcref.New(iopath.I2C(uint16(b.Number)))
			r.SetDisplayNumber(ddcref.DisplayNumberDDCDisabled)
			refs = append(refs, r)
			continue
		}

		hasEDID := b.HasFlag(ddcbus.SysfsEDIDPresent) || b.HasFlag(ddcbus.X50EDIDRead)
		if !hasEDID {
			continue
		}

		r := ddcref.New(iopath.I2C(uint16(b.Number)))
		r.Detail = ddcref.Detail{
			Kind: iopath.KindI2C,
			I2C: ddcref.I2CDetail{
				BusNumber:     uint16(b.Number),
				Functionality: b.Functionality,
				Driver:        b.Driver,
			},
		}
		r.SetDriverName(b.Driver)

		if edid, err := ddcedid.Parse(b.EDID); err == nil {
			r.SetEDID(edid)
		}

		connector, foundBy := bindConnector(s.FS, b)
		r.SetDRMConnector(connector)
		b.DRMConnectorName = connector
		b.DRMConnectorFoundBy = foundBy

		refs = append(refs, r)
	}
	return refs
}

func bindConnector(fs afero.Fs, b *ddcbus.Bus) (string, ddcbus.ConnectorFoundBy) {
	if connector, ok := ddcedid.FindConnectorByBusno(fs, b.Number); ok {
		return connector, ddcbus.ByBusno
	}
	if connector, ambiguous := ddcedid.FindConnectorByEDID(fs, b.EDID); connector != "" {
		if ambiguous {
			log.Warnf("bus %d: drm connector mapping by edid is ambiguous", b.Number)
		}
		return connector, ddcbus.ByEdid
	}
	return "", ddcbus.NotFound
}

// materializeUSBRefs enumerates /dev/usb/hiddevN. Full identity (EDID)
// acquisition over USB HID is out of scope for this pass; these refs carry
// transport identity only, and the initial-checks engine still determines
// DDC_COMMS_WORKING for them.
func (s *Service) materializeUSBRefs() []*ddcref.Ref {
	const maxHiddev = 16
	var refs []*ddcref.Ref
	for n := 0; n < maxHiddev; n++ {
		path := fmt.Sprintf("/dev/usb/hiddev%d", n)
		if _, err := s.FS.Stat(path); err != nil {
			continue
		}
		r := ddcref.New(iopath.USB(0, 0, uint16(n)))
		r.USBHiddevName = path
		r.Detail = ddcref.Detail{Kind: iopath.KindUSB, USB: ddcref.USBDetail{HiddevNumber: uint16(n), HiddevName: path}}
		refs = append(refs, r)
	}
	return refs
}

func (s *Service) loadCache() ddccache.Doc {
	if !s.Config.EnableCache || s.Config.CachePath == "" {
		return ddccache.Doc{}
	}
	doc, err := ddccache.Restore(s.FS, s.Config.CachePath)
	if err != nil {
		log.Debugf("ddcdetect: no usable detection cache: %v", err)
		return ddccache.Doc{}
	}
	return doc
}

// seedFromCache replaces a freshly materialized ref with its cache-restored
// counterpart when the cached identity is confirmed present on the current
// bus scan, keeping the new ref's live transport detail (design section4.10
// step 2). Cached flags are seeded, not trusted — the caller still runs
// the initial-checks engine against every ref afterward.
func seedFromCache(fresh []*ddcref.Ref, cached ddccache.Doc, buses []*ddcbus.Bus) []*ddcref.Ref {
	if len(cached.AllDisplays) == 0 {
		return fresh
	}

	for _, entry := range cached.AllDisplays {
		seed := ddccache.ToRef(entry)
		if seed == nil {
			continue
		}
		for i, r := range fresh {
			if r.IOPath.Equal(seed.IOPath) {
				if r.IOPath.Kind == iopath.KindI2C {
					confirmed := false
					for _, b := range buses {
						if b.Number == int(r.IOPath.BusNumber) && b.HasFlag(ddcbus.AddrX37Responded) {
							confirmed = true
						}
					}
					if !confirmed {
						break
					}
				}
				seed.Detail = r.Detail
				seed.SetDRMConnector(r.DRMConnector())
				if e := r.EDID(); e != nil {
					seed.SetEDID(e)
				}
				fresh[i] = seed
				break
			}
		}
	}
	return fresh
}

// runInitialChecks runs ddcprobe.Run against every ref, sequentially below
// the async threshold or, at or above it, one goroutine per ref joined with
// a WaitGroup — never fire-and-forget, per design section9.
func (s *Service) runInitialChecks(ctx context.Context, refs []*ddcref.Ref) {
	if len(refs) < s.Config.AsyncThreshold {
		for _, r := range refs {
			s.checkOne(ctx, r)
		}
		return
	}

	var wg sync.WaitGroup
	for _, r := range refs {
		wg.Add(1)
		go func(r *ddcref.Ref) {
			defer wg.Done()
			s.checkOne(ctx, r)
		}(r)
	}
	wg.Wait()
}

func (s *Service) checkOne(ctx context.Context, r *ddcref.Ref) {
	if r.DisplayNumber() == ddcref.DisplayNumberDDCDisabled {
		return
	}

	handle, err := ddchandle.Open(r, s.Locks, s.owner, ddchandle.OpenOptions{ForceSlaveAddress: s.Config.ForceSlaveAddress})
	if err != nil {
		if busy, ok := err.(*ddcerrs.BusyError); ok {
			r.SetDisplayNumber(ddcref.DisplayNumberBusy)
			log.Debugf("ddcdetect: %s busy: %v", r.IOPath.String(), busy)
			return
		}
		log.Debugf("ddcdetect: could not open %s: %v", r.IOPath.String(), err)
		return
	}
	defer handle.Close()

	ddcprobe.Run(ctx, r, handle, ddcprobe.AdaptSleeper(s.sleep), s.Config)
}

// assignDisplayNumbers implements design section4.10 step 6 and the
// renumbering pass after the phantom filter (step numbering is contiguous
// among positive display numbers, in enumeration order).
func assignDisplayNumbers(refs []*ddcref.Ref) {
	n := 1
	for _, r := range refs {
		if r.DisplayNumber() < 0 {
			continue // already a negative sentinel (phantom/busy/disabled/...)
		}
		if !r.HasFlag(ddcref.DDCCommsWorking) || r.HasFlag(ddcref.DDCBusy) || r.HasFlag(ddcref.Removed) {
			r.SetDisplayNumber(ddcref.DisplayNumberInvalid)
			continue
		}
		r.SetDisplayNumber(n)
		n++
	}
}

// ResolveIdentifier maps a user-supplied Display-Identifier to a catalog
// Ref, design section4.1/4.3's selection routine.
func (s *Service) ResolveIdentifier(id iopath.Identifier) (*ddcref.Ref, error) {
	for _, r := range s.Reg.All() {
		if matches(r, id) {
			return r, nil
		}
	}
	return nil, &ddcerrs.NotFoundError{Identifier: id.String()}
}

func matches(r *ddcref.Ref, id iopath.Identifier) bool {
	switch id.Kind {
	case iopath.ByDisplayNumber:
		return r.DisplayNumber() == id.DisplayNumber
	case iopath.ByI2CBusNumber:
		return r.IOPath.Kind == iopath.KindI2C && r.IOPath.BusNumber == id.I2CBusNumber
	case iopath.ByUSBBusDevice:
		return r.IOPath.Kind == iopath.KindUSB && r.IOPath.USBBus == id.USBBus && r.IOPath.USBDevice == id.USBDevice
	case iopath.ByHiddevNumber:
		return r.IOPath.Kind == iopath.KindUSB && r.IOPath.USBHiddevNumber == id.HiddevNumber
	case iopath.ByEDID:
		e := r.EDID()
		return e != nil && e.Bytes() == id.EDID
	case iopath.ByMfgModelSerial:
		e := r.EDID()
		return e != nil && e.MfgID() == id.MfgID && e.ModelName() == id.ModelName && e.SerialAscii() == id.SerialAscii
	default:
		return false
	}
}

// Open opens a handle to ref using the Service's shared lock table and
// owner token.
func (s *Service) Open(ref *ddcref.Ref, wait bool) (*ddchandle.Handle, error) {
	return ddchandle.Open(ref, s.Locks, s.owner, ddchandle.OpenOptions{Wait: wait, ForceSlaveAddress: s.Config.ForceSlaveAddress})
}

// Close releases every lock this Service's owner token still holds,
// design section4.2's UnlockAllForOwner recovery path, for use at session
// end (e.g. daemon shutdown).
func (s *Service) Close() int {
	return s.Locks.UnlockAllForOwner(s.owner)
}
