package ddcref

import (
	"sync"

	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

// Registry is the catalog of all known monitors: a list of
// owning pointers guarded by one mutex. It is single-writer at detection
// time and read-mostly afterwards.
type Registry struct {
	mu   sync.Mutex
	refs []*Ref
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends ref to the catalog. Callers must ensure no other ref in the
// catalog shares ref.IOPath; Add does not itself enforce this. Remove and
// Add each take the mutex on their own, so a third party can observe the
// catalog between them; callers replacing a ref should call ReplaceByPath.
func (r *Registry) Add(ref *Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
}

// Remove unlinks ref from the catalog. It does not validate that no handle
// still references ref; the caller is responsible for ensuring that before
// calling Remove.
func (r *Registry) Remove(ref *Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, candidate := range r.refs {
		if candidate == ref {
			r.refs = append(r.refs[:i], r.refs[i+1:]...)
			return
		}
	}
}

// ReplaceByPath atomically swaps out any existing ref for path with
// replacement, or appends replacement when no ref has that path; the
// detection orchestrator uses it to publish each ref of a detection pass.
func (r *Registry) ReplaceByPath(path iopath.Path, replacement *Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, candidate := range r.refs {
		if candidate.IOPath.Equal(path) {
			r.refs[i] = replacement
			return
		}
	}
	r.refs = append(r.refs, replacement)
}

func (r *Registry) FindByPath(path iopath.Path) *Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, candidate := range r.refs {
		if candidate.IOPath.Equal(path) {
			return candidate
		}
	}
	return nil
}

func (r *Registry) FindByBusNumber(busno uint16) *Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, candidate := range r.refs {
		if candidate.IOPath.Kind == iopath.KindI2C && candidate.IOPath.BusNumber == busno {
			return candidate
		}
	}
	return nil
}

func (r *Registry) FindByDRMConnector(name string) *Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, candidate := range r.refs {
		if candidate.DRMConnector() == name {
			return candidate
		}
	}
	return nil
}

// IterFiltered returns a snapshot slice of refs matching the given
// visibility filters. Callers must not retain the slice across a
// subsequent Add/Remove/ReplaceByPath if they need a consistent view — it
// is a point-in-time copy, not a live iterator, precisely so callers never
// need to hold the registry mutex beyond this one call.
func (r *Registry) IterFiltered(includeInvalid, includeRemoved bool) []*Ref {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Ref, 0, len(r.refs))
	for _, ref := range r.refs {
		if ref.HasFlag(Removed) && !includeRemoved {
			continue
		}
		if ref.DisplayNumber() <= 0 && !includeInvalid {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// All returns every ref in the catalog, valid or not, removed or not.
func (r *Registry) All() []*Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Ref, len(r.refs))
	copy(out, r.refs)
	return out
}

// SetRemoved marks ref REMOVED and clears its display number to the
// "removed" sentinel; the ref stays in the list so outstanding handles
// still referencing it observe the change.
func (r *Registry) SetRemoved(ref *Ref) {
	ref.SetFlags(Removed)
	ref.SetDisplayNumber(DisplayNumberRemoved)
}

// Len reports the current catalog size, valid and invalid alike.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}
