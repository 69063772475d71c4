package ddcref

import (
	"testing"

	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

func TestRegistryAddFindRemove(t *testing.T) {
	reg := NewRegistry()
	ref := New(iopath.I2C(5))
	reg.Add(ref)

	if got := reg.FindByPath(iopath.I2C(5)); got != ref {
		t.Fatalf("FindByPath did not return the added ref")
	}
	if got := reg.FindByBusNumber(5); got != ref {
		t.Fatalf("FindByBusNumber did not return the added ref")
	}

	reg.Remove(ref)
	if got := reg.FindByPath(iopath.I2C(5)); got != nil {
		t.Fatalf("ref still present after Remove")
	}
}

func TestRegistryIterFilteredExcludesInvalidAndRemoved(t *testing.T) {
	reg := NewRegistry()

	valid := New(iopath.I2C(1))
	valid.SetDisplayNumber(1)
	valid.SetFlags(DDCCommsWorking)
	reg.Add(valid)

	invalid := New(iopath.I2C(2))
	invalid.SetDisplayNumber(DisplayNumberBusy)
	reg.Add(invalid)

	removed := New(iopath.I2C(3))
	removed.SetDisplayNumber(1)
	reg.Add(removed)
	reg.SetRemoved(removed)

	got := reg.IterFiltered(false, false)
	if len(got) != 1 || got[0] != valid {
		t.Fatalf("IterFiltered(false,false) = %v, want only valid", got)
	}

	gotWithInvalid := reg.IterFiltered(true, false)
	if len(gotWithInvalid) != 2 {
		t.Fatalf("IterFiltered(true,false) returned %d refs, want 2", len(gotWithInvalid))
	}

	gotAll := reg.IterFiltered(true, true)
	if len(gotAll) != 3 {
		t.Fatalf("IterFiltered(true,true) returned %d refs, want 3", len(gotAll))
	}
}

func TestRegistrySetRemovedClearsDisplayNumber(t *testing.T) {
	reg := NewRegistry()
	ref := New(iopath.I2C(1))
	ref.SetDisplayNumber(1)
	reg.Add(ref)

	reg.SetRemoved(ref)

	if !ref.HasFlag(Removed) {
		t.Error("expected Removed flag set")
	}
	if got := ref.DisplayNumber(); got != DisplayNumberRemoved {
		t.Errorf("DisplayNumber() = %d, want %d", got, DisplayNumberRemoved)
	}

	// Still present in the catalog so outstanding handles observe the change.
	if got := reg.FindByPath(iopath.I2C(1)); got != ref {
		t.Error("removed ref should remain in the catalog")
	}
}

func TestReplaceByPathKeepsSingleEntry(t *testing.T) {
	reg := NewRegistry()
	original := New(iopath.I2C(5))
	reg.Add(original)

	replacement := New(iopath.I2C(5))
	reg.ReplaceByPath(iopath.I2C(5), replacement)

	if got := reg.FindByPath(iopath.I2C(5)); got != replacement {
		t.Fatal("ReplaceByPath did not install the replacement")
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (no duplicate path entries)", reg.Len())
	}
}
