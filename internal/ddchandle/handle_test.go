package ddchandle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub004/internal/ddclock"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/ddctransport"
	"github.com/rockowitz/ddcutil-sub004/internal/ddctransport/mocktransport"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

func TestOpenRejectsRemovedRef(t *testing.T) {
	ref := ddcref.New(iopath.I2C(9))
	ref.SetFlags(ddcref.Removed)

	locks := ddclock.New(100*time.Millisecond, 10*time.Millisecond)
	_, err := Open(ref, locks, ddclock.NewOwner(), OpenOptions{})

	var disc *ddcerrs.DisconnectedError
	require.ErrorAs(t, err, &disc)
}

func TestOpenReleasesLockWhenTransportFails(t *testing.T) {
	// No /dev/i2c-250 exists in this environment, so the real transport
	// open fails; Open must release the lock it took before propagating
	// the error rather than leaving the bus wedged for the next caller.
	ref := ddcref.New(iopath.I2C(250))
	locks := ddclock.New(100*time.Millisecond, 10*time.Millisecond)
	owner := ddclock.NewOwner()

	_, err := Open(ref, locks, owner, OpenOptions{})
	require.Error(t, err)

	other := ddclock.NewOwner()
	_, lockErr := locks.Lock(ref.IOPath, other, false)
	assert.NoError(t, lockErr)
}

func newTestHandle(strategy ddctransport.Strategy) *Handle {
	locks := ddclock.New(time.Second, 10*time.Millisecond)
	owner := ddclock.NewOwner()
	ref := ddcref.New(iopath.I2C(5))
	return &Handle{ref: ref, strategy: strategy, locks: locks, owner: owner}
}

func TestSetVCPNontableWarnsButStillWritesWhenDpmsAsleep(t *testing.T) {
	m := mocktransport.New()
	m.On("SetVCPNontable", mock.Anything, byte(0x10), uint16(50)).Return(nil)

	h := newTestHandle(m)
	h.ref.SetFlags(ddcref.DpmsAsleep)

	err := h.SetVCPNontable(context.Background(), 0x10, 50)
	assert.NoError(t, err)
	m.AssertExpectations(t)
}

func TestGetCapabilitiesStringAccumulatesFragments(t *testing.T) {
	m := mocktransport.New()
	m.On("GetCapabilitiesFragment", mock.Anything, uint16(0)).Return([]byte("(model(A)"), nil)
	m.On("GetCapabilitiesFragment", mock.Anything, uint16(9)).Return([]byte(")"), nil)
	m.On("GetCapabilitiesFragment", mock.Anything, uint16(10)).Return([]byte{}, nil)

	h := newTestHandle(m)
	s, err := h.GetCapabilitiesString(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "(model(A))", s)
	assert.Equal(t, "(model(A))", h.Ref().CapabilitiesString())
}

func TestCloseClearsOpenFlagAndUnlocks(t *testing.T) {
	m := mocktransport.New()
	m.On("Close").Return(nil)

	h := newTestHandle(m)
	h.ref.SetFlags(ddcref.Open)
	if _, err := h.locks.Lock(h.ref.IOPath, h.owner, false); err != nil {
		t.Fatalf("lock: %v", err)
	}

	require.NoError(t, h.Close())
	assert.False(t, h.ref.HasFlag(ddcref.Open))

	other := ddclock.NewOwner()
	_, err := h.locks.Lock(h.ref.IOPath, other, false)
	assert.NoError(t, err)
}
