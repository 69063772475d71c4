package ddcprobe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/ddctransport"
	"github.com/rockowitz/ddcutil-sub004/internal/ddctransport/mocktransport"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

func newRef() *ddcref.Ref {
	return ddcref.New(iopath.I2C(5))
}

// TestWellBehavedMonitor mirrors the "two normal monitors" scenario: feature
// 0x10 succeeds, 0x41 comes back ReportedUnsupported, 0xdf reports 2.2.
func TestWellBehavedMonitor(t *testing.T) {
	m := mocktransport.New()
	m.OnGetVCPReturning(0x10, ddctransport.NonTableReply{CurValue: 75, MaxValue: 100}, nil)
	m.OnGetVCPReturning(0x41, ddctransport.NonTableReply{}, &ddcerrs.UnsupportedError{Kind: ddcerrs.ReportedUnsupported, Feature: 0x41})
	m.OnGetVCPReturning(0xdf, ddctransport.NonTableReply{CurValue: 0x0202}, nil)

	r := newRef()
	Run(context.Background(), r, m, nil, ddcconfig.Default())

	assert.True(t, r.HasFlag(ddcref.DDCCommsWorking))
	assert.True(t, r.HasFlag(ddcref.UsesDDCFlagForUnsupported))
	assert.True(t, r.HasFlag(ddcref.DDCCommsChecked))
	assert.True(t, r.HasFlag(ddcref.UnsupportedChecked))
	assert.Equal(t, uint8(2), r.VCPVersionProbed().Major)
	assert.Equal(t, uint8(2), r.VCPVersionProbed().Minor)
}

// TestNullResponseMonitor mirrors the "monitor signals unsupported via null
// response" scenario.
func TestNullResponseMonitor(t *testing.T) {
	m := mocktransport.New()
	m.OnGetVCPReturning(0x10, ddctransport.NonTableReply{}, nil)
	m.OnGetVCPReturning(0x41, ddctransport.NonTableReply{}, &ddcerrs.AllResponsesNullError{Feature: 0x41, Attempts: 4})
	m.OnGetVCPReturning(0xdf, ddctransport.NonTableReply{}, &ddcerrs.RetriesError{Feature: 0xdf})

	r := newRef()
	Run(context.Background(), r, m, nil, ddcconfig.Default())

	assert.True(t, r.HasFlag(ddcref.DDCCommsWorking))
	assert.True(t, r.HasFlag(ddcref.UsesNullResponseForUnsupported))
	assert.False(t, r.VCPVersionProbed().Known())
}

// TestNeverUseNullAsUnsupportedFallsThrough: with the testing hook set, a
// null reply to 0x41 is not trusted as this monitor's unsupported signal —
// the classifier tries 0xdd next instead of stopping.
func TestNeverUseNullAsUnsupportedFallsThrough(t *testing.T) {
	m := mocktransport.New()
	m.OnGetVCPReturning(0x10, ddctransport.NonTableReply{}, nil)
	m.OnGetVCPReturning(0x41, ddctransport.NonTableReply{}, &ddcerrs.AllResponsesNullError{Feature: 0x41, Attempts: 4})
	m.OnGetVCPReturning(0xdd, ddctransport.NonTableReply{}, &ddcerrs.UnsupportedError{Kind: ddcerrs.ReportedUnsupported, Feature: 0xdd})
	m.OnGetVCPReturning(0xdf, ddctransport.NonTableReply{CurValue: 0x0202}, nil)

	r := newRef()
	cfg := ddcconfig.Default()
	cfg.NeverUseNullAsUnsupported = true

	Run(context.Background(), r, m, nil, cfg)

	assert.True(t, r.HasFlag(ddcref.DDCCommsWorking))
	assert.True(t, r.HasFlag(ddcref.UsesDDCFlagForUnsupported))
	assert.False(t, r.HasFlag(ddcref.UsesNullResponseForUnsupported))
	m.AssertCalled(t, "GetVCPNontable", mock.Anything, byte(0xdd))
}

// TestBusyBus mirrors the "bus is busy" scenario: the connectivity probe
// itself returns BusyError and the engine stops without touching
// UnsupportedChecked.
func TestBusyBus(t *testing.T) {
	m := mocktransport.New()
	m.OnGetVCPReturning(0x10, ddctransport.NonTableReply{}, &ddcerrs.BusyError{IOPath: "i2c-5"})

	r := newRef()
	Run(context.Background(), r, m, nil, ddcconfig.Default())

	assert.True(t, r.HasFlag(ddcref.DDCBusy))
	assert.False(t, r.HasFlag(ddcref.DDCCommsWorking))
	assert.False(t, r.HasFlag(ddcref.DDCCommsChecked))
	assert.False(t, r.HasFlag(ddcref.UnsupportedChecked))
}

// TestCommsNotWorking: connectivity probe exhausts retries outright, with
// adaptive sleep unavailable (nil Sleeper), so no fallback retry happens.
func TestCommsNotWorking(t *testing.T) {
	m := mocktransport.New()
	m.OnGetVCPReturning(0x10, ddctransport.NonTableReply{}, &ddcerrs.RetriesError{Feature: 0x10})

	r := newRef()
	Run(context.Background(), r, m, nil, ddcconfig.Default())

	assert.False(t, r.HasFlag(ddcref.DDCCommsWorking))
	assert.True(t, r.HasFlag(ddcref.DDCCommsChecked))
	assert.True(t, r.HasFlag(ddcref.UnsupportedChecked))
}

// TestUSBSkipsClassification: USB displays skip step 2 entirely.
func TestUSBSkipsClassification(t *testing.T) {
	m := mocktransport.New()
	m.OnGetVCPReturning(0x10, ddctransport.NonTableReply{CurValue: 50}, nil)
	m.OnGetVCPReturning(0xdf, ddctransport.NonTableReply{CurValue: 0x0103}, nil)

	r := ddcref.New(iopath.USB(1, 2, 0))
	Run(context.Background(), r, m, nil, ddcconfig.Default())

	assert.True(t, r.HasFlag(ddcref.DDCCommsWorking))
	assert.True(t, r.HasFlag(ddcref.UsesDDCFlagForUnsupported))
	m.AssertNotCalled(t, "GetVCPNontable", mock.Anything, byte(0x41))
}

// TestForceBusTestMode short-circuits classification entirely.
func TestForceBusTestMode(t *testing.T) {
	m := mocktransport.New()
	r := newRef()
	cfg := ddcconfig.Default()
	cfg.ForceBusTestMode = true

	Run(context.Background(), r, m, nil, cfg)

	assert.True(t, r.HasFlag(ddcref.DDCCommsWorking))
	assert.True(t, r.HasFlag(ddcref.UsesDDCFlagForUnsupported))
	m.AssertNotCalled(t, "GetVCPNontable", mock.Anything, byte(0x10))
}

// TestMCCSVersionOverrideSkipsProbe.
func TestMCCSVersionOverrideSkipsProbe(t *testing.T) {
	m := mocktransport.New()
	m.OnGetVCPReturning(0x10, ddctransport.NonTableReply{}, nil)
	m.OnGetVCPReturning(0x41, ddctransport.NonTableReply{}, &ddcerrs.UnsupportedError{Kind: ddcerrs.ReportedUnsupported, Feature: 0x41})

	r := newRef()
	cfg := ddcconfig.Default()
	cfg.MCCSVersionOverride = ddcconfig.VersionSpec{Major: 3, Minor: 0}

	Run(context.Background(), r, m, nil, cfg)

	assert.Equal(t, cfg.MCCSVersionOverride, r.VCPVersionCmdlineOverride())
	m.AssertNotCalled(t, "GetVCPNontable", mock.Anything, byte(0xdf))
}
