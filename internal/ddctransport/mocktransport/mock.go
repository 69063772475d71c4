// Package mocktransport provides a testify/mock-based Strategy double for
// scripting DDC/CI wire exchanges in tests, grounded in the same
// stretchr/testify/mock dependency the brightness package's D-Bus tests use
// (NewMockDBusConn/NewMockBusObject-style expectation setup), written by
// hand here rather than generated since there's no mockery run available.
package mocktransport

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rockowitz/ddcutil-sub004/internal/ddctransport"
)

// Strategy is a scriptable ddctransport.Strategy. Tests set expectations via
// the embedded mock.Mock and this package's On* helpers.
type Strategy struct {
	mock.Mock
}

func New() *Strategy {
	return &Strategy{}
}

func (m *Strategy) Write(ctx context.Context, data []byte) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *Strategy) Read(ctx context.Context, maxLen int) ([]byte, error) {
	args := m.Called(ctx, maxLen)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Strategy) GetVCPNontable(ctx context.Context, code byte) (ddctransport.NonTableReply, error) {
	args := m.Called(ctx, code)
	reply, _ := args.Get(0).(ddctransport.NonTableReply)
	return reply, args.Error(1)
}

func (m *Strategy) SetVCPNontable(ctx context.Context, code byte, value uint16) error {
	args := m.Called(ctx, code, value)
	return args.Error(0)
}

func (m *Strategy) GetCapabilitiesFragment(ctx context.Context, offset uint16) ([]byte, error) {
	args := m.Called(ctx, offset)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Strategy) SaveCurrentSettings(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Strategy) Close() error {
	args := m.Called()
	return args.Error(0)
}

// OnGetVCPReturning is a small convenience wrapper over Mock.On for the
// common case of scripting a single GetVCPNontable response, used by
// component tests that exercise a whole detection pass rather than one
// wire call at a time.
func (m *Strategy) OnGetVCPReturning(code byte, reply ddctransport.NonTableReply, err error) *mock.Call {
	return m.On("GetVCPNontable", mock.Anything, code).Return(reply, err)
}

var _ ddctransport.Strategy = (*Strategy)(nil)
