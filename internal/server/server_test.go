package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcdetect"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

type fakeProber struct{}

func (fakeProber) ProbeX37(int) (bool, error)        { return false, nil }
func (fakeProber) ReadEDIDAt50(int) ([128]byte, error) { return [128]byte{}, nil }

// newServer returns a Server whose catalog holds one ref, display 1 on
// i2c-1, and whose prober reports no DDC device on any bus.
func newServer(t *testing.T) *Server {
	t.Helper()
	svc := ddcdetect.New(ddcconfig.Default(), afero.NewMemMapFs())
	ref := ddcref.New(iopath.I2C(1))
	ref.SetDisplayNumber(1)
	svc.Reg.Add(ref)
	return New(svc, fakeProber{})
}

func roundTrip(t *testing.T, s *Server, req Request) Response {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RouteRequest(context.Background(), server, req)
		server.Close()
	}()

	scanner := bufio.NewScanner(client)
	require.True(t, scanner.Scan())
	var resp Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	<-done
	return resp
}

func TestRouteRequestPing(t *testing.T) {
	s := newServer(t)
	resp := roundTrip(t, s, Request{ID: 1, Method: "ping"})
	assert.Equal(t, "pong", resp.Result)
}

func TestRouteRequestDetectReturnsCatalog(t *testing.T) {
	s := newServer(t)
	resp := roundTrip(t, s, Request{ID: 2, Method: "ddc.detect"})
	require.Empty(t, resp.Error)
	cat, ok := resp.Result.(string)
	require.True(t, ok)
	assert.Contains(t, cat, "Display 1")
}

func TestRouteRequestUnknownMethod(t *testing.T) {
	s := newServer(t)
	resp := roundTrip(t, s, Request{ID: 3, Method: "bogus"})
	assert.Contains(t, resp.Error, "unknown method")
}

func TestRouteRequestGetVCPMissingIdentifierErrors(t *testing.T) {
	s := newServer(t)
	resp := roundTrip(t, s, Request{ID: 4, Method: "ddc.getvcp", Params: json.RawMessage(`{"code":16}`)})
	assert.NotEmpty(t, resp.Error)
}

func TestParseIdentifierRequiresAField(t *testing.T) {
	_, err := parseIdentifier(json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestParseIdentifierByDisplay(t *testing.T) {
	id, err := parseIdentifier(json.RawMessage(`{"display":3}`))
	require.NoError(t, err)
	assert.Equal(t, iopath.ByDisplayNumber, id.Kind)
	assert.Equal(t, 3, id.DisplayNumber)
}

func TestDefaultSocketPathFallsBackToTmp(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.True(t, strings.HasPrefix(DefaultSocketPath(), "/tmp/"))
}
