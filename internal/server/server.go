package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcdetect"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcreport"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

// DefaultSocketPath returns $XDG_RUNTIME_DIR/ddcutil.sock, falling back to
// /tmp when the runtime directory isn't set (e.g. under a bare system
// service without a user session).
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return dir + "/ddcutil.sock"
}

// Server owns the long-lived ddcdetect.Service and dispatches one client
// connection's request lines to it, grounded in router.go's RouteRequest:
// one exact-method switch covering "ping", the "ddc."-prefixed methods, and
// "subscribe".
type Server struct {
	svc        *ddcdetect.Service
	prober     ddcbus.Prober
	pollPeriod time.Duration

	mu      sync.Mutex
	subs    map[int]chan string
	nextSub int
	lastCat string
}

// New constructs a Server around an already-wired Service. prober is reused
// across every detect/subscribe call this server handles, same as a single
// CLI invocation would use one.
func New(svc *ddcdetect.Service, prober ddcbus.Prober) *Server {
	return &Server{
		svc:        svc,
		prober:     prober,
		pollPeriod: 5 * time.Second,
		subs:       make(map[int]chan string),
	}
}

// Serve accepts connections on a Unix socket at path until ctx is canceled.
// Grounded in danklinux's daemon entry point: a single listener, one
// goroutine per connection, newline-delimited JSON in and out.
func (s *Server) Serve(ctx context.Context, path string) error {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	defer l.Close()

	go s.pollLoop(ctx)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			respondError(conn, nil, "invalid request: "+err.Error())
			continue
		}
		s.RouteRequest(ctx, conn, req)
	}
}

// RouteRequest dispatches on the exact method name: "ping", the "ddc."-
// prefixed detect/getvcp/setvcp/capabilities/rescan methods, and
// "subscribe". Any other name is answered with an "unknown method" error.
func (s *Server) RouteRequest(ctx context.Context, conn net.Conn, req Request) {
	switch req.Method {
	case "ping":
		respond(conn, req.ID, "pong")
	case "ddc.detect":
		s.handleDetect(ctx, conn, req)
	case "ddc.getvcp":
		s.handleGetVCP(ctx, conn, req)
	case "ddc.setvcp":
		s.handleSetVCP(ctx, conn, req)
	case "ddc.capabilities":
		s.handleCapabilities(ctx, conn, req)
	case "ddc.rescan":
		if err := s.svc.Rescan(ctx, s.prober); err != nil {
			respondError(conn, req.ID, err.Error())
			return
		}
		respond(conn, req.ID, "ok")
	case "subscribe":
		s.handleSubscribe(ctx, conn, req)
	default:
		respondError(conn, req.ID, "unknown method: "+req.Method)
	}
}

// subscribe registers a channel that receives the rendered catalog whenever
// pollLoop observes it changed. The returned cancel func must be called to
// avoid leaking the channel from the subs map.
func (s *Server) subscribe() (<-chan string, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan string, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}
}

// pollLoop periodically compares the rendered catalog against the last
// broadcast value and fans out the difference to every subscriber, the same
// debounced-broadcast shape the brightness manager used for its device
// list: no push notification from the detection layer, so the daemon polls
// its own in-memory state cheaply instead.
func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastIfChanged()
		}
	}
}

func (s *Server) broadcastIfChanged() {
	cat := ddcreport.Catalog(s.svc.Reg.All())

	s.mu.Lock()
	if cat == s.lastCat {
		s.mu.Unlock()
		return
	}
	s.lastCat = cat
	subs := make([]chan string, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- cat:
		default:
			log.Debugf("server: subscriber channel full, dropping catalog update")
		}
	}
}
