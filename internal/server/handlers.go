package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcreport"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

// identifierParams is the JSON shape every non-detect method uses to name a
// target display: exactly one field is expected to be set.
type identifierParams struct {
	Display *int `json:"display,omitempty"`
	I2CBus  *int `json:"i2c_bus,omitempty"`
}

func parseIdentifier(raw json.RawMessage) (iopath.Identifier, error) {
	var p identifierParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return iopath.Identifier{}, fmt.Errorf("invalid params: %w", err)
	}
	switch {
	case p.Display != nil:
		return iopath.FromDisplayNumber(*p.Display), nil
	case p.I2CBus != nil:
		return iopath.FromI2CBusNumber(uint16(*p.I2CBus)), nil
	default:
		return iopath.Identifier{}, fmt.Errorf("params must set display or i2c_bus")
	}
}

type getvcpParams struct {
	identifierParams
	Code int `json:"code"`
}

type setvcpParams struct {
	identifierParams
	Code  int `json:"code"`
	Value int `json:"value"`
}

type getvcpResult struct {
	CurrentValue uint16 `json:"current_value"`
	MaxValue     uint16 `json:"max_value"`
}

// handleDetect runs (or reuses) the detection pass and returns the catalog.
func (s *Server) handleDetect(ctx context.Context, conn io.Writer, req Request) {
	if err := s.svc.EnsureDetected(ctx, s.prober); err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	respond(conn, req.ID, ddcreport.Catalog(s.svc.Reg.All()))
}

func (s *Server) resolve(raw json.RawMessage) (*ddcref.Ref, error) {
	id, err := parseIdentifier(raw)
	if err != nil {
		return nil, err
	}
	return s.svc.ResolveIdentifier(id)
}

func (s *Server) handleGetVCP(ctx context.Context, conn io.Writer, req Request) {
	var p getvcpParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	ref, err := s.resolve(req.Params)
	if err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}

	handle, err := s.svc.Open(ref, false)
	if err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	defer handle.Close()

	reply, err := handle.GetVCPNontable(ctx, byte(p.Code))
	if err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	respond(conn, req.ID, getvcpResult{CurrentValue: reply.CurValue, MaxValue: reply.MaxValue})
}

func (s *Server) handleSetVCP(ctx context.Context, conn io.Writer, req Request) {
	var p setvcpParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	ref, err := s.resolve(req.Params)
	if err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}

	handle, err := s.svc.Open(ref, false)
	if err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	defer handle.Close()

	if err := handle.SetVCPNontable(ctx, byte(p.Code), uint16(p.Value)); err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	respond(conn, req.ID, "ok")
}

func (s *Server) handleCapabilities(ctx context.Context, conn io.Writer, req Request) {
	ref, err := s.resolve(req.Params)
	if err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}

	handle, err := s.svc.Open(ref, false)
	if err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	defer handle.Close()

	caps, err := handle.GetCapabilitiesString(ctx)
	if err != nil {
		respondError(conn, req.ID, err.Error())
		return
	}
	respond(conn, req.ID, caps)
}

// handleSubscribe streams the catalog once immediately, then again on every
// change the watch loop observes, until ctx is canceled or a write fails
// because the connection has closed (noticed at the next update). Grounded in
// the brightness daemon's subscribe handler: write the initial state, then
// range over a channel writing one encoded value per update.
func (s *Server) handleSubscribe(ctx context.Context, conn io.Writer, req Request) {
	ch, cancel := s.subscribe()
	defer cancel()

	respond(conn, req.ID, ddcreport.Catalog(s.svc.Reg.All()))

	for {
		select {
		case <-ctx.Done():
			return
		case catalog, ok := <-ch:
			if !ok {
				return
			}
			if err := json.NewEncoder(conn).Encode(Response{ID: req.ID, Result: catalog}); err != nil {
				return
			}
		}
	}
}
