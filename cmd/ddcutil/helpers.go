package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcdetect"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcref"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

func parseVersionSpec(s string) (ddcconfig.VersionSpec, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return ddcconfig.VersionSpec{}, fmt.Errorf("expected MAJOR.MINOR")
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return ddcconfig.VersionSpec{}, err
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return ddcconfig.VersionSpec{}, err
	}
	return ddcconfig.VersionSpec{Major: uint8(major), Minor: uint8(minor)}, nil
}

// parseDisplayArg accepts either a bare display number ("1") or an explicit
// "i2c-N" bus form, the two selection styles the CLI subcommands support.
func parseDisplayArg(s string) (iopath.Identifier, error) {
	if strings.HasPrefix(s, "i2c-") {
		n, err := strconv.Atoi(strings.TrimPrefix(s, "i2c-"))
		if err != nil {
			return iopath.Identifier{}, fmt.Errorf("invalid i2c bus %q: %w", s, err)
		}
		return iopath.FromI2CBusNumber(uint16(n)), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return iopath.Identifier{}, fmt.Errorf("invalid display selector %q: %w", s, err)
	}
	return iopath.FromDisplayNumber(n), nil
}

// buildService constructs a Service against the real filesystem and runs
// detection once, the shape every one-shot CLI subcommand shares.
func buildService(ctx context.Context, cfg ddcconfig.Config) *ddcdetect.Service {
	svc := ddcdetect.New(cfg, fsForCommand())
	if err := svc.EnsureDetected(ctx, ddcbus.RealProber{}); err != nil {
		log.Fatalf("detection failed: %v", err)
	}
	return svc
}

func resolveOrFatal(svc *ddcdetect.Service, selector string) *ddcref.Ref {
	id, err := parseDisplayArg(selector)
	if err != nil {
		log.Fatalf("%v", err)
	}
	ref, err := svc.ResolveIdentifier(id)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return ref
}
