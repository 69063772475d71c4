package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcdetect"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcsleep2"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
	"github.com/rockowitz/ddcutil-sub004/internal/server"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the detection daemon",
	Long:  "Start a long-lived process serving detect/getvcp/setvcp/capabilities over a Unix socket, so repeated invocations skip re-scanning",
	Run:   runDaemon,
}

func init() {
	daemonCmd.Flags().String("socket", "", "unix socket path (default $XDG_RUNTIME_DIR/ddcutil.sock)")
	daemonClientCmd.Flags().String("socket", "", "unix socket path (default $XDG_RUNTIME_DIR/ddcutil.sock)")
}

func socketPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("socket")
	if path == "" {
		path = server.DefaultSocketPath()
	}
	return path
}

func runDaemon(cmd *cobra.Command, args []string) {
	cfg := finalizeConfig(cmd)
	svc := ddcdetect.New(cfg, fsForCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hint := sessionwatch.Watch(ctx)
	svc.DpmsHint = hint.Asleep

	if err := svc.EnsureDetected(ctx, ddcbus.RealProber{}); err != nil {
		log.Warnf("initial detection failed, starting anyway: %v", err)
	}

	srv := server.New(svc, ddcbus.RealProber{})
	path := socketPath(cmd)
	log.Infof("ddcutil daemon listening on %s", path)
	if err := srv.Serve(ctx, path); err != nil {
		log.Fatalf("daemon: %v", err)
	}
}

var daemonClientCmd = &cobra.Command{
	Use:   "daemon-client <method> [json-params]",
	Short: "Send one request to a running ddcutil daemon",
	Long:  "Thin client for the detection daemon: sends one {method, params} request and prints the response",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runDaemonClient,
}

func runDaemonClient(cmd *cobra.Command, args []string) {
	conn, err := net.Dial("unix", socketPath(cmd))
	if err != nil {
		log.Fatalf("connecting to daemon: %v", err)
	}
	defer conn.Close()

	req := server.Request{ID: 1, Method: args[0]}
	if len(args) == 2 {
		req.Params = json.RawMessage(args[1])
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		log.Fatalf("sending request: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		log.Fatalf("no response from daemon: %v", scanner.Err())
	}

	var resp server.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		log.Fatalf("decoding response: %v", err)
	}
	if resp.Error != "" {
		log.Fatalf("daemon error: %s", resp.Error)
	}
	fmt.Println(resp.Result)
}
