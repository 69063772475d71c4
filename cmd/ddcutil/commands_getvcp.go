package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

var getvcpCmd = &cobra.Command{
	Use:   "getvcp <display> <feature-code>",
	Short: "Read a VCP feature value",
	Long:  "Read a nontable VCP feature's current and maximum value, e.g. 0x10 for brightness",
	Args:  cobra.ExactArgs(2),
	Run:   runGetVCP,
}

func runGetVCP(cmd *cobra.Command, args []string) {
	code, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		log.Fatalf("invalid feature code %q: %v", args[1], err)
	}

	ctx := context.Background()
	svc := buildService(ctx, finalizeConfig(cmd))
	ref := resolveOrFatal(svc, args[0])

	handle, err := svc.Open(ref, false)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer handle.Close()

	reply, err := handle.GetVCPNontable(ctx, byte(code))
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("VCP %02x: current=%d max=%d\n", code, reply.CurValue, reply.MaxValue)
}
