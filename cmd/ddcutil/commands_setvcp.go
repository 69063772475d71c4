package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

var setvcpCmd = &cobra.Command{
	Use:   "setvcp <display> <feature-code> <value>",
	Short: "Write a VCP feature value",
	Long:  "Write a nontable VCP feature's value, e.g. setvcp 1 0x10 50 for 50% brightness",
	Args:  cobra.ExactArgs(3),
	Run:   runSetVCP,
}

func runSetVCP(cmd *cobra.Command, args []string) {
	code, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		log.Fatalf("invalid feature code %q: %v", args[1], err)
	}
	value, err := strconv.ParseUint(args[2], 0, 16)
	if err != nil {
		log.Fatalf("invalid value %q: %v", args[2], err)
	}

	ctx := context.Background()
	svc := buildService(ctx, finalizeConfig(cmd))
	ref := resolveOrFatal(svc, args[0])

	handle, err := svc.Open(ref, false)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer handle.Close()

	if err := handle.SetVCPNontable(ctx, byte(code), uint16(value)); err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("VCP %02x set to %d\n", code, value)
}
