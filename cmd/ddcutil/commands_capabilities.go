package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities <display>",
	Short: "Read a monitor's capabilities string",
	Long:  "Read the raw capability-string fragments and print them verbatim, with no parsing",
	Args:  cobra.ExactArgs(1),
	Run:   runCapabilities,
}

func runCapabilities(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	svc := buildService(ctx, finalizeConfig(cmd))
	ref := resolveOrFatal(svc, args[0])

	handle, err := svc.Open(ref, false)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer handle.Close()

	caps, err := handle.GetCapabilitiesString(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println(caps)
}
