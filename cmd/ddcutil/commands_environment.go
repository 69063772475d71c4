package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcreport"
)

var environmentCmd = &cobra.Command{
	Use:   "environment",
	Short: "Dump bus and display diagnostics",
	Long:  "Run detection and print a verbose dump of every discovered bus and display, for bug reports",
	Run:   runEnvironment,
}

func runEnvironment(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := finalizeConfig(cmd)
	svc := buildService(ctx, cfg)

	fmt.Println("Buses:")
	for _, b := range svc.Buses() {
		fmt.Print(ddcreport.Bus(b, 1))
	}

	fmt.Println("\nDisplays:")
	for _, r := range svc.Reg.All() {
		fmt.Print(ddcreport.Ref(r, 1))
	}

	fmt.Printf("\nConfig: async-threshold=%d max-lock-wait=%s cache=%v cache-path=%q usb=%v force-slave=%v\n",
		cfg.AsyncThreshold, cfg.MaxLockWait, cfg.EnableCache, cfg.CachePath, cfg.DetectUSB, cfg.ForceSlaveAddress)
}
