package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcreport"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect connected DDC/CI monitors",
	Long:  "Scan I2C buses and USB HID monitors (USB is on by default; --usb=false skips it) and report every display found",
	Run:   runDetect,
}

func runDetect(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	svc := buildService(ctx, finalizeConfig(cmd))
	fmt.Print(ddcreport.Catalog(svc.Reg.All()))
}
