package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcbus"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
	"github.com/rockowitz/ddcutil-sub004/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactively browse displays and adjust brightness",
	Long:  "Launch an interactive view of the detected catalog; select a display to adjust its brightness with the left/right arrows",
	Run:   runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) {
	svc := buildService(context.Background(), finalizeConfig(cmd))
	model := tui.New(svc, ddcbus.RealProber{})
	if _, err := tea.NewProgram(model).Run(); err != nil {
		log.Fatalf("%v", err)
	}
}
