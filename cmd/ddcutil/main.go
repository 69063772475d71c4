package main

import (
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcconfig"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

var cfg = ddcconfig.Default()

var rootCmd = &cobra.Command{
	Use:   "ddcutil",
	Short: "Query and control external monitors over DDC/CI",
	Long:  "ddcutil detects, queries, and controls external monitors over VESA DDC/CI, via I2C or USB HID",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			log.SetLevel("debug")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().IntVar(&cfg.AsyncThreshold, "async-threshold", cfg.AsyncThreshold,
		"minimum display count before initial checks run concurrently")
	rootCmd.PersistentFlags().Int("max-lock-wait-ms", int(cfg.MaxLockWait/time.Millisecond), "maximum time to wait for a display lock, in milliseconds")
	rootCmd.PersistentFlags().String("mccs-version-override", "", "skip MCCS version probing and assume this version (e.g. 2.1)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "disable the on-disk detection cache")
	rootCmd.PersistentFlags().BoolVar(&cfg.ForceSlaveAddress, "force-slave-address", cfg.ForceSlaveAddress, "use I2C_SLAVE_FORCE when a bus returns EBUSY")
	rootCmd.PersistentFlags().BoolVar(&cfg.DetectUSB, "usb", cfg.DetectUSB, "include USB HID monitors during detection")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	rootCmd.AddCommand(detectCmd, getvcpCmd, setvcpCmd, capabilitiesCmd, environmentCmd, daemonCmd, daemonClientCmd, monitorCmd)
}

// finalizeConfig applies the flags that don't map 1:1 onto a Config field
// (lock wait needs a unit conversion, version override needs parsing, cache
// is inverted) before a command builds its Service.
func finalizeConfig(cmd *cobra.Command) ddcconfig.Config {
	out := cfg

	if ms, err := cmd.Flags().GetInt("max-lock-wait-ms"); err == nil && cmd.Flags().Changed("max-lock-wait-ms") {
		out.MaxLockWait = time.Duration(ms) * time.Millisecond
	}

	if v, _ := cmd.Flags().GetString("mccs-version-override"); v != "" {
		parsed, err := parseVersionSpec(v)
		if err != nil {
			log.Fatalf("invalid --mccs-version-override %q: %v", v, err)
		}
		out.MCCSVersionOverride = parsed
	}

	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		out.EnableCache = false
	}

	if out.EnableCache && out.CachePath == "" {
		out.CachePath = defaultCachePath()
	}

	return out
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return dir + "/ddcutil/detect.json"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

// fsForCommand is the afero.Fs every command scans sysfs/the cache through;
// production always uses the real OS filesystem, injected here so the only
// place that ever hard-codes afero.NewOsFs() is the CLI entrypoint.
func fsForCommand() afero.Fs {
	return afero.NewOsFs()
}
