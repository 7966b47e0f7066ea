// Package cli implements the apuctl command-line interface using Cobra.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apuctl/apuctl/internal/daemon"
)

var (
	flagDriver string
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "apuctl",
	Short: "apuctl — AMD Ryzen APU power management",
	Long: `apuctl reads and adjusts the power, thermal and current limits of
AMD Ryzen mobile APUs through libryzenadj.

Limits are written in milliwatts, milliamps, seconds and °C. Readings are
reported in watts, amps, °C, MHz and volts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDriver, "driver", "", "Driver backend: ryzenadj or simulated (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default $APUCTL_HOME/config.toml)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file and applies persistent flags.
func loadConfig() (daemon.Config, error) {
	var (
		cfg daemon.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = daemon.LoadConfigFile(flagConfig)
	} else {
		cfg, err = daemon.LoadConfig()
	}
	if err != nil {
		return cfg, err
	}
	if flagDriver != "" {
		cfg.Device.Driver = flagDriver
	}
	return cfg, nil
}

// openDaemon builds the runtime. With device set, the driver session is
// acquired as well; the caller must Close the daemon either way.
func openDaemon(ctx context.Context, device bool) (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// One-shot commands poll on demand.
	cfg.Monitor.Enabled = false

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	if device {
		if err := d.OpenDevice(ctx); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}
