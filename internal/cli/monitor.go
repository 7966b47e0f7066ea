package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/monitor"
	"github.com/apuctl/apuctl/internal/session"
)

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "Poll interval (overrides config)")
	monitorCmd.Flags().IntVar(&monitorCount, "count", 0, "Stop after N samples (0 = until interrupted)")
	rootCmd.AddCommand(monitorCmd)
}

var (
	monitorInterval time.Duration
	monitorCount    int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [PARAM...]",
	Short: "Poll telemetry and print readings",
	RunE:  runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	cfg := d.Config.MonitorSettings()
	cfg.RefreshTable = d.Session.State() == session.StateTableReady
	if monitorInterval > 0 {
		cfg.Interval = monitorInterval
	}
	if len(args) > 0 {
		cfg.Params = args
	}
	p, err := monitor.NewPoller(d.Session, cfg, d.Log)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for n := 0; monitorCount == 0 || n < monitorCount; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		printSample(cmd.OutOrStdout(), p.Poll(ctx))
	}
	return nil
}

func printSample(out io.Writer, s domain.Sample) {
	keys := make([]string, 0, len(s.Readings)+len(s.Errors))
	for k := range s.Readings {
		keys = append(keys, k)
	}
	for k := range s.Errors {
		if _, ok := s.Readings[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fmt.Fprintf(out, "── %s ──\n", s.TakenAt.Format("15:04:05.000"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		if msg, ok := s.Errors[k]; ok {
			fmt.Fprintf(w, "%s\terror\t%s\n", k, msg)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", k, formatReading(s.Readings[k]), readUnit(k))
	}
	w.Flush()
}

// readUnit resolves "core_clk/3" style keys to their parameter's unit.
func readUnit(key string) string {
	for i := range key {
		if key[i] == '/' {
			key = key[:i]
			break
		}
	}
	if p, ok := domain.LookupParameter(key); ok {
		return string(p.ReadUnit)
	}
	return ""
}
