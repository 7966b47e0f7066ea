package cli

import (
	"fmt"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/session"
)

func init() {
	getCmd.Flags().IntVar(&getCore, "core", -1, "Core index for per-core parameters")
	tableCmd.Flags().BoolVar(&tableValues, "values", false, "Print every table slot")

	rootCmd.AddCommand(infoCmd, paramsCmd, getCmd, setCmd, tableCmd)
}

var (
	getCore     int
	tableValues bool
)

// ─── info ───────────────────────────────────────────────────────────────────

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the detected CPU family and driver state",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer d.Close()

	out := cmd.OutOrStdout()
	fam := d.Session.Family()
	fmt.Fprintf(out, "Driver:       %s\n", d.Session.Driver())
	fmt.Fprintf(out, "Family:       %s (%d)\n", fam, int(fam))
	fmt.Fprintf(out, "Supported:    %t\n", fam.Supported())
	if v, err := d.Session.InterfaceVersion(cmd.Context()); err == nil {
		fmt.Fprintf(out, "BIOS IF:      %d\n", v)
	}
	if d.Session.State() == session.StateTableReady {
		if err := d.Session.Refresh(cmd.Context()); err != nil {
			fmt.Fprintf(out, "Refresh:      failed (%v)\n", err)
		}
	}
	if snap, err := d.Session.TableSnapshot(); err == nil {
		fmt.Fprintf(out, "Table:        0x%x (%d bytes, %d values)\n", snap.Version, snap.Size, snap.Len())
	} else {
		fmt.Fprintf(out, "Table:        unavailable (%v)\n", err)
	}
	fmt.Fprintf(out, "State:        %s\n", d.Session.State())
	return nil
}

// ─── params ─────────────────────────────────────────────────────────────────

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "List every known parameter",
	Args:  cobra.NoArgs,
	RunE:  runParams,
}

func runParams(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tACCESS\tGROUP\tREAD\tWRITE\tDESCRIPTION")
	for _, p := range domain.Parameters() {
		name := p.Name
		if p.PerCore {
			name += "[core]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			name, p.Access, groupLabel(p), unitLabel(p.ReadUnit), unitLabel(p.WriteUnit), p.Description)
	}
	return w.Flush()
}

func groupLabel(p domain.Parameter) string {
	if !p.Writable() {
		return "-"
	}
	return p.Group.String()
}

func unitLabel(u domain.Unit) string {
	if u == domain.UnitNone {
		return "-"
	}
	return string(u)
}

// ─── get / set ──────────────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get NAME...",
	Short: "Read one or more parameters",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	params := make([]domain.Parameter, len(args))
	for i, name := range args {
		p, ok := domain.LookupParameter(name)
		if !ok {
			return fmt.Errorf("unknown parameter %q (see 'apuctl params')", name)
		}
		params[i] = p
	}

	d, err := openDaemon(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer d.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, p := range params {
		var v float64
		if p.PerCore {
			core := getCore
			if core < 0 {
				core = 0
			}
			v, err = d.Session.GetCore(cmd.Context(), p, core)
		} else {
			v, err = d.Session.Get(cmd.Context(), p)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, formatReading(v), p.ReadUnit)
	}
	return w.Flush()
}

var setCmd = &cobra.Command{
	Use:   "set NAME VALUE",
	Short: "Write a limit (mW, mA, s or °C)",
	Args:  cobra.ExactArgs(2),
	RunE:  runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	p, ok := domain.LookupParameter(args[0])
	if !ok {
		return fmt.Errorf("unknown parameter %q (see 'apuctl params')", args[0])
	}
	value, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("value %q: must be an integer in %s", args[1], unitLabel(p.WriteUnit))
	}

	d, err := openDaemon(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Session.Set(cmd.Context(), p, value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s set to %d %s\n", p.Name, value, p.WriteUnit)
	return nil
}

// formatReading prints driver readings; NaN means the getter failed.
func formatReading(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// ─── table ──────────────────────────────────────────────────────────────────

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Refresh and dump the power metrics table",
	Args:  cobra.NoArgs,
	RunE:  runTable,
}

func runTable(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Session.Refresh(cmd.Context()); err != nil {
		return err
	}
	snap, err := d.Session.TableSnapshot()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Version:  0x%x\n", snap.Version)
	fmt.Fprintf(out, "Size:     %d bytes (%d values)\n", snap.Size, snap.Len())
	if !tableValues {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tOFFSET\tVALUE")
	for i, v := range snap.Values {
		fmt.Fprintf(w, "%d\t0x%04x\t%s\n", i, i*4, formatReading(v))
	}
	return w.Flush()
}
