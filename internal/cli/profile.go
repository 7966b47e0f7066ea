package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/apuctl/apuctl/internal/app"
	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/session"
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")

	profileCmd.AddCommand(profileListCmd, profileShowCmd, profileSaveCmd,
		profileDeleteCmd, profileImportCmd, profileExportCmd)
	rootCmd.AddCommand(applyCmd, profileCmd, historyCmd)
}

var historyLimit int

// ─── apply ──────────────────────────────────────────────────────────────────

var applyCmd = &cobra.Command{
	Use:   "apply PROFILE|FILE",
	Short: "Apply a saved profile or a profile file",
	Long: `Apply writes every limit of a profile in a fixed order: power limits,
time windows, temperature limits, then current limits. The first failed
write stops the run; earlier writes stay applied and are listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer d.Close()

	var rec domain.ApplyRecord
	if isProfileFile(args[0]) {
		p, perr := app.ReadProfileFile(args[0])
		if perr != nil {
			return perr
		}
		rec, err = d.Profiles.Apply(cmd.Context(), p)
	} else {
		rec, err = d.Profiles.ApplyNamed(cmd.Context(), args[0])
	}

	out := cmd.OutOrStdout()
	for _, name := range rec.Applied {
		fmt.Fprintf(out, "  ✓ %s\n", name)
	}
	if err != nil {
		var ae *session.ApplyError
		if errors.As(err, &ae) && ae.Index >= 0 {
			fmt.Fprintf(out, "  ✗ %s\n", ae.Param)
		}
		return err
	}
	fmt.Fprintf(out, "Applied %q (%d writes)\n", rec.Profile, len(rec.Applied))
	return nil
}

// isProfileFile treats an existing path with a known extension as a file.
func isProfileFile(arg string) bool {
	if _, err := app.FormatFromPath(arg); err != nil {
		return false
	}
	_, err := os.Stat(arg)
	return err == nil
}

// ─── profile ────────────────────────────────────────────────────────────────

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved profiles",
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved profiles",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer d.Close()

		list, err := d.Profiles.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No profiles saved. Run 'apuctl profile import <file>' to add one.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSETTINGS\tUPDATED")
		for _, p := range list {
			fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, len(p.Settings), p.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a profile's settings in apply order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer d.Close()

		p, err := d.Profiles.Get(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name:     %s\n", p.Name)
		fmt.Fprintf(out, "Updated:  %s\n", p.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, name := range p.OrderedNames() {
			param := domain.MustParameter(name)
			fmt.Fprintf(w, "  %s\t%d\t%s\n", name, p.Settings[name], param.WriteUnit)
		}
		return w.Flush()
	},
}

var profileSaveCmd = &cobra.Command{
	Use:   "save NAME PARAM=VALUE...",
	Short: "Save a profile from the command line",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := parseSettings(args[1:])
		if err != nil {
			return err
		}

		d, err := openDaemon(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Profiles.Save(domain.Profile{Name: args[0], Settings: settings}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %q\n", args[0])
		return nil
	},
}

// parseSettings parses PARAM=VALUE pairs.
func parseSettings(pairs []string) (map[string]uint32, error) {
	settings := make(map[string]uint32, len(pairs))
	for _, kv := range pairs {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q is not PARAM=VALUE", domain.ErrProfileInvalid, kv)
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: value %q is not an unsigned 32-bit integer", domain.ErrProfileInvalid, name, raw)
		}
		settings[name] = uint32(v)
	}
	return settings, nil
}

var profileDeleteCmd = &cobra.Command{
	Use:     "delete NAME",
	Aliases: []string{"rm"},
	Short:   "Delete a saved profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Profiles.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", args[0])
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a YAML or TOML profile file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer d.Close()

		p, err := d.Profiles.Import(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %q (%d settings)\n", p.Name, len(p.Settings))
		return nil
	},
}

var profileExportCmd = &cobra.Command{
	Use:   "export NAME FILE",
	Short: "Export a profile as YAML or TOML (by extension)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Profiles.Export(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[1])
		return nil
	},
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent profile applications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer d.Close()

		hist, err := d.Profiles.History(historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tPROFILE\tWRITES\tRESULT")
		for _, r := range hist {
			result := "ok"
			if !r.Succeeded() {
				result = fmt.Sprintf("failed at %s: %s", r.FailedParam, r.Error)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				r.AppliedAt.Local().Format("2006-01-02 15:04:05"), r.Profile, len(r.Applied), result)
		}
		return w.Flush()
	},
}
