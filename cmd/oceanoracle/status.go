package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/oceanoracle/internal/lifecycle"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached data and stored models per region",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := buildStack(cfg, false)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), st.manager.StatusAll(), time.Now())
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <region>",
	Short: "Remove the cached data and models of a region",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := buildStack(cfg, false)
		if err != nil {
			return err
		}
		if err := st.manager.Clear(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", args[0])
		return nil
	},
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List configured regions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := buildStack(cfg, false)
		if err != nil {
			return err
		}
		printRegions(cmd.OutOrStdout(), st.registry.All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, clearCmd, regionsCmd)
}

func printRegions(w io.Writer, regions []models.RegionDescriptor) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tLAT\tLON\tPFZ ZONES")
	for _, r := range regions {
		b := r.BoundingBox
		fmt.Fprintf(tw, "%s\t%s\t%g..%g\t%g..%g\t%d\n", r.Key, r.DisplayName, b.LatMin, b.LatMax, b.LonMin, b.LonMax, len(r.FishingZones))
	}
	tw.Flush()
}

func printStatus(w io.Writer, statuses []lifecycle.Status, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tCACHE\tRECORDS\tFETCHED\tEXPIRES\tMODELS")
	for _, s := range statuses {
		cache, records, fetched, expires := "absent", "-", "-", "-"
		if s.Cache.Cached {
			cache = s.Cache.Freshness.String()
			records = humanize.Comma(int64(s.Cache.RecordCount))
			fetched = humanize.RelTime(s.Cache.FetchedAt, now, "ago", "from now")
			expires = humanize.RelTime(s.Cache.ExpiresAt, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.RegionKey, cache, records, fetched, expires, modelSummary(s.Models))
	}
	tw.Flush()
}

func modelSummary(ms map[models.Parameter]lifecycle.ModelStatus) string {
	if len(ms) == 0 {
		return "none"
	}
	params := make([]string, 0, len(ms))
	for p := range ms {
		params = append(params, string(p))
	}
	sort.Strings(params)

	out := ""
	for i, p := range params {
		m := ms[models.Parameter(p)]
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s R²=%.3f", p, m.Metrics.R2)
		if m.Stale {
			out += " (stale)"
		}
	}
	return out
}
