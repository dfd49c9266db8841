package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eventtriage/internal/filter"
	"eventtriage/pkg/models"
)

func newRescoreCmd(withApp appRunner) *cobra.Command {
	var (
		req         filter.Request
		start, end  string
		unprocessed bool
	)

	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Recompute and store priority scores for matching events",
		Long: `rescore runs every matching event through the configured calculator and
stores the new score and level. Use it after changing the scheme, weights or
scoring tables.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringSliceVar(&req.AttackTypes, "attack-types", nil, "Only events with these attack types")
	cmd.Flags().StringSliceVar(&req.PriorityLevels, "priority-levels", nil, "Only events currently at these levels")
	cmd.Flags().StringVar(&req.SourceIP, "source-ip", "", "Only events from this source IP")
	cmd.Flags().StringVar(&start, "start-date", "", "Lower timestamp bound (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&end, "end-date", "", "Upper timestamp bound, inclusive (YYYY-MM-DD or RFC3339)")
	cmd.Flags().BoolVar(&unprocessed, "unprocessed-only", false, "Skip events already marked processed")

	cmd.RunE = withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		var err error
		if req.StartDate, err = parseFlagTime("start-date", start, false); err != nil {
			return err
		}
		if req.EndDate, err = parseFlagTime("end-date", end, true); err != nil {
			return err
		}
		if unprocessed {
			f := false
			req.IsProcessed = &f
		}

		n, err := a.svc.Rescore(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rescored %d events\n", n)
		return nil
	})
	return cmd
}

// parseFlagTime accepts a date or a timestamp. A date used as an upper bound
// means the end of that day.
func parseFlagTime(name, v string, upper bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, time.UTC); err == nil {
		if upper {
			t = t.Add(24*time.Hour - time.Second)
		}
		return &t, nil
	}
	for _, layout := range []string{time.RFC3339, models.TimeLayout} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s %q", name, v)
}
