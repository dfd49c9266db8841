package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"eventtriage/pkg/models"
)

type scoreOutput struct {
	Analysis       models.ScoreResult `json:"analysis"`
	Recommendation string             `json:"recommendation"`
}

func newScoreCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [event.json]",
		Short: "Score a single event read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
	}

	cmd.RunE = withApp(func(cmd *cobra.Command, a *app, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open event file: %w", err)
			}
			defer f.Close()
			r = f
		}

		var ev models.Event
		if err := json.NewDecoder(r).Decode(&ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		res := a.svc.ScoreEvent(ev)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(scoreOutput{Analysis: res, Recommendation: a.svc.Calculator().Recommendation(res.Score, ev.AttackType)})
	})
	return cmd
}
