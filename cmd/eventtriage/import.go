package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"eventtriage/internal/logger"
	"eventtriage/pkg/models"
)

func newImportCmd(withApp appRunner) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "import [events.jsonl]",
		Short: "Score and store events from a JSON Lines file or stdin",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "Events per ingest batch")

	cmd.RunE = withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if batchSize <= 0 {
			return fmt.Errorf("invalid --batch-size %d", batchSize)
		}
		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open events file: %w", err)
			}
			defer f.Close()
			r = f
		}

		var (
			batch    = make([]models.Event, 0, batchSize)
			imported int
			skipped  int
			lineNo   int
		)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			ids, err := a.svc.Ingest(cmd.Context(), batch)
			imported += len(ids)
			batch = batch[:0]
			return err
		}

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				skipped++
				logger.Warnf("Skipping line %d: %v", lineNo, err)
				continue
			}
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read events: %w", err)
		}
		if err := flush(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d events, skipped %d\n", imported, skipped)
		return nil
	})
	return cmd
}
