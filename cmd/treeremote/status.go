package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/treeremote/internal/format"
	"github.com/dokzlo13/treeremote/internal/reconcile"
	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/tree"
)

var weekdayNames = [schedule.DaysPerWeek]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func newStatusCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch the tree state once and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			loc, err := cfg.Display.Location()
			if err != nil {
				return err
			}

			client := tree.NewClient(cfg.Tree.URL, cfg.Tree.Timeout.Duration(), cfg.Tree.RateLimitRPS)
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Tree.Timeout.Duration())
			defer cancel()

			if err := client.Health(ctx); err != nil {
				return fmt.Errorf("tree server unhealthy: %w", err)
			}

			rec := reconcile.New(client, nil, format.New(format.ParseClock(cfg.Display.Clock), loc), 0)
			view, err := rec.Refresh(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			printView(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full view as JSON")

	return cmd
}

func printView(w io.Writer, view reconcile.ViewModel) {
	fmt.Fprintln(w, view.Status)
	fmt.Fprintf(w, "Program: %s\n", programName(view))
	fmt.Fprintln(w, view.Speed.Label)
	fmt.Fprintf(w, "%s  %s\n", view.Brightness.BodyLabel, view.Brightness.StarLabel)
	fmt.Fprintln(w, view.Countdown)
	fmt.Fprintln(w, "Schedule:")
	for i, b := range view.Schedule.Blocks {
		state := "on "
		if !b.Enabled {
			state = "off"
		}
		fmt.Fprintf(w, "  %d. [%s] %s-%s %s\n", i+1, state, b.StartHHMM, b.EndHHMM, dayList(b.Days))
	}
	fmt.Fprintln(w, view.Schedule.Hint)
	fmt.Fprintf(w, "Updated %s\n", view.UpdatedAt.Format(time.TimeOnly))
}

func programName(view reconcile.ViewModel) string {
	for _, p := range view.Programs {
		if p.ID == view.ProgramID && p.Name != "" {
			return p.Name
		}
	}
	if view.ProgramID == "" {
		return "-"
	}
	return view.ProgramID
}

func dayList(days schedule.Days) string {
	if days == nil {
		return "every day"
	}
	if len(days) == 0 {
		return "no days"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, weekdayNames[d])
	}
	return strings.Join(names, ",")
}
