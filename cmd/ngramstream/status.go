package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cyaom16/google-ngram-streamer/internal/checkpoint"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint and the shards a scan would still process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ids, err := shardIDs(cfg)
			if err != nil {
				return err
			}

			path := cfg.CheckpointPath()
			cp, err := checkpoint.Load(path)
			if err != nil {
				return err
			}
			todo, resume := checkpoint.Plan(ids, cp)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Checkpoint: %s\n", path)
			if cp == nil {
				fmt.Fprintln(w, "Position:   none (fresh start)")
			} else {
				fmt.Fprintf(w, "Position:   shard %s, line %d\n", cp.Shard, cp.Line)
				fmt.Fprintf(w, "Completed:  %d shards\n", len(cp.Completed))
			}
			fmt.Fprintf(w, "Remaining:  %d of %d shards\n", len(todo), len(ids))
			if len(todo) > 0 {
				fmt.Fprintf(w, "Next:       %s", todo[0])
				if skip := resume.SkipFor(todo[0]); skip > 0 {
					fmt.Fprintf(w, " (after line %d)", skip)
				}
				fmt.Fprintln(w)
				fmt.Fprintf(w, "To do:      %s\n", preview(todo, 10))
			}
			return nil
		},
	}
}

// preview joins the first n ids and notes how many were left out.
func preview(ids []string, n int) string {
	if len(ids) <= n {
		return strings.Join(ids, " ")
	}
	return fmt.Sprintf("%s ... (%d more)", strings.Join(ids[:n], " "), len(ids)-n)
}
