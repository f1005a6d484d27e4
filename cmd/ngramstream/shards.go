package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyaom16/google-ngram-streamer/pkg/corpus"
)

func newShardsCmd(g *globalFlags) *cobra.Command {
	var urls bool

	cmd := &cobra.Command{
		Use:   "shards",
		Short: "Print the shard identifiers of the configured corpus",
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

			w := cmd.OutOrStdout()
			for _, id := range ids {
				if !urls {
					fmt.Fprintln(w, id)
					continue
				}
				u, err := corpus.URL(cfg.SourceURL, corpus.FileName(cfg.Language, cfg.NgramSize, cfg.Version, id))
				if err != nil {
					return withCode(ExitInvalidArgs, err)
				}
				fmt.Fprintf(w, "%s\t%s\n", id, u)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&urls, "urls", false, "Also print each shard's download URL")
	cmd.Flags().StringVar(&g.override.SourceURL, "source", "", "Base URL shards are downloaded from")
	return cmd
}
