package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/shard"
)

func newQueryCmd(opts *options) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query <index-dir> <text>",
		Short: "Run a BM25 query against snapshots on disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			idxCfg := cfg.Index
			idxCfg.DataDir = args[0]
			n := shardCount(args[0])
			if n == 0 {
				return fmt.Errorf("no shard directories under %s", args[0])
			}
			idxCfg.Shards = n
			router, err := shard.NewRouter(idxCfg, nil)
			if err != nil {
				return err
			}
			defer router.Close()

			result, err := router.Search(context.Background(), args[1], limit)
			if err != nil {
				return err
			}
			if asJSON {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal results: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}
			if len(result.Results) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			cmd.Printf("%d hits, showing %d\n", result.TotalHits, len(result.Results))
			for i, r := range result.Results {
				cmd.Printf("  [%d] %s (%.4f)\n", i+1, r.DocID, r.Score)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}
