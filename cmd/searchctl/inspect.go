package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/segment"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <index-dir>",
		Short: "Print the header of the newest snapshot of every shard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := shardCount(args[0])
			if n == 0 {
				return fmt.Errorf("no shard directories under %s", args[0])
			}
			for i := 0; i < n; i++ {
				dir := filepath.Join(args[0], fmt.Sprintf("shard-%d", i))
				names, err := segment.List(dir)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					cmd.Printf("shard-%d: no snapshots\n", i)
					continue
				}
				r, err := segment.OpenReader(filepath.Join(dir, names[len(names)-1]))
				if err != nil {
					return fmt.Errorf("shard-%d: %w", i, err)
				}
				h := r.Header()
				cmd.Printf("shard-%d: %s (v%d, written %s)\n", i, r.Name(), h.Version, time.Unix(h.CreatedAt, 0).UTC().Format(time.RFC3339))
				cmd.Printf("  documents=%d terms=%d fields=%d pending_removals=%d snapshots_kept=%d\n",
					r.DocCount(), r.Terms(), r.FieldCount(), len(r.PendingRemovals()), len(names))
				r.Close()
			}
			return nil
		},
	}
}
