package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
)

func newBuildCmd(opts *options) *cobra.Command {
	var (
		out    string
		shards int
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "build <docs.jsonl>",
		Short: "Index a JSON Lines file and write one snapshot per shard",
		Long: `Reads one {"document_id": ..., "fields": {...}} object per line, indexes
it into a sharded index under --out and flushes a snapshot for every shard.
Invalid or duplicate documents are reported and skipped unless --strict.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			idxCfg := cfg.Index
			idxCfg.DataDir = out
			if shards > 0 {
				idxCfg.Shards = shards
			}
			router, err := shard.NewRouter(idxCfg, nil)
			if err != nil {
				return err
			}
			defer router.Close()

			indexed, skipped := 0, 0
			err = readDocuments(args[0], func(line int, req *ingestion.DocumentRequest) error {
				err := validator.ValidateDocumentRequest(req, idxCfg.Fields)
				if err == nil {
					err = router.IndexDocument(req.DocumentID, indexer.Document(req.Fields))
				}
				var vErr *validator.ValidationError
				switch {
				case err == nil:
					indexed++
					return nil
				case strict:
					return fmt.Errorf("line %d: %w", line, err)
				case errors.As(err, &vErr), errors.Is(err, apperrors.ErrDocumentExists), errors.Is(err, apperrors.ErrFieldAccess):
					skipped++
					cmd.PrintErrf("line %d: skipped: %v\n", line, err)
					return nil
				default:
					return fmt.Errorf("line %d: %w", line, err)
				}
			})
			if err != nil {
				return err
			}
			if err := router.FlushAll(); err != nil {
				return fmt.Errorf("writing snapshots: %w", err)
			}
			cmd.Printf("indexed %d documents into %d shards under %s (%d skipped)\n", indexed, idxCfg.Shards, out, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "data/index", "output directory")
	cmd.Flags().IntVar(&shards, "shards", 0, "number of shards (default from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on the first rejected document")
	return cmd
}
