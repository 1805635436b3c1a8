package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/kafka"
)

func newPublishCmd(opts *options) *cobra.Command {
	var (
		batchSize int
		replace   bool
	)
	cmd := &cobra.Command{
		Use:   "publish <docs.jsonl>",
		Short: "Publish a JSON Lines file as document events to Kafka",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if batchSize < 1 {
				batchSize = 1
			}
			op := ingestion.OpIndex
			if replace {
				op = ingestion.OpReplace
			}
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
			defer producer.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			batch := make([]kafka.Event, 0, batchSize)
			sent := 0
			flush := func() error {
				if err := producer.PublishBatch(ctx, batch); err != nil {
					return err
				}
				sent += len(batch)
				batch = batch[:0]
				return nil
			}
			err = readDocuments(args[0], func(line int, req *ingestion.DocumentRequest) error {
				if err := validator.ValidateDocumentRequest(req, cfg.Index.Fields); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				batch = append(batch, kafka.Event{
					Key:     req.DocumentID,
					Headers: map[string]string{"op": string(op)},
					Value: ingestion.DocumentEvent{
						Op:         op,
						DocumentID: req.DocumentID,
						Fields:     req.Fields,
						EmittedAt:  time.Now().UTC(),
					},
				})
				if len(batch) >= batchSize {
					return flush()
				}
				return nil
			})
			if err != nil {
				return err
			}
			if err := flush(); err != nil {
				return err
			}
			cmd.Printf("published %d %s events to %s\n", sent, op, cfg.Kafka.Topics.DocumentEvents)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch", 100, "events per Kafka write")
	cmd.Flags().BoolVar(&replace, "replace", false, "publish replace events instead of index events")
	return cmd
}
