// Command searchctl works with index snapshots offline: it builds a sharded
// index from a JSON Lines file, queries or inspects one on disk, and can
// publish the same file to Kafka for the indexer service. loadtest drives a
// running searcher over HTTP.
//
// Usage:
//
//	searchctl build docs.jsonl --out data/index
//	searchctl query data/index "prefix trees" -n 5
//	searchctl inspect data/index
//	searchctl publish docs.jsonl
//	searchctl loadtest --url http://localhost:8080 -c 20 -d 1m
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/logger"
)

func main() {
	root := newRootCmd()
	root.SetOut(os.Stdout)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "searchctl",
		Short:         "Build, query and inspect trie index snapshots",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup("searchctl", opts.logLevel, "text")
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML or TOML); defaults are used when empty")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	root.AddCommand(
		newBuildCmd(opts),
		newQueryCmd(opts),
		newInspectCmd(),
		newPublishCmd(opts),
		newLoadtestCmd(),
	)
	return root
}

func (o *options) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

// shardCount reports how many shard-N directories dir holds, or 0.
func shardCount(dir string) int {
	matches, _ := filepath.Glob(filepath.Join(dir, "shard-*"))
	n := 0
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			n++
		}
	}
	return n
}

// readDocuments calls fn for every non-blank line of a JSON Lines file of
// document requests. Line numbers start at 1.
func readDocuments(path string, fn func(line int, req *ingestion.DocumentRequest) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var req ingestion.DocumentRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := fn(line, &req); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
