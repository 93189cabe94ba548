// Package main implements the studybuddy CLI for building retrieval indices
// over study material and querying them.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/varivashyap/studybuddy/internal/chunk"
	"github.com/varivashyap/studybuddy/internal/config"
	"github.com/varivashyap/studybuddy/internal/embeddings"
	"github.com/varivashyap/studybuddy/internal/logging"
	"github.com/varivashyap/studybuddy/internal/reranker"
	"github.com/varivashyap/studybuddy/internal/retriever"
	"github.com/varivashyap/studybuddy/internal/telemetry"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "studybuddy",
	Short: "Hybrid retrieval over study material",
	Long: `studybuddy builds hybrid (dense + BM25) retrieval indices over
pre-chunked study material and answers queries against them with rank
fusion and cross-encoder reranking.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/studybuddy/config.yaml)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
}

var indexOut string

// indexCmd builds indices over one or more text files.
var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Build retrieval indices over text files",
	Long: `Build dense and lexical indices over text files. Each file is split
into paragraph chunks (blank-line separated). The built handle is written to
the --out file and the corpus fingerprint is printed.

Examples:
  studybuddy index notes.md --out notes.handle
  studybuddy index ch1.txt ch2.txt --out book.handle`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

var (
	queryHandle string
	queryK      int
)

// queryCmd retrieves against a previously built handle.
var queryCmd = &cobra.Command{
	Use:   "query --handle <file> <question>",
	Short: "Retrieve the most relevant chunks for a question",
	Long: `Load a handle built by "studybuddy index" and retrieve the top
chunks for a question.

Examples:
  studybuddy query --handle notes.handle "what is reciprocal rank fusion"
  studybuddy query --handle notes.handle -k 3 "bm25 length normalization"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	indexCmd.Flags().StringVar(&indexOut, "out", "studybuddy.handle", "output file for the built handle")
	queryCmd.Flags().StringVar(&queryHandle, "handle", "", "handle file built by the index command")
	queryCmd.Flags().IntVarP(&queryK, "top-k", "k", 5, "number of results to return")
	_ = queryCmd.MarkFlagRequired("handle")
}

// setup loads config and constructs the retrieval service.
func setup(ctx context.Context) (*retriever.Service, *zap.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	embedder, err := embeddings.NewProvider(cfg.Embedding, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	rr, err := buildReranker(cfg.Reranker, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	svc, err := retriever.NewService(cfg.Retrieval, embedder, rr, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating retrieval service: %w", err)
	}

	cleanup := func() {
		if err := embedder.Close(); err != nil {
			logger.Warn("closing embedder", zap.Error(err))
		}
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("shutting down telemetry", zap.Error(err))
		}
		_ = logging.Sync(logger)
	}
	return svc, logger, cleanup, nil
}

func buildReranker(cfg config.RerankerConfig, logger *zap.Logger) (reranker.Reranker, error) {
	switch cfg.Provider {
	case "tei":
		rr, err := reranker.NewTEIReranker(cfg.TEI, logger)
		if err != nil {
			return nil, err
		}
		return rr, nil
	case "none":
		return nil, nil
	default:
		return reranker.NewOverlapReranker(), nil
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var chunks []chunk.Chunk
	for _, path := range args {
		fileChunks, err := chunkFile(path)
		if err != nil {
			return err
		}
		chunks = append(chunks, fileChunks...)
	}
	logger.Info("chunked input", zap.Int("files", len(args)), zap.Int("chunks", len(chunks)))

	handle, err := svc.BuildIndices(ctx, chunks)
	if err != nil {
		return fmt.Errorf("building indices: %w", err)
	}
	if err := handle.Save(indexOut); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks\nfingerprint: %s\nhandle: %s\n",
		handle.Len(), handle.Fingerprint(), indexOut)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	handle, err := svc.LoadHandle(ctx, queryHandle)
	if err != nil {
		return fmt.Errorf("loading handle: %w", err)
	}

	results, err := svc.Retrieve(ctx, handle, args[0], queryK)
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no results")
		return nil
	}

	for i, res := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. [%.4f] %s\n   %s\n", i+1, res.Score, res.ChunkID, res.Text)
	}
	return nil
}

// chunkFile splits a text file into blank-line separated paragraph chunks.
func chunkFile(path string) ([]chunk.Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	base := filepath.Base(path)
	var chunks []chunk.Chunk
	for i, para := range strings.Split(string(content), "\n\n") {
		text := strings.TrimSpace(para)
		if text == "" {
			continue
		}
		chunks = append(chunks, chunk.Chunk{
			ID:   fmt.Sprintf("%s#%d", base, i),
			Text: text,
			Source: map[string]interface{}{
				"file":      path,
				"paragraph": i,
			},
		})
	}
	return chunks, nil
}
