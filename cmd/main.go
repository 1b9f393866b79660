package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/docrag/internal/logger"
	"github.com/xhad/docrag/internal/types"
	cfgPkg "github.com/xhad/docrag/pkg/config"
	"github.com/xhad/docrag/pkg/chunker"
	"github.com/xhad/docrag/pkg/ingest"
	"github.com/xhad/docrag/pkg/llm"
	"github.com/xhad/docrag/pkg/pdftext"
	"github.com/xhad/docrag/pkg/rag"
	"github.com/xhad/docrag/pkg/retrieve"
	"github.com/xhad/docrag/pkg/store"
)

var (
	configPath string
	verbose    bool
	collection string

	config *cfgPkg.Config
)

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "Ask grounded questions about your PDF documents",
	Long: `docrag ingests PDF documents into a vector store and answers questions
using only the retrieved passages, citing the document and page of each one.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := cfgPkg.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Verbose = true
		}
		if collection != "" {
			cfg.Store.Collection = collection
		}
		logger.SetVerbose(cfg.Verbose)
		config = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&collection, "collection", "c", "", "vector store collection")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// app holds the components wired from the loaded config.
type app struct {
	store     *store.Adapter
	ingester  *ingest.Pipeline
	retriever *retrieve.Pipeline
	answerer  *rag.Service
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func validate(cfg *cfgPkg.Config) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(msgs, "; "))
}

// newApp connects the store and embedder. The chat model is only built when
// withChat is set, so ingesting does not need LLM credentials.
func newApp(ctx context.Context, withChat bool) (*app, error) {
	if err := validate(config); err != nil {
		return nil, err
	}

	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	adapter, closeStore, err := store.Open(ctx, store.Config{
		Backend:      config.Store.Backend,
		DatabaseURL:  config.Store.DatabaseURL,
		QdrantURL:    config.Store.QdrantURL,
		QdrantAPIKey: config.Store.QdrantAPIKey,
		ChromemPath:  config.Store.ChromemPath,
		Timeout:      config.Store.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	a.store = adapter
	a.closers = append(a.closers, closeStore)

	provider, err := llm.NewEmbedder(ctx, llm.EmbedderConfig{
		Provider: config.Embedding.Provider,
		Model:    config.Embedding.Model,
		BaseURL:  config.Embedding.BaseURL,
		APIKey:   config.Embedding.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if c, isCloser := provider.(io.Closer); isCloser {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}
	embedder := llm.NewGateway(provider, config.Embedding.BatchSize)

	tokenizer, err := chunker.NewTiktoken(config.Chunking.Encoding)
	if err != nil {
		return nil, err
	}

	a.ingester = ingest.New(pdftext.New(), tokenizer, embedder, adapter, ingest.Options{
		Collection:    config.Store.Collection,
		ChunkTokens:   config.Chunking.ChunkTokens,
		OverlapTokens: config.Chunking.OverlapTokens,
	})
	a.retriever = retrieve.New(embedder, adapter, retrieve.Options{
		Collection: config.Store.Collection,
		TopK:       config.Retrieval.TopK,
		MaxTopK:    config.Retrieval.MaxTopK,
	})

	if withChat {
		chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
			Provider:    config.LLM.Provider,
			Model:       config.LLM.Model,
			BaseURL:     config.LLM.BaseURL,
			APIKey:      config.LLM.APIKey,
			Temperature: config.LLM.Temperature,
			MaxTokens:   config.LLM.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
		}
		a.answerer = rag.New(a.retriever, chatEngine)
	}

	logger.Debug("using %s store, %s embeddings (%s), %s tokenizer, collection %q",
		config.Store.Backend, config.Embedding.Provider, config.Embedding.Model, tokenizer.Encoding(), config.Store.Collection)

	ok = true
	return a, nil
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
