package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/pkg/chunker"
	"github.com/xhad/docrag/pkg/ingest"
)

var (
	ingestDocID         string
	ingestChunkTokens   int
	ingestOverlapTokens int
	ingestReplace       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>...",
	Short: "Extract, chunk, embed and store PDF documents",
	Long: `Ingests one or more PDF files. Each file becomes one document whose id
defaults to its file name. Re-ingesting a document overwrites its chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <doc_id>",
	Short: "Remove every chunk of a document from the collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ingester.Delete(cmd.Context(), config.Store.Collection, args[0]); err != nil {
			return err
		}
		color.Green("✓ Deleted %s from %s", args[0], config.Store.Collection)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocID, "doc-id", "", "document id (single file only)")
	addChunkFlags(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestReplace, "replace", false, "delete the document's existing chunks first")
	rootCmd.AddCommand(ingestCmd, deleteCmd)
}

func addChunkFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&ingestChunkTokens, "chunk-tokens", 0, "tokens per chunk (default from config)")
	cmd.Flags().IntVar(&ingestOverlapTokens, "overlap-tokens", 0, "tokens shared by adjacent chunks (default from config)")
}

// chunkSettings starts from the configured chunking and applies only the
// flags that were given, so an explicit 0 is validated rather than defaulted.
func chunkSettings(cmd *cobra.Command) (int, int, error) {
	chunkTokens := config.Chunking.ChunkTokens
	overlapTokens := config.Chunking.OverlapTokens
	if cmd.Flags().Changed("chunk-tokens") {
		chunkTokens = ingestChunkTokens
	}
	if cmd.Flags().Changed("overlap-tokens") {
		overlapTokens = ingestOverlapTokens
	}
	if err := chunker.Validate(chunkTokens, overlapTokens); err != nil {
		return 0, 0, err
	}
	return chunkTokens, overlapTokens, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestDocID != "" && len(args) > 1 {
		return fmt.Errorf("--doc-id can only be used with a single file")
	}
	chunkTokens, overlapTokens, err := chunkSettings(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := newDocBar(len(args))
	var failed int
	for _, path := range args {
		bar.start(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		docID := ingestDocID
		if docID == "" {
			docID = ingest.DocIDFromFilename(path)
		}

		result, err := a.ingester.Ingest(cmd.Context(), ingest.Request{
			PDF:             data,
			DocID:           docID,
			ChunkTokens:     chunkTokens,
			OverlapTokens:   overlapTokens,
			ReplaceExisting: ingestReplace,
		})
		bar.done()
		if err != nil {
			if isCancelled(err) {
				return err
			}
			failed++
			color.Red("\n✗ %s: %v", path, err)
			continue
		}
		printIngestResult(result)
	}
	bar.finish()

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(args))
	}
	return nil
}

func printIngestResult(result models.IngestResult) {
	if result.Status == models.StatusNoTextExtracted {
		color.Yellow("\n! %s: no text extracted from %d pages (scanned PDF?)", result.DocID, result.Pages)
		return
	}
	color.Green("\n✓ %s: %d chunks from %d pages", result.DocID, result.Chunks, result.Pages)
}
