package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/docrag/pkg/rag"
)

var (
	askDocID string
	askTopK  int
)

var askCmd = &cobra.Command{
	Use:   `ask "<question>"`,
	Short: "Answer one question from the ingested documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		return answer(cmd.Context(), a, args[0])
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with your documents interactively",
	Long: `Starts an interactive session. Paste a URL to crawl it for PDF links and
ingest them before asking about them.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	for _, c := range []*cobra.Command{askCmd, chatCmd} {
		c.Flags().StringVar(&askDocID, "doc-id", "", "only search this document")
		c.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	}
	rootCmd.AddCommand(askCmd, chatCmd)
}

// answer streams a grounded answer to stdout, sources first.
func answer(ctx context.Context, a *app, question string) error {
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	spinner := newSpinner(" Searching documents...")
	stopSpinner := func() {
		if spinner != nil {
			_ = spinner.Finish()
			spinner = nil
		}
	}
	defer stopSpinner()

	return a.answerer.Answer(ctx, rag.Question{
		Message:    question,
		Collection: config.Store.Collection,
		DocID:      askDocID,
		TopK:       askTopK,
	}, func(e rag.Event) error {
		stopSpinner()
		switch e.Type {
		case rag.EventCitations:
			if len(e.Citations) == 0 {
				color.Yellow("No matching passages found.")
				break
			}
			color.Blue("Sources:")
			for _, c := range e.Citations {
				fmt.Printf("  [%d] %s p.%d %s\n", c.Index, c.DocID, c.Page, color.HiBlackString("(%.3f)", c.Score))
			}
			fmt.Println()
			assistantPrompt("Assistant: ")
		case rag.EventDelta:
			fmt.Print(e.Delta)
		case rag.EventDone:
			fmt.Println()
		}
		return nil
	})
}

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	color.Cyan("\nChat with your documents (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.ToLower(query) == "exit" {
			break
		}
		if query == "" {
			continue
		}

		if url := urlRegex.FindString(query); url != "" {
			color.Blue("\nDetected URL: %s", url)
			if err := crawlAndIngest(ctx, a, url); err != nil {
				if isCancelled(err) {
					return nil
				}
				color.Red("Failed to ingest %s: %v", url, err)
				continue
			}
			if query == url {
				continue
			}
		}

		fmt.Println()
		if err := answer(ctx, a, query); err != nil {
			if isCancelled(err) {
				return nil
			}
			color.Red("Error: %v", err)
		}
	}
	return scanner.Err()
}
