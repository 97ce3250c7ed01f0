package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"medassess/internal/app"
	"medassess/internal/config"
	"medassess/internal/domain"
	"medassess/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medassess",
		Short: "Medical evidence analysis against the statutory fitness schedule",
	}

	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(scoreCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp bootstraps config, logging and the wired application, then hands
// control to the command body.
func withApp(fn func(ctx context.Context, a *app.Application) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the pending-document analysis worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Application) error {
				return a.Run(ctx)
			})
		},
	}
}

func submitCmd() *cobra.Command {
	var owner, title, text, sourceRef string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Register a new document or questionnaire text",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" && sourceRef == "" {
				return fmt.Errorf("either --text or --source is required")
			}
			return withApp(func(ctx context.Context, a *app.Application) error {
				var (
					doc domain.Document
					err error
				)
				if text != "" {
					doc, err = a.Service().SubmitText(ctx, owner, title, text)
				} else {
					doc, err = a.Service().SubmitDocument(ctx, owner, title, sourceRef)
				}
				if err != nil {
					return err
				}
				fmt.Printf("Submitted document %s (%s)\n", doc.ID, doc.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner identifier")
	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&text, "text", "", "questionnaire or free-form text")
	cmd.Flags().StringVar(&sourceRef, "source", "", "reference to externally stored document bytes")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var imagePath, text string

	cmd := &cobra.Command{
		Use:   "analyze [document-id]",
		Short: "Run one analysis of an image file or text for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (imagePath == "") == (text == "") {
				return fmt.Errorf("exactly one of --image or --text is required")
			}
			return withApp(func(ctx context.Context, a *app.Application) error {
				var (
					result domain.ExtractionResult
					err    error
				)
				if imagePath != "" {
					raw, readErr := os.ReadFile(imagePath)
					if readErr != nil {
						return fmt.Errorf("read image: %w", readErr)
					}
					encoded := base64.StdEncoding.EncodeToString(raw)
					result, err = a.Service().AnalyzeImage(ctx, args[0], encoded, imageMIME(imagePath))
				} else {
					result, err = a.Service().AnalyzeText(ctx, args[0], text)
				}
				if err != nil {
					return err
				}
				printResult(result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "path to a document scan or photo")
	cmd.Flags().StringVar(&text, "text", "", "free-form text to analyze")
	return cmd
}

func scoreCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "score [article-number]",
		Short: "Show the aggregated confidence split and action plan for an article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Application) error {
				score, err := a.Service().ScoreArticle(ctx, owner, args[0])
				if err != nil {
					return err
				}
				plan, err := a.Service().ActionPlan(ctx, owner, args[0])
				if err != nil {
					return err
				}

				fmt.Printf("Article %s (%d relevant documents)\n", args[0], score.RelevantCount)
				fmt.Printf("  applies:           %d%%\n", score.Applies)
				fmt.Printf("  does not apply:    %d%%\n", score.DoesNotApply)
				fmt.Printf("  insufficient data: %d%%\n", score.InsufficientData)
				if plan != "" {
					fmt.Printf("\n%s\n", plan)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner identifier")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func printResult(result domain.ExtractionResult) {
	if result.PrimaryArticleNumber == "" {
		fmt.Println("No article matched.")
	} else {
		fmt.Printf("Article %s, category %s (%d%%)\n",
			result.PrimaryArticleNumber, result.Category, result.Confidence)
	}
	if result.Explanation != "" {
		fmt.Printf("Explanation: %s\n", result.Explanation)
	}
	for _, rec := range result.Recommendations {
		fmt.Printf("  - %s\n", rec)
	}
}

func imageMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
