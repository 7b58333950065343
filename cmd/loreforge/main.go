// Command loreforge generates original mythology documents from the
// terminal: pick a world configuration, stream the myth as it is written,
// and archive the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/engine"
	"github.com/loreforge/loreforge/internal/myth"
	"github.com/loreforge/loreforge/internal/provider"
	"github.com/loreforge/loreforge/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loreforge",
		Short:         "Generate original mythology documents with an LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenerateCmd(), newListCmd())
	return root
}

type generateFlags struct {
	selections map[string]string
	custom     []string
	mood       string
	outDir     string
	save       bool
	verbose    bool
}

func newGenerateCmd() *cobra.Command {
	flags := generateFlags{selections: make(map[string]string)}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a complete mythology document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), flags)
		},
	}

	for _, cat := range myth.Categories() {
		name := string(cat)
		flags.selections[name] = ""
		cmd.Flags().String(name, "", fmt.Sprintf("world %s selection (required)", name))
		_ = cmd.MarkFlagRequired(name)
	}
	cmd.Flags().StringArrayVar(&flags.custom, "custom", nil,
		"custom concept per category, as category=description (repeatable)")
	cmd.Flags().StringVar(&flags.mood, "mood", "mythic", "tone of the mythology")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "archive directory (defaults to config output_dir)")
	cmd.Flags().BoolVar(&flags.save, "save", true, "archive the finished document")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	// Flag values land after parsing; re-read them in PreRun.
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for _, cat := range myth.Categories() {
			v, err := cmd.Flags().GetString(string(cat))
			if err != nil {
				return err
			}
			flags.selections[string(cat)] = v
		}
		return nil
	}
	return cmd
}

func runGenerate(ctx context.Context, flags generateFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.outDir != "" {
		cfg.OutputDir = flags.outDir
	}

	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	req, err := buildRequest(flags)
	if err != nil {
		return err
	}

	backend, err := provider.New(cfg.Provider)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := make(chan string, 16)
	eng := engine.New(backend, cfg.Limits, cfg.Thresholds,
		engine.WithLogger(logger),
		engine.WithCallbacks(engine.Callbacks{
			OnProgress: func(snippet string) {
				select {
				case progress <- snippet:
				default:
				}
			},
			OnRecovery: func(status myth.RecoveryStatus) {
				if !status.Resolved {
					fmt.Fprintf(os.Stderr, "\nsome sections could not be completed: missing %v, thin %v\n",
						status.Missing, status.Incomplete)
				}
			},
		}),
	)

	var res *engine.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(progress)
		var gerr error
		res, gerr = eng.Generate(gctx, req)
		return gerr
	})
	g.Go(func() error {
		for snippet := range progress {
			fmt.Fprintf(os.Stderr, "  … %s\n", snippet)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, engine.ErrCancelled) {
			return errors.New("generation interrupted")
		}
		return err
	}

	printDocument(os.Stdout, res)

	if flags.save {
		archive := storage.NewArchive(cfg.OutputDir)
		name, err := archive.Save(res.Document)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\nsaved to %s\n", name)
	}
	return nil
}

func buildRequest(flags generateFlags) (myth.GenerationRequest, error) {
	req := myth.GenerationRequest{
		Selections: make(map[myth.Category]string),
		Custom:     make(map[myth.Category]string),
		Mood:       flags.mood,
	}
	for name, v := range flags.selections {
		if strings.TrimSpace(v) == "" {
			return req, fmt.Errorf("category %s needs a selection", name)
		}
		req.Selections[myth.Category(name)] = v
	}
	for _, kv := range flags.custom {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return req, fmt.Errorf("invalid --custom %q, want category=description", kv)
		}
		cat := myth.Category(strings.TrimSpace(parts[0]))
		if _, ok := req.Selections[cat]; !ok {
			return req, fmt.Errorf("unknown category %q in --custom", parts[0])
		}
		req.Custom[cat] = strings.TrimSpace(parts[1])
	}
	return req, nil
}

func printDocument(w *os.File, res *engine.Result) {
	doc := res.Document
	fmt.Fprintf(w, "\n%s\n%s\n\n", doc.Story.Title, strings.Repeat("=", len(doc.Story.Title)))
	fmt.Fprintln(w, doc.Story.Text)

	fmt.Fprintf(w, "\nFigures (%d):\n", len(doc.Entities))
	for _, e := range doc.Entities {
		fmt.Fprintf(w, "  - %s (%s): %s\n", e.Name, e.Type, e.Description)
	}
	fmt.Fprintf(w, "\nPlaces (%d):\n", len(doc.WorldMap.Locations))
	for _, loc := range doc.WorldMap.Locations {
		fmt.Fprintf(w, "  - %s (%s): %s\n", loc.Name, loc.Terrain, loc.Significance)
	}
	fmt.Fprintf(w, "\nAncient tongue: %s, %d words\n",
		doc.AncientLanguage.LanguageName, len(doc.AncientLanguage.Vocabulary))

	if res.Fidelity != nil {
		fmt.Fprintf(w, "Fidelity: %.0f/100\n", res.Fidelity.Score)
	}
	if !res.Creativity.Original {
		fmt.Fprintf(w, "Warning: borrowed figures detected: %s\n", strings.Join(res.Creativity.Matches, ", "))
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			names, err := storage.NewArchive(cfg.OutputDir).List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}
