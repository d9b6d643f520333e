// babelmark translates Markdown documents with an OpenAI-compatible model
// while leaving code, URLs and front matter keys untouched.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/babelmark/babelmark/internal/backend"
	"github.com/babelmark/babelmark/internal/config"
	"github.com/babelmark/babelmark/internal/mdtree"
	"github.com/babelmark/babelmark/internal/segment"
	"github.com/babelmark/babelmark/internal/session"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "babelmark",
		Short: "Translate Markdown while preserving its structure",
		Long: `babelmark translates Markdown documents with an OpenAI-compatible chat model.

Code blocks, inline code, link and image URLs and front matter keys are
never sent for translation. Provider settings come from the environment
(OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL, ...) and can be overridden
by a settings file or flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newTranslateCmd(),
		newSegmentCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type translateFlags struct {
	to           string
	out          string
	settingsPath string
	model        string
	baseURL      string
	path         string
	concurrency  string
	linkText     bool
	imageAlt     bool
	verbose      bool
}

func newTranslateCmd() *cobra.Command {
	var f translateFlags

	cmd := &cobra.Command{
		Use:   "translate FILE",
		Short: "Translate a Markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTranslate(ctx, cmd, args[0], f)
		},
	}

	cmd.Flags().StringVar(&f.to, "to", "", "Target language code (e.g. fr, de, zh-CN)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Write the result to this file instead of stdout")
	cmd.Flags().StringVar(&f.settingsPath, "settings", "", "YAML or JSON settings file")
	cmd.Flags().StringVar(&f.model, "model", "", "Model name")
	cmd.Flags().StringVar(&f.baseURL, "base", "", "Provider base URL")
	cmd.Flags().StringVar(&f.path, "path", "", "Chat completions path override")
	cmd.Flags().StringVar(&f.concurrency, "concurrency", "", "Parallel segment requests (1-30)")
	cmd.Flags().BoolVar(&f.linkText, "link-text", true, "Translate link labels")
	cmd.Flags().BoolVar(&f.imageAlt, "image-alt", false, "Translate image alt text")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log progress to stderr")
	return cmd
}

func runTranslate(ctx context.Context, cmd *cobra.Command, file string, f translateFlags) error {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// A settings file takes precedence over the environment for model and
	// concurrency; without one the environment decides.
	settings := config.DefaultSettings()
	var settingsModel string
	var payload *float64
	if f.settingsPath != "" {
		if settings, err = config.LoadSettings(f.settingsPath); err != nil {
			return err
		}
		settingsModel = settings.Model
		c := float64(settings.Concurrency)
		payload = &c
	}
	flags := cmd.Flags()
	if f.to != "" {
		settings.TargetLang = f.to
	}
	if flags.Changed("link-text") {
		settings.Options.TranslateLinkText = f.linkText
	}
	if flags.Changed("image-alt") {
		settings.Options.TranslateImageAlt = f.imageAlt
	}

	apiKey := firstNonEmpty(settings.APIKey, cfg.OpenAIAPIKey)
	if apiKey == "" {
		return config.ErrMissingAPIKey
	}

	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	sess, err := session.New(string(src), settings.Options.Segment())
	if errors.Is(err, segment.ErrNoSegments) {
		log.Info("nothing to translate", "file", file)
		return writeOutput(cmd, f.out, string(src))
	}
	if err != nil {
		return err
	}

	base, err := backend.LoadBasePrompt(cfg.PromptFile)
	if err != nil {
		log.Warn("prompt file unreadable, using default", "path", cfg.PromptFile, "error", err)
	}

	client := backend.NewClient(backend.Config{
		BaseURL:      firstNonEmpty(f.baseURL, settings.APIBase, cfg.OpenAIBaseURL),
		Path:         firstNonEmpty(f.path, cfg.OpenAIPath),
		APIKey:       apiKey,
		Model:        firstNonEmpty(f.model, settingsModel, cfg.OpenAIModel),
		SystemPrompt: backend.SystemPrompt(settings.Instructions(base)),
		Timeout:      cfg.RequestTimeout,
		TPM:          cfg.TPM,
		MaxRetries:   cfg.MaxRetries,
	}, nil, log)
	defer client.Close()

	concurrency := config.ResolveConcurrency(f.concurrency, payload, cfg.Concurrency)

	log.Info("translating", "file", file, "to", settings.TargetLang, "segments", len(sess.Segments()), "concurrency", concurrency, "endpoint", client.URL())
	status := sess.Run(ctx, client.Translate, concurrency, nil)
	snap := sess.Snapshot()

	ids := make([]string, 0, len(snap.Errors))
	for id := range snap.Errors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		log.Warn("segment not translated", "segment_id", id, "error", snap.Errors[id])
	}
	log.Info("translation finished", "status", status, "done", snap.Done, "total", snap.Total)

	if status == session.StatusCancelled {
		return ctx.Err()
	}
	if err := writeOutput(cmd, f.out, snap.Markdown); err != nil {
		return err
	}
	if status == session.StatusFailed {
		return fmt.Errorf("all %d segments failed", snap.Total)
	}
	return nil
}

func writeOutput(cmd *cobra.Command, path, md string) error {
	if path == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), md)
		return err
	}
	return os.WriteFile(path, []byte(md), 0o644)
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func newSegmentCmd() *cobra.Command {
	var opts segment.Options

	cmd := &cobra.Command{
		Use:   "segment FILE",
		Short: "Print the translatable segments of a Markdown file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := mdtree.ParseReader(f)
			if err != nil {
				return err
			}
			res := segment.Split(doc, opts)
			segs := res.Segments
			if segs == nil {
				segs = []segment.Segment{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(segs)
		},
	}

	cmd.Flags().BoolVar(&opts.TranslateLinkText, "link-text", true, "Include link labels")
	cmd.Flags().BoolVar(&opts.TranslateImageAlt, "image-alt", false, "Include image alt text")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "babelmark %s (%s)\n", version, commit)
		},
	}
}
