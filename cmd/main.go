package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-qa/internal/cache"
	"document-qa/internal/chunker"
	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
	"document-qa/internal/transcript"
	"document-qa/internal/tui"
)

const configFilePath = "./configs/config.yaml"

type options struct {
	configPath string
	filePath   string
	query      string
	topK       int
	key        string
	dryRun     bool
	tui        bool
	transcript string
	debug      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", configFilePath, "Path to the YAML config")
	flag.StringVar(&opts.filePath, "file", "", "Path to the document to index")
	flag.StringVar(&opts.query, "query", "", "Question to ask about the document")
	flag.IntVar(&opts.topK, "top-k", 0, "Number of excerpts passed to the model (overrides rag.top_k)")
	flag.StringVar(&opts.key, "key", "", "API key for the configured provider")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Extract and chunk the document, print the chunks and exit")
	flag.BoolVar(&opts.tui, "tui", false, "Start the interactive terminal UI")
	flag.StringVar(&opts.transcript, "transcript", "", "Write the conversation as HTML to this path on exit")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		setupLogger(os.Stderr, "info", opts.debug)
		log.Fatal().Err(err).Msg("Error loading config")
	}

	logOut := io.Writer(os.Stderr)
	if opts.tui {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, helper.UserMessage(err))
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	setupLogger(logOut, cfg.Log.Level, opts.debug)

	if opts.topK > 0 {
		cfg.RAG.TopK = opts.topK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		log.Debug().Err(err).Msg("Run failed")
		fmt.Fprintln(os.Stderr, helper.UserMessage(err))
		stop()
		os.Exit(1)
	}
}

func setupLogger(out io.Writer, level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stderr}).With().Caller().Logger()
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	if opts.dryRun {
		return dryRun(cfg, opts.filePath)
	}
	if !opts.tui && (opts.filePath == "" || opts.query == "") {
		return models.EmptyInput("provide -file and -query, or start the terminal UI with -tui")
	}

	cfg.ResolveKeys(opts.key)
	if cfg.NeedsKey() {
		key, err := helper.ReadSecret(fmt.Sprintf("API key (%s): ", config.EnvKey(cfg.EmbedLLM.Provider)))
		if err != nil {
			return err
		}
		cfg.ResolveKeys(key)
	}
	log.Debug().Interface("config", cfg.Masked()).Msg("Loaded config")

	session, err := newSession(cfg, !opts.tui)
	if err != nil {
		return err
	}
	log.Debug().Str("session", session.ID).Msg("Session started")

	if opts.tui {
		err = runTUI(ctx, session, opts.filePath)
	} else {
		err = answerOnce(ctx, session, opts.filePath, opts.query)
	}

	if opts.transcript != "" && len(session.History()) > 0 {
		if werr := writeTranscript(opts.transcript, session); werr != nil {
			return errors.Join(err, werr)
		}
	}
	return err
}

func newSession(cfg *config.Config, showProgress bool) (*rag.Session, error) {
	extractMemo, err := cache.New[[]models.Document](cfg.Cache.MaxEntries)
	if err != nil {
		return nil, err
	}
	embedMemo, err := cache.New[[]float32](cfg.Cache.MaxEntries)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	cached := embedding.NewCachedEmbedder(embedder, embedMemo, cfg.EmbedLLM.BatchSize)
	if showProgress {
		if p := helper.NewEmbedProgress(); p != nil {
			cached.SetProgress(p)
		}
	}

	completer, err := llmservice.NewCompleter(&cfg.InferenceLLM, cfg.RAG.Temperature)
	if err != nil {
		return nil, err
	}

	return rag.NewSession(
		parser.NewExtractor(extractMemo),
		chunker.New(cfg.RAG.ChunkSize),
		cached,
		completer,
		rag.Options{TopK: cfg.RAG.TopK, ResetHistoryOnUpload: cfg.RAG.ResetHistoryOnUpload},
	)
}

func dryRun(cfg *config.Config, filePath string) error {
	if filePath == "" {
		return models.EmptyInput("-dry-run needs a document passed with -file")
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	docs, err := parser.NewExtractor(nil).Extract(filepath.Base(filePath), data)
	if err != nil {
		return err
	}
	chunks := chunker.New(cfg.RAG.ChunkSize).Chunk(docs)
	log.Info().Int("pages", len(docs)).Int("chunks", len(chunks)).Msg("Parsed document")
	return helper.PrettyPrint(os.Stdout, chunks)
}

func upload(ctx context.Context, session *rag.Session, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	res, err := session.Upload(ctx, filepath.Base(filePath), data)
	if err != nil {
		return err
	}
	log.Info().Str("document", res.Document).Int("pages", res.Pages).Int("chunks", res.Chunks).Msg("Indexed document")
	return nil
}

func answerOnce(ctx context.Context, session *rag.Session, filePath, query string) error {
	if err := upload(ctx, session, filePath); err != nil {
		return err
	}

	done := helper.StartSpinner("thinking")
	answer, err := session.Ask(ctx, query)
	done()
	if err != nil {
		return err
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, src := range answer.Sources {
		fmt.Println(src)
	}
	fmt.Println()

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", answer.Content)
	return nil
}

func runTUI(ctx context.Context, session *rag.Session, filePath string) error {
	if filePath != "" {
		done := helper.StartSpinner("indexing " + filepath.Base(filePath))
		err := upload(ctx, session, filePath)
		done()
		if err != nil {
			return err
		}
	}
	_, err := tea.NewProgram(tui.New(ctx, session), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func writeTranscript(path string, session *rag.Session) error {
	page, err := transcript.Render(session.Document(), session.History())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	log.Info().Str("path", path).Msg("Wrote transcript")
	return nil
}
