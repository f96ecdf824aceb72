// Package main is the kotae CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/memory"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present; a missing default file means built-in defaults.
// .env files next to the config and in the working directory are loaded first, then
// secrets are filled from the environment and the result is validated.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	resolved := path
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				resolved = fallback
			}
		}
	}
	if err := config.LoadEnv(".env", filepath.Join(filepath.Dir(resolved), ".env")); err != nil {
		return nil, "", err
	}
	var cfg *config.Config
	var err error
	if resolved == defaultConfigPath {
		cfg, err = config.LoadOrDefault(resolved)
	} else {
		cfg, err = config.Load(resolved)
	}
	if err != nil {
		return nil, "", err
	}
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s:\n%w", resolved, err)
	}
	return cfg, resolved, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "history":
		runHistory()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, creates the logger and initializes components, exiting on failure.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	cfg.Debug = debugMode
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("provider", cfg.Provider.Name),
		zap.Bool("debug", debugMode),
	)
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, watcher events, provider calls)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Corpora) > 0 {
		exts := cfg.Watch.Extensions
		watchSvc = watcher.NewWatcher(
			cfg.Watch.Corpora,
			exts,
			reindexFunc(watchCtx, components.Indexer, exts, logger),
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go watchSvc.SyncAll(func(corpus, dir string) bool {
			return corpusIsStale(watchCtx, components.Database, corpus, dir, exts)
		})
	}

	srv := server.NewServer(components.Pipeline, components.Fetcher, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func printIngestUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae ingest -corpus NAME [flags] <file|directory>...\n")
	fmt.Fprintf(fs.Output(), "       kotae ingest -corpus NAME -url URL\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Ingesting replaces the corpus: all files given are concatenated into one document,
split into segments, embedded and saved as a fresh index. A single directory is
walked recursively for the configured watch extensions.

Examples:
  kotae ingest -corpus handbook policy.pdf benefits.pdf
  kotae ingest -corpus notes ./notes
  kotae ingest -corpus blog -url https://example.com/post
`)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	corpus := fs.String("corpus", "", "corpus name (required)")
	pageURL := fs.String("url", "", "web page to scrape instead of files")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { printIngestUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if *corpus == "" || (*pageURL == "" && fs.NArg() == 0) || (*pageURL != "" && fs.NArg() > 0) {
		printIngestUsage(fs)
		os.Exit(1)
	}

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	var (
		rec *models.Corpus
		err error
	)
	switch {
	case *pageURL != "":
		rec, err = components.Pipeline.Ingest(ctx, *corpus, extract.URLSource{URL: *pageURL, Fetcher: components.Fetcher})
	case fs.NArg() == 1 && isDir(fs.Arg(0)):
		rec, err = components.Indexer.IngestDirectory(ctx, *corpus, fs.Arg(0), cfg.Watch.Extensions)
	default:
		rec, err = components.Pipeline.Ingest(ctx, *corpus, extract.FileSource{Paths: fs.Args()})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if cli.ParseFormat(*outputFormat) == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rec)
		return
	}
	fmt.Printf("Ingested %d segment(s) from %d source(s) into corpus %q\n", rec.Segments, len(rec.Sources), rec.Name)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae ask -corpus NAME [flags] <question>\n")
	fmt.Fprintf(fs.Output(), "       kotae ask -corpus NAME -chat [-session ID]\n\n")
	fmt.Fprintf(fs.Output(), "Question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Without -session every question stands alone. With -session, the recent turns of
that session are sent along and the new turn is saved. -chat starts an interactive
session (a new one unless -session is given); type "exit" to leave.

Examples:
  kotae ask -corpus handbook how many vacation days do I get
  kotae ask -corpus handbook -session 3f2a... and for part-timers?
  kotae ask -corpus handbook -chat
  kotae ask -server http://localhost:8080 -corpus handbook what is the notice period
`)
}

// buildQuestion joins all positional args with spaces so multi-word questions work
// the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at
// the first non-flag argument, so "kotae ask what is this -corpus docs" would
// otherwise leave -corpus unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = answer locally)")
	corpus := fs.String("corpus", "", "corpus name (required)")
	sessionID := fs.String("session", "", "session id to continue")
	k := fs.Int("k", 0, "segments to retrieve (0 = corpus default)")
	chat := fs.Bool("chat", false, "interactive chat on stdin")
	sources := fs.Bool("sources", false, "print the retrieved segments below the answer")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuestion(fs.Args())
	if *corpus == "" || (!*chat && question == "") {
		printAskUsage(fs)
		os.Exit(1)
	}
	format := cli.ParseFormat(*outputFormat)

	var ask askFunc
	if *serverURL != "" {
		ask = func(ctx context.Context, req models.AskRequest) (*models.Answer, error) {
			return askViaHTTP(ctx, *serverURL, *corpus, req)
		}
	} else {
		_, logger, components := setup(*configPath, *debug)
		defer logger.Sync()
		defer components.Close()
		ask = func(ctx context.Context, req models.AskRequest) (*models.Answer, error) {
			return components.Pipeline.Ask(ctx, *corpus, req)
		}
	}

	if *chat {
		id := *sessionID
		if id == "" {
			id = memory.NewSessionID()
		}
		if err := chatLoop(context.Background(), os.Stdin, os.Stdout, id, *k, format, *sources, ask); err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ans, err := ask(context.Background(), models.AskRequest{Question: question, SessionID: *sessionID, K: *k})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format, *sources); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

type askFunc func(ctx context.Context, req models.AskRequest) (*models.Answer, error)

// chatLoop reads one question per line from in until EOF or "exit", answering each
// within sessionID. A failed question is reported and the loop goes on.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, sessionID string, k int, format cli.OutputFormat, sources bool, ask askFunc) error {
	fmt.Fprintf(out, "Session %s (type \"exit\" to quit)\n", sessionID)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		ans, err := ask(ctx, models.AskRequest{Question: line, SessionID: sessionID, K: k})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if err := cli.WriteAnswer(out, ans, format, sources); err != nil {
			return err
		}
	}
}

// apiError is the error body the server sends.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func askViaHTTP(ctx context.Context, serverURL, corpus string, req models.AskRequest) (*models.Answer, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	u := strings.TrimRight(serverURL, "/") + "/api/v1/corpora/" + corpus + "/ask"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var e apiError
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned %d (%s): %s", resp.StatusCode, e.Code, e.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var ans models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &ans, nil
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	sessionID := fs.String("session", "", "session id (required)")
	order := fs.String("order", "desc", "display order: desc (newest first) or asc")
	clearSession := fs.Bool("clear", false, "delete the session instead of printing it")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *sessionID == "" || (*order != "asc" && *order != "desc") {
		fmt.Println("Usage: kotae history -session ID [-order desc|asc] [-output text|json] [-clear]")
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	if *clearSession {
		if err := components.Pipeline.ClearSession(ctx, *sessionID); err != nil {
			fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session cleared: %s\n", *sessionID)
		return
	}
	turns, err := components.Pipeline.History(ctx, *sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "History failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteHistory(os.Stdout, *sessionID, turns, cli.ParseFormat(*outputFormat), *order == "desc"); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	deleteCorpus := fs.String("delete", "", "delete the named corpus and its index")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	if *deleteCorpus != "" {
		if err := components.Pipeline.DeleteCorpus(ctx, *deleteCorpus); err != nil {
			fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Corpus deleted: %s\n", *deleteCorpus)
	}

	list, err := components.Pipeline.Corpora(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List corpora failed: %v\n", err)
		os.Exit(1)
	}
	usage, err := storage.MeasureUsage(cfg.Storage.IndexDir, cfg.Storage.DatabasePath)
	if err != nil {
		logger.Warn("measure disk usage", zap.Error(err))
	}
	turns, err := components.Database.CountTurns(ctx)
	if err != nil {
		logger.Warn("count stored turns", zap.Error(err))
	}
	st := cli.Status{Corpora: list, Usage: usage, Turns: turns}
	if err := cli.WriteStatus(os.Stdout, st, cli.ParseFormat(*outputFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`kotae - ask questions about your documents and web pages

Usage:
  kotae <command> [flags]

Commands:
  server    Run the HTTP API (and re-ingest watched directories on change)
  ingest    Build a corpus from files, a directory or a web page
  ask       Answer a question about a corpus (-chat for an interactive session)
  history   Print or clear a chat session transcript
  status    List corpora and disk usage (-delete NAME removes a corpus)
  version   Print the version
  help      Show this help

Configuration is read from /usr/local/etc/kotae/config.yaml, or ./config.yaml when
present. API keys may come from the environment or a .env file: GOOGLE_API_KEY or
OPENAI_API_KEY (or KOTAE_API_KEY), JINA_API for the web reader, REDIS_URL.

Run "kotae <command> -h" for command flags.
`)
}
