package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/api"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/app"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/config"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/engine"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/logging"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cmd      = flag.String("cmd", "", "command to run: ingest | ask | search | stats | files | chat | backup")
		cfgPath  = flag.String("config", "", "path to YAML config (default ./config.yaml or ~/.config/docqa/config.yaml)")
		dataDir  = flag.String("data", "", "data directory (overrides data_dir)")
		dir      = flag.String("dir", "", "directory to ingest (default upload_dir)")
		question = flag.String("q", "", "question for -cmd ask")
		out      = flag.String("out", "", "backup destination directory for -cmd backup")
		input    = flag.String("input", "", "JSON input payload for ask/search (or pipe via stdin)")
	)
	flag.Parse()

	if *cmd == "" {
		log.Fatalf("error: -cmd is required")
	}

	var (
		cfg *config.AppConfig
		err error
	)
	if *cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(*cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	logging.Configure(cfg.LogLevel)

	a, err := app.Open(cfg)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch *cmd {
	case "ingest":
		target := *dir
		if target == "" {
			target = cfg.UploadDir
		}
		report, err := a.Pipeline.Run(ctx, target)
		if err != nil {
			fail(a, "ingest error: %v", err)
		}
		printJSON(report)

	case "ask":
		q := *question
		if q == "" {
			var req api.AskRequest
			decodeInput(a, *input, &req)
			q = req.Question
		}
		if strings.TrimSpace(q) == "" {
			fail(a, "error: a question is required (-q or -input)")
		}
		res, err := a.Answerer.Answer(ctx, q)
		if err != nil {
			fail(a, "ask error: %v", err)
		}
		printJSON(res)

	case "search":
		var req api.SearchRequest
		decodeInput(a, *input, &req)
		if req.K <= 0 {
			req.K = engine.DefaultTopK
		}
		hits, err := a.DB.Search(req.Query, req.K)
		if err != nil {
			fail(a, "search error: %v", err)
		}
		printJSON(map[string]any{"results": hits})

	case "stats":
		stats, err := a.DB.Stats()
		if err != nil {
			fail(a, "stats error: %v", err)
		}
		printJSON(stats)

	case "files":
		files, err := a.DB.Files()
		if err != nil {
			fail(a, "files error: %v", err)
		}
		printJSON(files)

	case "backup":
		if *out == "" {
			fail(a, "error: -out is required for backup")
		}
		if err := a.DB.Backup(*out); err != nil {
			fail(a, "backup error: %v", err)
		}
		printJSON(map[string]string{"status": "ok", "dir": *out})

	case "chat":
		stats, err := a.DB.Stats()
		if err != nil {
			fail(a, "stats error: %v", err)
		}
		summary := fmt.Sprintf("%d files, %d segments, dim %d", stats.Files, stats.Rows, stats.Dimension)
		// keep log lines off the alternate screen
		logging.SetLevel(slog.LevelError)
		if _, err := tea.NewProgram(tui.New(a.Answerer, summary, 0), tea.WithAltScreen()).Run(); err != nil {
			fail(a, "chat error: %v", err)
		}

	default:
		fail(a, "unknown command: %s", *cmd)
	}
}

// fail closes the database, then exits.
func fail(a *app.App, format string, args ...any) {
	a.Close()
	log.Fatalf(format, args...)
}

func decodeInput(a *app.App, input string, v any) {
	var r io.Reader
	if input != "" {
		r = strings.NewReader(input)
	} else {
		stat, _ := os.Stdin.Stat()
		if stat == nil || stat.Mode()&os.ModeCharDevice != 0 {
			fail(a, "error: -input is required (or pipe JSON via stdin)")
		}
		r = os.Stdin
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		fail(a, "json decode error: %v", err)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
