package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/reuse/internal/api"
	"github.com/kalambet/reuse/internal/config"
	"github.com/kalambet/reuse/internal/extraction"
	"github.com/kalambet/reuse/internal/gemini"
	"github.com/kalambet/reuse/internal/intake"
	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/retrieval"
	"github.com/kalambet/reuse/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reuse server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpStdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running reuse server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reuse system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "reuse.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "reuse version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if !cfg.HasAPIKey() {
		slog.Warn("Gemini API key not configured; analysis and search will fail until it is set",
			"hint", config.MissingKeyHint())
	}

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("reuse is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("reuse is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	items := inventory.NewStore(store)
	model := gemini.NewClient(cfg.Gemini.APIKey,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithTimeout(cfg.Gemini.Timeout),
		gemini.WithPingModel(cfg.Gemini.TextModel),
	)
	extractor := extraction.NewExtractor(model, cfg.Gemini.VisionModel)
	searcher := retrieval.NewSearcher(model, cfg.Gemini.TextModel)

	handler := api.NewAppHandler(api.AppDeps{
		Items:             items,
		Drafts:            store,
		Extractor:         extractor,
		Searcher:          searcher,
		Model:             model,
		Token:             apiToken,
		MaxImageDimension: cfg.Imaging.MaxDimension,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	worker := intake.NewWorker(store, extractor, cfg.Intake.PollInterval)
	stopWorker := worker.Start(ctx)
	// Deferred after store.Close, so the worker stops before the store closes.
	defer stopWorker()

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Items:    items,
			Searcher: searcher,
			Version:  version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "reuse listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("reuse is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop reuse (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to reuse (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.HasAPIKey() {
		printStatus("API key", "configured")
	} else {
		printStatus("API key", "missing (%s)", config.MissingKeyHint())
	}
	printStatus("Vision model", "%s", cfg.Gemini.VisionModel)
	printStatus("Text model", "%s", cfg.Gemini.TextModel)

	if running {
		if c, err := newAPIClient(); err == nil {
			var model struct {
				OK bool `json:"ok"`
			}
			if r, err := c.get(ctx, "/model/status"); err == nil && decodeJSON(r, &model) == nil {
				printStatus("Model", "%s", map[bool]string{true: "reachable", false: "unreachable"}[model.OK])
			}
			var items []inventory.Item
			if r, err := c.get(ctx, "/items"); err == nil && decodeJSON(r, &items) == nil {
				printStatus("Items", "%d", len(items))
			}
			var drafts []intake.Draft
			if r, err := c.get(ctx, "/drafts"); err == nil && decodeJSON(r, &drafts) == nil {
				printStatus("Drafts", "%s", draftSummary(drafts))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// draftSummary renders draft counts per status, e.g. "3 (2 ready, 1 pending)".
func draftSummary(drafts []intake.Draft) string {
	if len(drafts) == 0 {
		return "0"
	}
	counts := make(map[string]int)
	for _, d := range drafts {
		counts[d.Status]++
	}
	var parts []string
	for _, s := range []string{storage.DraftReady, storage.DraftPending, storage.DraftFailed} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	return fmt.Sprintf("%d (%s)", len(drafts), strings.Join(parts, ", "))
}
