package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfetch/fetchcore/advanced"
	"github.com/openfetch/fetchcore/api"
	"github.com/openfetch/fetchcore/api/handler"
	"github.com/openfetch/fetchcore/cleaner"
	"github.com/openfetch/fetchcore/config"
	"github.com/openfetch/fetchcore/engine"
	"github.com/openfetch/fetchcore/escalate"
	"github.com/openfetch/fetchcore/logging"
	"github.com/openfetch/fetchcore/pool"
	"github.com/openfetch/fetchcore/profile"
)

var adminBaseURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "fetchcore",
		Short: "fetchcore — adaptive URL fetching with anti-bot escalation",
		Long: `fetchcore fetches a URL through an escalating ladder of engines
(raw HTTP, remote browser pool, local stealth browser, unblock proxy),
judging each attempt by content shape rather than HTTP status, and
persisting the winning step per domain so repeat requests skip straight
to a known-good engine.`,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// serveCmd creates the "serve" subcommand: the two long-running HTTP
// servers (fetch API + admin API).
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the fetch API and admin API servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := config.Load()

	ring, err := logging.Init(cfg.Log.Level, cfg.Log.Format, cfg.LogsDir)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	runtime := config.NewRuntimeStore(cfg.Runtime)
	if persisted, err := handler.LoadPersistedSettings(cfg.DataDir); err != nil {
		slog.Warn("failed to load persisted settings, using env defaults", "error", err)
	} else if persisted != nil {
		runtime.Set(*persisted)
		slog.Info("loaded persisted runtime settings", "path", filepath.Join(cfg.DataDir, "settings.json"))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := profile.Open(filepath.Join(cfg.DataDir, "profiles.db"))
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer store.Close()

	rt := runtime.Get()

	fastEngine := engine.NewFastEngine()
	stealthEngine := engine.NewLocalStealthEngine(cfg.Browser.BrowserBin, cfg.Browser.NoSandbox)

	var browserEngine engine.Engine
	var unblockEngine engine.Engine
	var browserPool *pool.BrowserPool
	if rt.BrowserlessURL != "" {
		browserPool = pool.New(pool.Config{
			BrowserlessURL: rt.BrowserlessURL,
			Stealth:        rt.BrowserStealth,
			Proxy:          rt.ProxyURL,
			Slots:          cfg.Browser.MaxPages,
		})
		browserEngine = engine.NewRemoteBrowserEngine(browserPool)
		unblockEngine = engine.NewUnblockEngine(rt.BrowserlessURL)
	}

	sched := escalate.New(fastEngine, browserEngine, stealthEngine, unblockEngine, store, runtime)
	orch := advanced.New(browserPool)
	cl := cleaner.NewCleaner()

	startTime := time.Now()

	fetchRouter := api.NewFetchRouter(sched, orch, cl, cfg)
	adminRouter := api.NewAdminRouter(browserPool, store, runtime, ring, cfg.DataDir, startTime, cfg.Server.Mode)

	fetchAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	adminAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.AdminPort)

	fetchSrv := &http.Server{Addr: fetchAddr, Handler: fetchRouter}
	adminSrv := &http.Server{Addr: adminAddr, Handler: adminRouter}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		slog.Info("fetch API listening", "addr", fetchAddr)
		if err := fetchSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("fetch API server error", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		defer wg.Done()
		slog.Info("admin API listening", "addr", adminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin API server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fetchSrv.Shutdown(ctx); err != nil {
		slog.Error("fetch API forced shutdown", "error", err)
	}
	if err := adminSrv.Shutdown(ctx); err != nil {
		slog.Error("admin API forced shutdown", "error", err)
	}
	if browserPool != nil {
		browserPool.Disconnect()
	}

	slog.Info("fetchcore stopped")
	return nil
}

// adminCmd creates the "admin" subcommand tree: a thin HTTP client talking
// to a running instance's admin API, for operators who don't want to curl
// the endpoints by hand.
func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Talk to a running fetchcore instance's admin API",
	}
	cmd.PersistentFlags().StringVar(&adminBaseURL, "admin-url", "http://localhost:8081", "admin API base URL")

	cmd.AddCommand(adminProfileCmd())
	return cmd
}

func adminProfileCmd() *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect or evict domain profiles",
	}

	profileCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all domain profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminGet("/api/domain-profiles")
		},
	})

	profileCmd.AddCommand(&cobra.Command{
		Use:   "get [domain]",
		Short: "Show the stored profile for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminGet("/api/domain-profiles/" + args[0])
		},
	})

	profileCmd.AddCommand(&cobra.Command{
		Use:   "delete [domain]",
		Short: "Evict a domain's cached profile, forcing re-escalation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminDelete("/api/domain-profiles/" + args[0])
		},
	})

	return profileCmd
}

func adminGet(path string) error {
	resp, err := http.Get(adminBaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func adminDelete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, adminBaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	if resp.StatusCode >= 400 {
		return fmt.Errorf("admin API returned %s", resp.Status)
	}
	return nil
}
