package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/concept-importer/backend/internal/api"
	"github.com/concept-importer/backend/internal/config"
	"github.com/concept-importer/backend/internal/importer"
	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/ocl"
	"github.com/concept-importer/backend/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "ConceptImporter.config")
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	conceptAPI, apiMode, err := newConceptAPI(cfg)
	if err != nil {
		fmt.Printf("Failed to load concept catalog: %v\n", err)
		os.Exit(1)
	}

	// Initialize session manager; completion is pushed to websocket clients
	var wsHandler *api.WebSocketHandler
	logStore := session.NewLogStore(cfg.GetDataDir(), cfg.Storage.LogBackend, cfg.Storage.QuotaBytes)
	sessionMgr := session.NewManager(conceptAPI, logStore, session.Options{
		MaxConcurrent: cfg.Import.MaxConcurrentImports,
		StaleAfter:    cfg.StaleAfter(),
		OnComplete: func(sessionID string, req importer.Request, slot models.Slot) {
			if wsHandler != nil {
				wsHandler.NotifyRefresh(sessionID, req, slot)
			}
		},
	})

	// Start background session cleanup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sessionMgr.RunCleanup(ctx, cfg.CleanupInterval(), cfg.SessionTimeout())

	handlers := api.NewHandlers(&api.Dependencies{
		SessionMgr:     sessionMgr,
		Version:        Version,
		RowsPerPage:    cfg.Notification.DefaultRowsPerPage,
		WSMaxMessageKB: cfg.Advanced.WebSocketMaxMessageSize,
	})
	wsHandler = handlers.WebSocket

	e := newEcho(cfg)
	api.RegisterRoutes(e, handlers)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// progress streams clear their own deadline; websocket upgrades drop it
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Concept Importer Server                         ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Concepts:   %-45s║\n", truncate(apiMode, 45))
	fmt.Printf("║  Log:        %-45s║\n", logStore.Kind())
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", truncate(configPath, 46))
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", truncate(cfg.GetDataDir(), 46))
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down, waiting for running imports...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Server shutdown: %v\n", err)
	}
	sessionMgr.Close()
}

// newConceptAPI serves concepts from the YAML catalog when one is
// configured and from the live API otherwise.
func newConceptAPI(cfg *config.AppConfig) (importer.ConceptAPI, string, error) {
	if cfg.Import.CatalogFile == "" {
		client := ocl.NewClient(cfg.Import.APIBaseURL, cfg.Import.APIToken, cfg.RequestTimeout())
		return client, "API " + cfg.Import.APIBaseURL, nil
	}
	catalog, err := ocl.LoadCatalog(cfg.Import.CatalogFile)
	if err != nil {
		return nil, "", err
	}
	return catalog, "Catalog " + cfg.Import.CatalogFile, nil
}

// isStream matches the long-lived progress and websocket requests.
func isStream(c echo.Context) bool {
	path := c.Request().URL.Path
	return strings.HasSuffix(path, "/progress") ||
		strings.HasPrefix(path, "/api/ws/") ||
		c.Request().Header.Get(echo.HeaderAccept) == "text/event-stream"
}

func newEcho(cfg *config.AppConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return !cfg.Advanced.EnableRequestLogging || isStream(c) || c.Request().URL.Path == "/api/health"
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{StackSize: 4 << 10}))
	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout:      time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper:      isStream,
		ErrorMessage: "Request timeout",
	}))
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		var origins []string
		for _, o := range strings.Split(cfg.Server.AllowOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, api.SessionHeader},
		}))
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
