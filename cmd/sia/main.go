package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lockwise/support-agent/pkg/config"
	"github.com/lockwise/support-agent/pkg/connectors"
	"github.com/lockwise/support-agent/pkg/domain"
	"github.com/lockwise/support-agent/pkg/investigation"
	"github.com/lockwise/support-agent/pkg/llm"
	"github.com/lockwise/support-agent/pkg/observability"
	"github.com/lockwise/support-agent/pkg/parser"
	"github.com/lockwise/support-agent/pkg/tools"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"

	telemetry *observability.Telemetry
	metrics   *observability.Metrics
)

func main() {
	var (
		configPath = flag.String("config", "configs/default.yaml", "Path to configuration file")
		query      = flag.String("query", "", "Customer support query to investigate")
		preset     = flag.String("preset", "", "Budget preset override (default, production, debug)")
		debugMode  = flag.Bool("debug", false, "Attach the investigation journal to the result")
		jsonOut    = flag.Bool("json", false, "Print the full result as JSON")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("Support Investigation Agent\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	if *query == "" {
		log.Fatal("a -query is required")
	}

	cfg := config.LoadOrDefault(*configPath)
	if *preset != "" {
		cfg.Investigation.Preset = *preset
	}
	if *debugMode {
		cfg.Investigation.Debug = true
	}

	ctx := context.Background()
	if err := initObservability(cfg); err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	defer shutdownObservability(ctx)

	if cfg.Observability.Metrics.Enabled {
		go serveMetrics(cfg.Observability.Metrics.Port)
	}

	result, err := run(ctx, cfg, *query)
	if err != nil {
		log.Fatalf("Application failed: %v", err)
	}

	printResult(result, *jsonOut)
}

func initObservability(cfg *config.Config) error {
	telConfig := &observability.TelemetryConfig{
		ServiceName:    "support-investigation-agent",
		ServiceVersion: Version,
		Environment:    getEnvironment(),
		OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
		PrometheusPort: cfg.Observability.Metrics.Port,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableTracing:  cfg.Observability.Tracing.Enabled,
		EnableMetrics:  cfg.Observability.Metrics.Enabled,
	}

	var err error
	telemetry, err = observability.NewTelemetry(telConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if cfg.Observability.Metrics.Enabled {
		metrics, err = observability.NewMetrics(telemetry.Meter())
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}
	return nil
}

func shutdownObservability(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Printf("Telemetry shutdown error: %v", err)
		}
	}
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, query string) (*domain.InvestigationResult, error) {
	logger := observability.NewStructuredLogger("sia").
		WithMinLevel(logLevel(cfg.Observability.Logging.Level))

	store, err := connectors.OpenStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	defer store.Close()

	var searcher domain.LogSearcher
	if cfg.Quickwit.Enabled {
		searcher = connectors.NewQuickwit(cfg.Quickwit)
	}
	linker := connectors.NewAdminLinker(cfg.AdminConsole.BaseURL)

	registry, err := tools.NewCatalog(tools.CatalogDeps{
		Store:    store,
		Searcher: searcher,
		Linker:   linker,
	})
	if err != nil {
		return nil, fmt.Errorf("tool catalog: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.Anthropic.Timeout)
	if err != nil {
		timeout = 2 * time.Minute
	}
	client := llm.NewAnthropicClient(cfg.Anthropic.BaseURL, cfg.Anthropic.APIKey, cfg.Anthropic.Model, &llm.AnthropicOptions{
		Temperature: cfg.Anthropic.Temperature,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		Timeout:     timeout,
	})
	instrumented := llm.NewInstrumentedClient(client, cfg.Anthropic.Model, telemetry, metrics, logger)

	if !instrumented.IsHealthy(ctx) {
		logger.Warn(ctx, "language model endpoint not reachable, continuing anyway", map[string]any{
			"base_url": cfg.Anthropic.BaseURL,
		})
	}

	budget, err := budgetFromConfig(cfg.Investigation)
	if err != nil {
		return nil, fmt.Errorf("budget: %w", err)
	}

	driver := investigation.NewDriver(
		instrumented,
		parser.New(instrumented, logger, metrics),
		registry,
		logger,
		investigation.DriverOptions{
			Budget:      budget,
			Debug:       cfg.Investigation.Debug,
			ChatOptions: domain.ChatOptions{Model: cfg.Anthropic.Model},
			Metrics:     metrics,
			Telemetry:   telemetry,
		},
	)

	return driver.Investigate(ctx, query), nil
}

// budgetFromConfig starts from the named preset and applies any explicit
// overrides from the config file.
func budgetFromConfig(cfg config.InvestigationConfig) (investigation.BudgetConfig, error) {
	budget, err := investigation.BudgetForPreset(cfg.Preset)
	if err != nil {
		return investigation.BudgetConfig{}, err
	}

	if cfg.MaxToolRounds > 0 {
		budget.MaxToolRounds = cfg.MaxToolRounds
	}
	if cfg.MaxToolsPerRound > 0 {
		budget.MaxToolsPerRound = cfg.MaxToolsPerRound
	}
	if cfg.MaxTotalTools > 0 {
		budget.MaxTotalTools = cfg.MaxTotalTools
	}
	if cfg.ContextBudgetTokens > 0 {
		budget.ContextBudgetTokens = cfg.ContextBudgetTokens
	}
	if cfg.MaxConversationLength > 0 {
		budget.MaxConversationLength = cfg.MaxConversationLength
	}
	if d, err := time.ParseDuration(cfg.ToolTimeout); err == nil && d > 0 {
		budget.ToolTimeout = d
	}
	if d, err := time.ParseDuration(cfg.InvestigationTimeout); err == nil && d > 0 {
		budget.InvestigationTimeout = d
	}
	budget.DefaultQueryLimit = cfg.DefaultQueryLimit
	budget.MaxQueryLimit = cfg.MaxQueryLimit

	return investigation.NewBudgetConfig(budget)
}

func printResult(result *domain.InvestigationResult, asJSON bool) {
	if asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal result: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	fmt.Println(result.Investigation)
	if result.Debug != nil {
		fmt.Println("\n--- debug ---")
		fmt.Println(result.Debug.LogSummary)
	}
}

func logLevel(level string) observability.LogLevel {
	switch level {
	case "debug":
		return observability.LogLevelDebug
	case "warn":
		return observability.LogLevelWarn
	case "error":
		return observability.LogLevelError
	default:
		return observability.LogLevelInfo
	}
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
