package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/amazon-reviews-scraper/config"
	"github.com/aluiziolira/amazon-reviews-scraper/ingest"
	"github.com/aluiziolira/amazon-reviews-scraper/models"
	"github.com/aluiziolira/amazon-reviews-scraper/pipeline"
	"github.com/aluiziolira/amazon-reviews-scraper/scraper"
	"github.com/aluiziolira/amazon-reviews-scraper/storage"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	defaultSettingsPath = "config/settings.example.json"
	defaultInputPath    = "data/inputs.sample.json"
)

func main() {
	envErr := godotenv.Load()

	defaultCfg := config.DefaultConfig()
	settingsDefault := envOrDefault("SCRAPER_SETTINGS", defaultSettingsPath)
	inputDefault := envOrDefault("SCRAPER_INPUT", defaultInputPath)
	outputDefault := envOrDefault("SCRAPER_OUTPUT", defaultCfg.OutputFile)
	csvDefault := envOrDefault("SCRAPER_CSV_OUTPUT", "")
	metricsDefault := envOrDefault("SCRAPER_METRICS_ADDR", defaultCfg.MetricsAddr)
	maxReviewsDefault, err := envIntOrDefault("SCRAPER_MAX_REVIEWS", 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_MAX_REVIEWS: %v\n", err)
		os.Exit(1)
	}

	settingsPath := flag.String("settings", settingsDefault, "Path to the settings file (JSON or YAML)")
	inputPath := flag.String("input", inputDefault, "Path to the JSON list of products")
	outputFile := flag.String("output", outputDefault, "Path of the JSON output file")
	csvOutput := flag.String("csv-output", csvDefault, "Optional path of a CSV output file")
	productURL := flag.String("url", "", "Scrape a single product URL instead of the input file")
	maxReviews := flag.Int("max-reviews", maxReviewsDefault, "Override the per-product review cap")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	runID := uuid.NewString()
	baseLogger, _ := newLogger(*verbose)
	logger := baseLogger.With(slog.String("run_id", runID))
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("could not load .env file", slog.Any("error", envErr))
	}

	if *maxReviews < 0 {
		logger.Error("invalid flag", slog.String("flag", "max-reviews"), slog.Int("value", *maxReviews))
		os.Exit(1)
	}

	store := storage.NewManager(logger)
	settings := config.LoadSettings(store, *settingsPath, logger)
	cfg := buildConfig(settings, *outputFile, *csvOutput, *metricsAddr, *verbose)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	requests, err := loadRequests(store, *productURL, *inputPath, *maxReviews, logger)
	if err != nil {
		logger.Error("loading products failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting scrape",
		slog.Int("products", len(requests)),
		slog.Int("max_reviews", cfg.MaxReviewsPerProduct),
		slog.Int("retry_count", cfg.RetryCount),
		slog.Duration("sleep_between_requests", cfg.SleepBetweenRequests),
	)

	s, err := scraper.NewScraper(cfg, logger)
	if err != nil {
		logger.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, finishing current request")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsRouter(s.Metrics.Registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p, err := pipeline.NewPipeline(s, cfg, logger)
	if err != nil {
		logger.Error("initialising pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Verbose {
		p.StartProgressReporting(ctx, 10*time.Second)
	}

	result := p.Run(ctx, runID, requests)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	outputs, err := export(store, cfg, result.Records, logger)
	if err != nil {
		logger.Error("writing output failed", slog.Any("error", err))
		os.Exit(1)
	}

	printSummary(result, s.Stats(), p.GetMetrics(), outputs)
}

func envOrDefault(key, fallback string) string {
	if value, ok := config.EnvString(key); ok {
		return value
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) (int, error) {
	value, ok, err := config.EnvInt(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback, nil
	}
	return value, nil
}

func buildConfig(settings config.Settings, outputFile, csvOutput, metricsAddr string, verbose bool) *config.Config {
	cfg := settings.Config()
	cfg.OutputFile = strings.TrimSpace(outputFile)
	cfg.CSVOutputFile = strings.TrimSpace(csvOutput)
	cfg.MetricsAddr = metricsAddr
	cfg.Verbose = verbose
	return cfg
}

// loadRequests returns the single --url product or the normalized input file.
// A positive maxReviews overrides every per-product cap.
func loadRequests(store *storage.Manager, productURL, inputPath string, maxReviews int, logger *slog.Logger) ([]models.ProductRequest, error) {
	var requests []models.ProductRequest
	if trimmed := strings.TrimSpace(productURL); trimmed != "" {
		requests = []models.ProductRequest{{URL: trimmed}}
	} else {
		loaded, err := ingest.LoadProducts(store, inputPath, logger)
		if err != nil {
			return nil, err
		}
		requests = loaded
	}

	if maxReviews > 0 {
		for i := range requests {
			requests[i].MaxReviews = maxReviews
		}
	}
	return requests, nil
}

// export writes the dataset and returns the paths written. An empty dataset
// writes nothing.
func export(store *storage.Manager, cfg *config.Config, records []models.Record, logger *slog.Logger) ([]string, error) {
	if len(records) == 0 {
		logger.Warn("no reviews collected, skipping output")
		return nil, nil
	}

	exporter := pipeline.NewExporter(store, logger)
	jsonPath, err := filepath.Abs(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}
	if err := exporter.ToJSON(records, jsonPath); err != nil {
		return nil, err
	}
	outputs := []string{jsonPath}

	if cfg.CSVOutputFile != "" {
		csvPath, err := filepath.Abs(cfg.CSVOutputFile)
		if err != nil {
			return outputs, fmt.Errorf("resolve csv output path: %w", err)
		}
		if err := exporter.ToCSV(records, csvPath); err != nil {
			return outputs, err
		}
		outputs = append(outputs, csvPath)
	}
	return outputs, nil
}

func printSummary(result *models.RunResult, stats scraper.Stats, metrics map[string]interface{}, outputs []string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	duration := result.EndTime.Sub(result.StartTime)
	fmt.Printf("  Run ID:        %s\n", result.RunID)
	fmt.Printf("  Products:      %d ok, %d failed\n", result.SucceededProducts, result.FailedProducts)
	fmt.Printf("  Reviews:       %d\n", len(result.Records))
	fmt.Printf("  Duplicates:    %d\n", result.DuplicateCount)
	fmt.Printf("  Invalid:       %d\n", result.InvalidCount)

	successRate := 0.0
	if stats.Requests > 0 {
		successRate = float64(stats.Requests-stats.Errors) / float64(stats.Requests) * 100
	}
	fmt.Printf("  Requests:      %d (%.2f%% ok)\n", stats.Requests, successRate)
	fmt.Printf("  Pages:         %d\n", stats.Pages)
	fmt.Printf("  Retries:       %d\n", stats.Retries)
	if len(stats.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", stats.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	for _, url := range result.FailedURLs {
		fmt.Printf("  Failed:        %s\n", url)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	if len(outputs) == 0 {
		fmt.Println("  Output:        none")
	}
	for _, path := range outputs {
		fmt.Printf("  Output file:   %s\n", path)
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
