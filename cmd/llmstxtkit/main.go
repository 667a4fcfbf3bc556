// Command llmstxtkit fetches a domain's llms.txt, validates it, and prints
// an assembled, token-budgeted context string — a small end-to-end
// demonstration of the toolkit's fetch → parse → validate → generate
// pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/llmstxtkit/llmstxtkit/cache"
	"github.com/llmstxtkit/llmstxtkit/config"
	"github.com/llmstxtkit/llmstxtkit/contextgen"
	"github.com/llmstxtkit/llmstxtkit/fetcher"
	"github.com/llmstxtkit/llmstxtkit/logger"
	"github.com/llmstxtkit/llmstxtkit/robots"
	"github.com/llmstxtkit/llmstxtkit/validator"
)

const (
	defaultConfigFile = "./llmstxtkit.yaml"
	defaultLogLevel   = "info"
)

type appConfig struct {
	domain     string
	configFile string
	logLevel   string
	maxTokens  int
	checkLinks bool
	cacheDir   string
}

func main() {
	cfg := parseFlags()
	log := setupLogger(cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	defaults := loadDefaults(cfg.configFile, log)

	f := fetcher.New(defaults.Fetch)
	defer f.Close()

	log.Info("fetching manifest", "domain", cfg.domain)
	result, err := f.FetchAsync(ctx, cfg.domain)
	if err != nil {
		log.Error("fetch failed", "error", err)
		os.Exit(1)
	}
	if result.Status != fetcher.StatusSuccess {
		log.Error("manifest unavailable", "status", result.Status, "httpStatus", result.HTTPStatusCode, "blockReason", result.BlockReason)
		os.Exit(1)
	}

	doc := result.Document
	log.Info("parsed manifest", "title", doc.Title, "sections", len(doc.Sections), "diagnostics", len(doc.Diagnostics))

	validatorOpts := defaults.Validator
	validatorOpts.CheckLinkedURLs = cfg.checkLinks
	report := validator.New(f.HTTPClient()).ValidateAsync(ctx, doc, validatorOpts)
	log.Info("validated manifest", "isValid", report.IsValid, "errors", len(report.Errors), "warnings", len(report.Warnings))
	for _, issue := range report.AllIssues {
		log.Warn("validation issue", "rule", issue.Rule, "severity", issue.Severity, "message", issue.Message, "location", issue.Location)
	}

	var store cache.BackingStore
	if cfg.cacheDir != "" {
		fileStore, err := cache.NewFileStore(cfg.cacheDir)
		if err != nil {
			log.Error("failed to open cache directory", "error", err)
			os.Exit(1)
		}
		store = fileStore
	}
	domainCache := cache.New(defaults.Cache, store)
	if err := domainCache.Set(ctx, cfg.domain, cache.CacheEntry{
		Document:   *doc,
		RawContent: result.RawContent,
	}); err != nil {
		log.Warn("failed to cache manifest", "error", err)
	}

	robotsChecker := robots.New(defaults.Fetch.GetUserAgent(), defaults.Cache.GetTTL(), f.HTTPClient())
	generator := contextgen.New(f.HTTPClient(), defaults.Fetch, robotsChecker)

	generateOpts := defaults.Generate
	if cfg.maxTokens > 0 {
		generateOpts.MaxTokens = cfg.maxTokens
	}

	ctxResult, err := generator.GenerateAsync(ctx, doc, generateOpts)
	if err != nil {
		log.Error("context generation failed", "error", err)
		os.Exit(1)
	}

	log.Info("generated context",
		"approximateTokenCount", ctxResult.ApproximateTokenCount,
		"sectionsIncluded", ctxResult.SectionsIncluded,
		"sectionsOmitted", ctxResult.SectionsOmitted,
		"sectionsTruncated", ctxResult.SectionsTruncated,
		"fetchErrors", len(ctxResult.FetchErrors))

	fmt.Println(ctxResult.Content)
}

func parseFlags() *appConfig {
	cfg := &appConfig{}

	flag.StringVar(&cfg.domain, "domain", "", "Domain to fetch llms.txt from (required)")
	flag.StringVar(&cfg.configFile, "config", getEnv("CONFIG_FILE", defaultConfigFile), "Path to YAML defaults file (optional)")
	flag.StringVar(&cfg.logLevel, "log-level", getEnv("LOG_LEVEL", defaultLogLevel), "Log level: debug, info, warn, error")
	flag.IntVar(&cfg.maxTokens, "max-tokens", 0, "Override the generated context's token budget (0 = use config default)")
	flag.BoolVar(&cfg.checkLinks, "check-links", false, "Probe entry URLs for reachability during validation")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "", "Directory for a file-backed cache tier (optional)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -domain DOMAIN [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Fetches, validates, and packs a domain's llms.txt into an LLM-ready context.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if cfg.domain == "" {
		fmt.Fprintln(os.Stderr, "error: -domain is required")
		flag.Usage()
		os.Exit(2)
	}

	return cfg
}

func loadDefaults(path string, log logger.Logger) *config.Defaults {
	if _, err := os.Stat(path); err != nil {
		return &config.Defaults{}
	}
	d, err := config.LoadDefaults(path)
	if err != nil {
		log.Warn("failed to load config file, using defaults", "file", path, "error", err)
		return &config.Defaults{}
	}
	log.Info("loaded config file", "file", path)
	return d
}

func setupLogger(level string) logger.Logger {
	var lvl logger.Level
	switch level {
	case "debug":
		lvl = logger.LevelDebug
	case "warn":
		lvl = logger.LevelWarn
	case "error":
		lvl = logger.LevelError
	default:
		lvl = logger.LevelInfo
	}
	return logger.NewWithLevel(lvl)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
