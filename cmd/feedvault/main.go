package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/common"
	"github.com/feedvault/feedvault/internal/models"
	"github.com/feedvault/feedvault/internal/scraper"
	"github.com/feedvault/feedvault/internal/storage/badger"
)

var (
	configFile   = flag.String("config", "", "Configuration file path")
	configFileC  = flag.String("c", "", "Configuration file path (shorthand)")
	sourceURL    = flag.String("url", "", "Feed URL (overrides config)")
	startDate    = flag.String("start", "", "Window start, RFC3339 or YYYY-MM-DD (overrides config)")
	endDate      = flag.String("end", "", "Window end, RFC3339 or YYYY-MM-DD (overrides config)")
	noResume     = flag.Bool("no-resume", false, "Ignore the stored checkpoint and rescan the full window")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func main() {
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("FeedVault version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence: load config, apply CLI overrides, init logger,
	// print banner.
	configPath := *configFile
	if configPath == "" {
		configPath = *configFileC
	}
	if configPath == "" {
		if _, err := os.Stat("feedvault.toml"); err == nil {
			configPath = "feedvault.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Str("path", configPath).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if *sourceURL != "" {
		config.Source.URL = *sourceURL
	}
	if *startDate != "" {
		config.Source.StartDate = *startDate
	}
	if *endDate != "" {
		config.Source.EndDate = *endDate
	}
	if *noResume {
		config.Filter.DisableResume = true
	}

	logger := common.InitLogger(config)

	if err := config.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	common.PrintBanner(common.LoadVersionFromFile())

	logger.Debug().
		Str("url", config.Source.URL).
		Str("mode", config.Source.Mode).
		Str("storage_path", config.Storage.Path).
		Str("log_level", config.Logging.Level).
		Msg("Configuration resolved")

	store, err := badger.NewArchiveStore(config.Storage.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", config.Storage.Path).Msg("Failed to open archive store")
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close archive store")
		}
	}()

	// A first interrupt stops the scroll loop and drains the pool; a second
	// kills the process.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	service := scraper.NewService(config, store, logger)
	summary, err := service.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Archive run failed")
		os.Exit(1)
	}

	printSummary(summary)
}

func printSummary(summary *models.RunSummary) {
	fmt.Println()
	fmt.Println("Run summary")
	fmt.Println("-----------")
	fmt.Printf("  Session:     %s\n", summary.SessionID)
	fmt.Printf("  Source:      %s\n", summary.SourceURL)
	if !summary.StartDate.IsZero() || !summary.EndDate.IsZero() {
		fmt.Printf("  Window:      %s .. %s\n", formatBound(summary.StartDate), formatBound(summary.EndDate))
	}
	fmt.Printf("  Scanned:     %d\n", summary.Stats.Scanned)
	fmt.Printf("  Stored:      %d\n", summary.Stats.Stored)
	fmt.Printf("  Skipped:     %d (dup %d, no date %d, too new %d, too old %d, archived %d, keyword %d)\n",
		summary.Stats.Skipped, summary.Stats.Duplicates, summary.Stats.NoDate,
		summary.Stats.TooNew, summary.Stats.TooOld, summary.Stats.AlreadyArchived,
		summary.Stats.KeywordMiss)
	fmt.Printf("  Media:       %d downloaded, %d failed\n", summary.Stats.ImagesDownloaded, summary.Stats.ImagesFailed)
	if summary.Stats.InferenceFailed > 0 {
		fmt.Printf("  Inference:   %d failed\n", summary.Stats.InferenceFailed)
	}
	if summary.Stats.Errors > 0 {
		fmt.Printf("  Errors:      %d\n", summary.Stats.Errors)
	}
	if !summary.OldestStored.IsZero() {
		fmt.Printf("  Date range:  %s .. %s\n",
			summary.OldestStored.Format(time.RFC3339), summary.NewestStored.Format(time.RFC3339))
	}
	fmt.Printf("  Runtime:     %.1fs\n", summary.RuntimeSeconds)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format("2006-01-02")
}
