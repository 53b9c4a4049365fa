package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/app"
	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/services/report"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	topic        = flag.String("topic", "", "Research topic")
	topicT       = flag.String("t", "", "Research topic (shorthand)")
	outputDir    = flag.String("output", "", "Report output directory (overrides config)")
	exportPDF    = flag.Bool("pdf", false, "Also export the report as PDF")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Profundo version %s\n", common.GetVersion())
		os.Exit(0)
	}

	researchTopic := *topic
	if *topicT != "" {
		researchTopic = *topicT
	}
	if researchTopic == "" && flag.NArg() > 0 {
		researchTopic = flag.Arg(0)
	}
	if researchTopic == "" {
		fmt.Fprintln(os.Stderr, "Usage: profundo -topic \"<research topic>\" [-config profundo.toml] [-output dir] [-pdf]")
		os.Exit(2)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("profundo.toml"); err == nil {
			configFiles = append(configFiles, "profundo.toml")
		} else if _, err := os.Stat("deployments/local/profundo.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/profundo.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		// Use temporary logger for startup errors
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// CLI overrides (highest priority)
	if *outputDir != "" {
		config.Report.OutputDir = *outputDir
	}
	if *exportPDF {
		config.Report.PDF = true
	}

	logger = common.InitLogger(config)

	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("provider", config.LLM.DefaultProvider).
		Str("output_dir", config.Report.OutputDir).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	// Cancel the research run on Ctrl+C or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("topic", researchTopic).Msg("Starting research")

	session, err := application.Orchestrator.Research(ctx, researchTopic)
	if err != nil {
		if session != nil {
			logger.Error().
				Err(err).
				Str("session_id", session.ID).
				Str("status", string(session.Status)).
				Msg("Research failed")
		} else {
			logger.Error().Err(err).Msg("Research failed")
		}
		os.Exit(1)
	}

	mdPath, err := report.WriteMarkdown(session.Report, config.Report.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to write report")
	}
	logger.Info().Str("path", mdPath).Msg("Report written")

	if config.Report.PDF {
		pdfPath, err := application.PDFExporter.Export(session.Report, config.Report.OutputDir)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to export PDF report")
		} else {
			logger.Info().Str("path", pdfPath).Msg("PDF report written")
		}
	}

	logger.Info().
		Str("session_id", session.ID).
		Int("sections", len(session.Report.Sections)).
		Msg("Research complete")
}
