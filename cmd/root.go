package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"loopscan/internal/analyzer"
	"loopscan/internal/config"
	"loopscan/internal/logging"
	"loopscan/internal/scan"
	"loopscan/internal/syntax"
	"loopscan/internal/watcher"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	formatFlag              string
	watchFlag               bool
	configFlag              string
	generateConfigFlag      bool
	outputFlag              string
	resumeFlag              string
	checkpointFlag          string
	workersFlag             int
	checkpointFrequencyFlag int
	keepCheckpointFlag      bool
	stdFlag                 string
	includeDirsFlag         []string
	includeFlag             []string
	excludeFlag             []string
	logLevelFlag            string
	logFormatFlag           string
	verboseFlag             bool
	noColorFlag             bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loopscan [directory]",
	Short: "A C/C++ loop analyzer that inventories loops for optimization work",
	Long: `loopscan scans C and C++ source trees and records every loop in every
function and method: bounds, nesting, operations, memory access patterns
and the calls made inside loops, together with a cross-file call graph.

Examples:
  loopscan .                                  # Analyze current directory
  loopscan -o analysis.json src/              # Choose the output document
  loopscan --resume loop_analysis.checkpoint.json src/
  loopscan --workers 4 --std c++20 .          # Parallel scan, C++20 flags
  loopscan --watch .                          # Re-analyze on change
  loopscan --generate-config                  # Generate sample config file`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAnalysis,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Report printed after the scan (console, json, markdown)")
	rootCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Keep watching and re-analyze changed files")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to configuration file")
	rootCmd.Flags().BoolVar(&generateConfigFlag, "generate-config", false, "Generate sample configuration file")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Analysis document path (default loop_analysis.json)")
	rootCmd.Flags().StringVar(&resumeFlag, "resume", "", "Resume from a checkpoint file")
	rootCmd.Flags().StringVar(&checkpointFlag, "checkpoint", "", "Checkpoint file path")
	rootCmd.Flags().IntVar(&workersFlag, "workers", 0, "Files analyzed in parallel")
	rootCmd.Flags().IntVar(&checkpointFrequencyFlag, "checkpoint-frequency", 0, "Files between checkpoints")
	rootCmd.Flags().BoolVar(&keepCheckpointFlag, "keep-checkpoint", false, "Keep the checkpoint after a successful scan")
	rootCmd.Flags().StringVar(&stdFlag, "std", "", "C++ standard (c++11, c++14, c++17, c++20)")
	rootCmd.Flags().StringSliceVarP(&includeDirsFlag, "include-dir", "I", nil, "Additional include directory")
	rootCmd.Flags().StringSliceVar(&includeFlag, "include", nil, "Only scan files matching these globs")
	rootCmd.Flags().StringSliceVar(&excludeFlag, "exclude", nil, "Skip files matching these globs")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
}

// loadConfig reads the configuration and applies the flags shared by every
// command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevelFlag
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormatFlag
	}
	if verboseFlag {
		cfg.Output.Verbose = true
	}
	if noColorFlag || !term.IsTerminal(int(os.Stdout.Fd())) {
		cfg.Output.Colors = false
	}
	color.NoColor = !cfg.Output.Colors
	return cfg, nil
}

func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format = formatFlag
	}
	if flags.Changed("output") {
		cfg.Output.OutputFile = outputFlag
	}
	if flags.Changed("workers") {
		cfg.Analysis.MaxWorkers = workersFlag
	}
	if flags.Changed("checkpoint-frequency") {
		cfg.Analysis.CheckpointFrequency = checkpointFrequencyFlag
	}
	if flags.Changed("keep-checkpoint") {
		cfg.Analysis.KeepCheckpoint = keepCheckpointFlag
	}
	if flags.Changed("std") {
		cfg.Scan.CppStandard = stdFlag
	}
	cfg.Scan.IncludeDirs = append(cfg.Scan.IncludeDirs, includeDirsFlag...)
	cfg.Files.Include = append(cfg.Files.Include, includeFlag...)
	cfg.Files.Exclude = append(cfg.Files.Exclude, excludeFlag...)
}

func runAnalysis(cmd *cobra.Command, args []string) {
	if generateConfigFlag {
		generateConfig()
		return
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		color.Red("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	applyScanFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		color.Red("Error in configuration: %v\n", err)
		os.Exit(1)
	}

	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner := scan.NewScanner(syntax.NewTreeSitterProvider(), cfg, logger)
	reportGen := analyzer.NewReportGeneratorWithConfig(cfg)

	if cfg.Output.Verbose {
		color.Cyan("🔍 Scanning %s with flags %v...\n", root, cfg.GetCompilerFlags())
		color.Cyan("🧩 %d loop content detectors active\n", analyzer.NewAnalyzer(nil).GetDetectorCount())
		if configFlag != "" {
			color.Cyan("📋 Using configuration: %s\n", configFlag)
		}
		if resumeFlag != "" {
			color.Cyan("⏯️  Resuming from: %s\n", resumeFlag)
		}
	} else {
		color.Cyan("🔍 Scanning %s...\n", root)
	}

	result, err := scanner.Run(ctx, scan.Options{
		Root:           root,
		OutputFile:     cfg.Output.OutputFile,
		CheckpointPath: checkpointFlag,
		ResumeFrom:     resumeFlag,
	})
	if errors.Is(err, scan.ErrInterrupted) {
		if result != nil {
			color.Yellow("⚠️  Scan interrupted after %d files; %d remaining\n",
				result.Document.Metadata.FilesProcessed, result.Document.Metadata.FilesRemaining)
			color.Yellow("📄 Partial analysis saved to: %s\n", result.OutputFile)
			color.Yellow("⏯️  Resume with: loopscan --resume %s %s\n", result.CheckpointPath, root)
		} else {
			color.Yellow("⚠️  Scan interrupted\n")
		}
		return
	}
	if err != nil {
		color.Red("Analysis failed: %v\n", err)
		os.Exit(1)
	}

	printReport(reportGen, cfg, result)

	if watchFlag {
		runWatch(ctx, scanner, reportGen, cfg, result, logger)
	}
}

func printReport(reportGen *analyzer.ReportGenerator, cfg *config.Config, result *scan.Result) {
	if cfg.Output.Format != "json" {
		fmt.Print(reportGen.Generate(result.Document))
	}
	color.Green("📄 Analysis saved to: %s\n", result.OutputFile)
}

func runWatch(ctx context.Context, scanner *scan.Scanner, reportGen *analyzer.ReportGenerator,
	cfg *config.Config, result *scan.Result, logger *slog.Logger) {
	fw, err := watcher.NewFileWatcher(result.Discoverer, logger, watcher.DefaultDelay)
	if err != nil {
		color.Red("Failed to start watch mode: %v\n", err)
		os.Exit(1)
	}
	defer fw.Close()

	var mu sync.Mutex
	handler := func(paths []string) error {
		mu.Lock()
		defer mu.Unlock()
		color.Cyan("🔄 %d file(s) changed, re-analyzing...\n", len(paths))
		if err := scanner.Refresh(ctx, result, paths); err != nil {
			return err
		}
		printReport(reportGen, cfg, result)
		return nil
	}

	if err := fw.Watch(handler); err != nil {
		color.Red("Failed to start watch mode: %v\n", err)
		os.Exit(1)
	}
	color.Cyan("👀 Watching %d directories for changes (Ctrl+C to stop)\n", len(fw.WatchedDirs()))
	<-ctx.Done()
	color.Cyan("👋 Stopped watching\n")
}

func generateConfig() {
	configPath := ".loopscan.yml"
	if err := config.GenerateConfig(configPath); err != nil {
		color.Red("Failed to generate config file: %v\n", err)
		os.Exit(1)
	}
	color.Green("✅ Generated sample configuration file: %s\n", configPath)
	color.Cyan("📝 Edit this file to customize loopscan behavior\n")
	color.Cyan("🚀 Run 'loopscan --config=%s .' to use it\n", configPath)
}
