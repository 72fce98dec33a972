package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shehackedyou/scriptnav"
	"github.com/spf13/cobra"
)

// Set at build time
var version = "dev"

var (
	logLevelFlag string
	timeoutFlag  time.Duration

	navigator *scriptnav.Navigator
)

var rootCmd = &cobra.Command{
	Use:     "scriptnav-cli",
	Short:   "Navigate scripting-language sources from the command line",
	Version: version,
	Long: `scriptnav-cli answers the same queries as the language server for a
single file: call signature context, completions, import checks, syntax
tree dumps and cross-module name search.

Positions are 1-based line and 1-based byte column.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error) - overrides config")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", time.Minute, "Timeout for a single query")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup initializes the navigator and the final logger.
func setup(cmd *cobra.Command, args []string) error {
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	nav, initErr := scriptnav.NewNavigator(tempLogger)
	if initErr != nil && !errors.Is(initErr, scriptnav.ErrConfig) {
		return fmt.Errorf("initializing navigator: %w", initErr)
	}
	if nav == nil {
		return errors.New("navigator initialization returned nil")
	}

	chosenLogLevel := nav.GetCurrentConfig().LogLevel
	if logLevelFlag != "" {
		chosenLogLevel = logLevelFlag
	}
	logLevel, parseErr := scriptnav.ParseLogLevel(chosenLogLevel)
	if parseErr != nil {
		tempLogger.Warn("Invalid log level specified, using default 'warn'", "specified_level", chosenLogLevel, "error", parseErr)
		logLevel = slog.LevelWarn
	}
	if logLevelFlag == "" && logLevel < slog.LevelWarn {
		// Keep CLI output quiet unless asked for.
		logLevel = slog.LevelWarn
	}
	finalLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(finalLogger)

	if initErr != nil {
		slog.Warn("Navigator initialized with configuration warnings", "error", initErr)
	}
	navigator = nav
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if navigator == nil {
		return nil
	}
	err := navigator.Close()
	navigator = nil
	return err
}

func queryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeoutFlag)
}

// readSource validates path and returns its absolute form and content.
func readSource(path string) (string, []byte, error) {
	absPath, err := scriptnav.ValidateAndGetFilePath(path, slog.Default())
	if err != nil {
		return "", nil, err
	}
	src, err := os.ReadFile(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", scriptnav.ErrParse, err)
	}
	return absPath, src, nil
}

// positionFlags holds the 1-based --line/--col flags of a command.
type positionFlags struct {
	line int
	col  int
}

func (p *positionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.line, "line", 0, "Line number (1-based)")
	cmd.Flags().IntVar(&p.col, "col", 0, "Column number (1-based, bytes)")
	_ = cmd.MarkFlagRequired("line")
	_ = cmd.MarkFlagRequired("col")
}

// pos converts the flags to a zero-based position.
func (p *positionFlags) pos() (scriptnav.Pos, error) {
	if p.line <= 0 {
		return scriptnav.Pos{}, fmt.Errorf("%w: --line must be positive, got %d", scriptnav.ErrInvalidPositionInput, p.line)
	}
	if p.col <= 0 {
		return scriptnav.Pos{}, fmt.Errorf("%w: --col must be positive, got %d", scriptnav.ErrInvalidPositionInput, p.col)
	}
	return scriptnav.Pos{Line: p.line - 1, Column: p.col - 1}, nil
}
