package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docstat"
)

// app carries the persistent flags and output streams shared by commands.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfgFile string
	verbose bool
	noColor bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "docstat",
		Short: "Document statistics for PDF and DOCX files",
		Long: `docstat counts characters, words, whitespace and images in PDF and DOCX
documents, and keeps a local history of past analyses.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.initUI()
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file path (YAML or JSON)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		a.analyzeCmd(),
		a.historyCmd(),
		a.similarCmd(),
		a.deleteCmd(),
		a.summaryCmd(),
		a.exportCmd(),
	)
	return root
}

func (a *app) initUI() {
	if a.noColor {
		color.NoColor = true
	}
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level})))
}

// loadConfig layers .env, the config file and DOCSTAT_* variables over the
// defaults.
func (a *app) loadConfig() (docstat.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}

	cfg := docstat.DefaultConfig()
	if a.cfgFile != "" {
		var err error
		if cfg, err = docstat.LoadConfig(a.cfgFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (a *app) openEngine(opts ...docstat.Option) (docstat.Engine, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e, err := docstat.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return e, nil
}
