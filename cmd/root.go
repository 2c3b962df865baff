package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manimchat/manimchat/internal/config"
	"github.com/manimchat/manimchat/internal/logging"
	"github.com/manimchat/manimchat/internal/provider"
	"github.com/manimchat/manimchat/internal/session"
)

var (
	cfgFile      string
	backendFlag  string
	modelFlag    string
	providerFlag string
	logLevelFlag string
	logFileFlag  string
	useTUI       bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "manimchat",
		Short: "Chat your way to math animations",
		Long: "manimchat turns plain-language descriptions of math and CS concepts into\n" +
			"Manim animations, or explains them in Markdown when a video is not the right answer.",
		// Running manimchat with no subcommand starts chat mode.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Default TUI on when stdout is a terminal and --tui was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("tui") && term.IsTerminal(int(os.Stdout.Fd())) {
				useTUI = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/manimchat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&backendFlag, "backend", "b", "", "generation backend URL")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model (serve)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider (serve)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "use bubbletea TUI mode (default: auto-detect terminal)")

	// Subcommands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))
	rootCmd.AddCommand(newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// displayVersion returns a formatted version string for the TUI welcome page,
// e.g. "v0.1.0 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI flags override config values
	if backendFlag != "" {
		cfg.Backend.URL = backendFlag
	}
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if logFileFlag != "" {
		cfg.Log.File = logFileFlag
	}
	return cfg, nil
}

// newLogger builds the process logger. In TUI mode log lines would tear
// the screen, so they go to a file next to the config unless one is set.
func newLogger(cfg *config.Config, tuiMode bool) (*logrus.Logger, func() error, error) {
	opts := logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON}
	if tuiMode && opts.File == "" {
		dir, err := config.Dir()
		if err != nil {
			return logging.Discard(), func() error { return nil }, nil
		}
		opts.File = filepath.Join(dir, "manimchat.log")
	}
	return logging.New(opts)
}

// openHistory opens the key-value store selected by history.store.
func openHistory(cfg *config.Config, log logrus.FieldLogger) (session.KV, error) {
	switch cfg.History.Store {
	case "file":
		dir := cfg.History.Path
		if dir == "" {
			d, err := session.DefaultFileDir()
			if err != nil {
				return nil, fmt.Errorf("history dir: %w", err)
			}
			dir = d
		}
		log.WithField("dir", dir).Debug("using file history store")
		return session.NewFileKV(dir), nil
	default:
		path := cfg.History.Path
		if path == "" {
			p, err := session.DefaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("history db path: %w", err)
			}
			path = p
		}
		log.WithField("path", path).Debug("using sqlite history store")
		kv, err := session.NewSQLiteKV(path)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		return kv, nil
	}
}

// buildProvider creates the LLM provider the generation server talks to.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.ResolvedProvider()

	if pc.APIKey == "" && name != "ollama" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: manimchat init",
			name, name,
		)
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(pc.APIKey, pc.Model), nil
	default:
		// All other providers use OpenAI-compatible API. An empty base URL
		// means the official OpenAI endpoint.
		if pc.BaseURL == "" && name != "openai" {
			return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
		}
		return provider.NewOpenAIProvider(pc.APIKey, pc.BaseURL, pc.Model), nil
	}
}
