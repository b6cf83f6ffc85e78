package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/reinhart/webmd/internal/configuration"
	"github.com/reinhart/webmd/internal/logger"
	"github.com/reinhart/webmd/internal/markdown"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgFile string
	cfg     *configuration.Config
)

var rootCmd = &cobra.Command{
	Use:   "webmd",
	Short: "Answer prompts with an LLM that can read webpages as Markdown",
	Long: `webmd sends prompts to a chat-completion service and lets the model call a
tool that fetches a webpage and converts it to Markdown. Prompts in one run share
a conversation, and each prompt gets its own result or error.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = configuration.LoadConfig(cfgFile)
		if err != nil {
			return err
		}

		logger.Init()
		if cfg.Agent.Debug {
			logger.DebugMode = true
			logger.SetOutput(os.Stderr)
		}
		logger.Debug("Logger initialized (config: %q)", cfg.Path)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.toml, then $HOME/.config/webmd/config.toml)")
}

func newConverter(cfg *configuration.Config) *markdown.Converter {
	fetcher := markdown.NewPageFetcher(
		markdown.WithTimeout(cfg.Fetch.Timeout.Duration),
		markdown.WithUserAgent(cfg.Fetch.UserAgent),
	)
	return markdown.NewConverter(fetcher, cfg.Fetch.MaxBodyBytes)
}

// defaultModel is the configured model for the active provider.
func defaultModel(cfg *configuration.Config, provider string) string {
	if provider == "" {
		provider = cfg.LLM.Provider
	}
	switch strings.ToLower(provider) {
	case "anthropic":
		return cfg.LLM.AnthropicModel
	case "gemini":
		return cfg.LLM.GeminiModel
	case "ollama":
		return cfg.LLM.OllamaModel
	default:
		return cfg.LLM.OpenAIModel
	}
}
