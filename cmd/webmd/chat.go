package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/reinhart/webmd/internal/connector"
	"github.com/reinhart/webmd/internal/logger"
	"github.com/reinhart/webmd/internal/ui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		settingArgs, _ := cmd.Flags().GetStringArray("setting")
		props, _ := cmd.Flags().GetStringArray("prop")

		properties, err := parseKeyValues(props, true)
		if err != nil {
			return fmt.Errorf("invalid --prop: %w", err)
		}
		settings, err := parseKeyValues(settingArgs, false)
		if err != nil {
			return fmt.Errorf("invalid --setting: %w", err)
		}
		if model == "" {
			provider, _ := settings[connector.SettingProvider].(string)
			model = defaultModel(cfg, provider)
		}

		// The TUI owns the terminal, so logs go to a file
		if logger.DebugMode {
			f, err := tea.LogToFile("debug.log", "debug")
			if err != nil {
				return fmt.Errorf("could not open debug.log: %w", err)
			}
			defer f.Close()
			logger.SetOutput(f)
		}

		agent, release, err := connector.New(cfg, newConverter(cfg)).NewAgent(cmd.Context(), model, properties, settings)
		if err != nil {
			return err
		}
		defer release()

		title := model
		if title == "" {
			title = "Assistant"
		}
		p := tea.NewProgram(ui.NewModel(agent, title), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running chat: %w", err)
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().StringP("model", "m", "", "model identifier (default: the configured model for the provider)")
	chatCmd.Flags().StringArray("prop", nil, "completion property key=value")
	chatCmd.Flags().StringArray("setting", nil, "setting KEY=VALUE (API_KEY, PROVIDER, BASE_URL)")
	rootCmd.AddCommand(chatCmd)
}
