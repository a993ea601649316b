package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect tasker configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, config.yaml, TASKER_* environment
variables and command-line flags have been applied. Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AppConfig == nil {
			return fmt.Errorf("configuration not loaded")
		}
		cfg := *AppConfig
		cfg.Notifications.Slack.WebhookURL = maskSecret(cfg.Notifications.Slack.WebhookURL)

		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the data directory and config file locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "data directory: %s\n", BasePath)
		_, _ = fmt.Fprintf(out, "config file:    %s\n", ConfigFile)
		return nil
	},
}

// maskSecret keeps the scheme and host of a URL-like secret and hides the
// rest.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if scheme, rest, ok := strings.Cut(s, "://"); ok {
		host, _, _ := strings.Cut(rest, "/")
		return scheme + "://" + host + "/****"
	}
	return "****"
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
