// Package cli is the operator command line for the admin API.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	serverURL    string
	apiKey       string
	operator     string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "coachctl",
	Short:         "Operate the coach hire pipelines",
	Long:          `coachctl talks to the worker's admin API: review tasks, AI config, budget, model pricing and jobs.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.coachctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "admin API base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "admin API key")
	rootCmd.PersistentFlags().StringVar(&operator, "operator", "", "operator email; review actions are recorded against it")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
}

// initConfig layers flags over env (COACHCTL_*) over the config file.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".coachctl"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("coachctl")
	viper.AutomaticEnv()
	viper.SetDefault("server", "http://localhost:8080")
	viper.SetDefault("timeout", 15*time.Second)

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "read config %s: %v\n", cfgFile, err)
	}
	if serverURL == "" {
		serverURL = viper.GetString("server")
	}
	if apiKey == "" {
		apiKey = viper.GetString("api_key")
	}
	if operator == "" {
		operator = viper.GetString("operator")
	}
}

func newClient() *Client {
	c := NewClient(serverURL, apiKey, viper.GetDuration("timeout"))
	if operator != "" {
		c.AsOperator(operator)
	}
	return c
}

func isJSON() bool { return outputFormat == "json" }

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
