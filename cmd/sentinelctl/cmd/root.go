package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	daemonURL    string
	outputFormat string
	cfgFile      string
	apiKey       string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sentinelctl",
	Short: "CLI for the sentinel safety supervisor",
	Long:  `sentinelctl is a command line interface for inspecting supervised cycles, quarantines, and unsafe conditions on a sentinel daemon, and for releasing quarantines as an operator.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sentinel/config)")
	rootCmd.PersistentFlags().StringVar(&daemonURL, "daemon", "", "daemon API URL (default from config or http://localhost:8070)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".sentinel")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.BindEnv("api_key", "SENTINEL_API_KEY")
	viper.BindEnv("daemon_url", "SENTINEL_URL")

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetString("daemon_url") != "" && daemonURL == "" {
			daemonURL = viper.GetString("daemon_url")
		}
		if viper.GetString("api_key") != "" && apiKey == "" {
			apiKey = viper.GetString("api_key")
		}
	}

	if apiKey == "" && viper.GetString("api_key") != "" {
		apiKey = viper.GetString("api_key")
	}
	if daemonURL == "" && viper.GetString("daemon_url") != "" {
		daemonURL = viper.GetString("daemon_url")
	}

	if daemonURL == "" {
		daemonURL = "http://localhost:8070"
	}
}

// GetDaemonURL returns the configured daemon URL with trailing slashes removed
func GetDaemonURL() string {
	return strings.TrimRight(daemonURL, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// CreateAuthenticatedRequest creates an HTTP request with authentication header if API key is configured
func CreateAuthenticatedRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}

	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// getJSON performs an authenticated GET and decodes the response into out.
func getJSON(path string, out interface{}) error {
	req, err := CreateAuthenticatedRequest("GET", GetDaemonURL()+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return decodeInto(body, out)
}
