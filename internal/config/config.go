package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Address the HTTP API listens on
	ListenAddr string

	// Path to the SQLite database
	DatabasePath string

	// Stream metadata feed
	FeedURL         string
	ArtworkURL      string
	PollInterval    int // seconds between poll cycles
	FeedTimeout     int // seconds allowed per feed fetch
	MaxFeedFailures int // consecutive failures before the poller stops

	// Rotation simulator
	RotateInterval int // seconds between simulated track changes

	// Station identification, shown when nothing has ever played
	StationName    string
	StationTagline string

	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_path", filepath.Join(configDir, "spinlog.sqlite"))
	v.SetDefault("feed_url", "https://d3d4yli4hf5bmh.cloudfront.net/metadatav2.json")
	v.SetDefault("artwork_url", "https://d3d4yli4hf5bmh.cloudfront.net/cover.jpg")
	v.SetDefault("poll_interval", 15)
	v.SetDefault("feed_timeout", 5)
	v.SetDefault("max_feed_failures", 5)
	v.SetDefault("rotate_interval", 180)
	v.SetDefault("station_name", "Radio Calico")
	v.SetDefault("station_tagline", "24-bit Lossless Streaming")
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")

	// Read config file (optional - don't fail if missing)
	_ = v.ReadInConfig()

	// Read from environment variables
	v.SetEnvPrefix("SPINLOG")
	v.AutomaticEnv()

	cfg := &Config{
		ListenAddr:      v.GetString("listen_addr"),
		DatabasePath:    v.GetString("database_path"),
		FeedURL:         v.GetString("feed_url"),
		ArtworkURL:      v.GetString("artwork_url"),
		PollInterval:    v.GetInt("poll_interval"),
		FeedTimeout:     v.GetInt("feed_timeout"),
		MaxFeedFailures: v.GetInt("max_feed_failures"),
		RotateInterval:  v.GetInt("rotate_interval"),
		StationName:     v.GetString("station_name"),
		StationTagline:  v.GetString("station_tagline"),
		OutputFormat:    v.GetString("output_format"),
	}

	return cfg, nil
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "spinlog")

	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}
