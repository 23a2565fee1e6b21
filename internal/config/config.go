// Package config provides configuration management for VisionAvatar
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Simulated SimulatedConfig `mapstructure:"simulated"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Announce  AnnounceConfig  `mapstructure:"announce"`
	Store     StoreConfig     `mapstructure:"store"`
}

// ServerConfig configures the local HTTP/WebSocket surface
type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	MaxRequestMB   int    `mapstructure:"max_request_mb"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// OracleConfig configures the face recognition oracle
type OracleConfig struct {
	// Mode is "remote" or "simulated"
	Mode           string        `mapstructure:"mode"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MatchThreshold int           `mapstructure:"match_threshold"` // 0-100
	CollectionDesc string        `mapstructure:"collection_desc"`
}

// SimulatedConfig tunes the simulated oracle's probabilistic model.
// These are presentation parameters, not calibrated recognition rates.
type SimulatedConfig struct {
	MatchProbability float64 `mapstructure:"match_probability"`
	MaxCollection    int     `mapstructure:"max_collection"`
	SimilarityMin    float64 `mapstructure:"similarity_min"`
	SimilarityMax    float64 `mapstructure:"similarity_max"`
	LiveRate         float64 `mapstructure:"live_rate"`
}

// MonitorConfig configures the periodic capture loops
type MonitorConfig struct {
	FastTickInterval time.Duration `mapstructure:"fast_tick_interval"`
	LivenessInterval time.Duration `mapstructure:"liveness_interval"`
	LivenessSample   time.Duration `mapstructure:"liveness_sample"`
}

// AnnounceConfig configures announcement cooldowns
type AnnounceConfig struct {
	// ChangeCooldown gates unknown-to-recognized and demographics-jump
	// announcements
	ChangeCooldown time.Duration `mapstructure:"change_cooldown"`
	// RecognitionCooldown gates the name correction after a generic greeting
	RecognitionCooldown time.Duration `mapstructure:"recognition_cooldown"`
	// DemographicJumpYears is the age delta treated as a different person
	DemographicJumpYears float64 `mapstructure:"demographic_jump_years"`
}

// StoreConfig configures the profile store
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:3001",
			MaxRequestMB:   50,
			AllowedOrigins: "*",
		},
		Oracle: OracleConfig{
			Mode:           "simulated",
			BaseURL:        "http://localhost:3001/api",
			Timeout:        30 * time.Second,
			MatchThreshold: 40, // permissive, tolerates lighting/angle variation
			CollectionDesc: "Vision Avatar Face Recognition Collection",
		},
		Simulated: SimulatedConfig{
			MatchProbability: 0.7,
			MaxCollection:    5,
			SimilarityMin:    0.75,
			SimilarityMax:    0.95,
			LiveRate:         0.95,
		},
		Monitor: MonitorConfig{
			FastTickInterval: 3 * time.Second,
			LivenessInterval: 60 * time.Second,
			LivenessSample:   3 * time.Second,
		},
		Announce: AnnounceConfig{
			ChangeCooldown:       60 * time.Second,
			RecognitionCooldown:  10 * time.Second,
			DemographicJumpYears: 10,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(home, ".visionavatar", "profiles.db"),
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".visionavatar")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("VISIONAVATAR")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".visionavatar")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("server", cfg.Server)
	viper.Set("oracle", cfg.Oracle)
	viper.Set("simulated", cfg.Simulated)
	viper.Set("monitor", cfg.Monitor)
	viper.Set("announce", cfg.Announce)
	viper.Set("store", cfg.Store)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".visionavatar"), nil
}

// ConfigFilePath returns the path of the active config file
func ConfigFilePath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
