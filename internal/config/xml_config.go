// Package config provides XML-based configuration management for the import tracker.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"ConceptImporter"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Import configuration
	Import ImportConfig `xml:"Import"`

	// Session configuration
	Session SessionConfig `xml:"Session"`

	// Notification view defaults
	Notification NotificationConfig `xml:"Notification"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains notification log settings
type StorageConfig struct {
	DataDirectory string `xml:"DataDirectory"`
	// LogBackend is one of memory, file or duckdb.
	LogBackend string `xml:"LogBackend"`
	QuotaBytes int64  `xml:"QuotaBytes"`
}

// ImportConfig contains concept repository settings
type ImportConfig struct {
	APIBaseURL            string `xml:"APIBaseURL"`
	APIToken              string `xml:"APIToken"`
	RequestTimeoutSeconds int    `xml:"RequestTimeoutSeconds"`
	MaxConcurrentImports  int    `xml:"MaxConcurrentImports"`
	// CatalogFile, when set, serves concepts from a YAML file instead of the API.
	CatalogFile string `xml:"CatalogFile"`
}

// SessionConfig contains session lifetime settings
type SessionConfig struct {
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
}

// NotificationConfig contains notification view settings
type NotificationConfig struct {
	DefaultRowsPerPage int `xml:"DefaultRowsPerPage"`
	// StaleAfterMinutes fails restored in-progress imports older than this; 0 disables.
	StaleAfterMinutes int `xml:"StaleAfterMinutes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	EnableRequestLogging    bool `xml:"EnableRequestLogging"`
	WebSocketMaxMessageSize int  `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "10M",
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
			LogBackend:    "file",
			QuotaBytes:    5 * 1024 * 1024,
		},
		Import: ImportConfig{
			APIBaseURL:            "https://api.openconceptlab.org",
			RequestTimeoutSeconds: 60,
			MaxConcurrentImports:  4,
		},
		Session: SessionConfig{
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
		},
		Notification: NotificationConfig{
			DefaultRowsPerPage: 10,
			StaleAfterMinutes:  0,
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Concept Importer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// envOverrides maps environment variables onto the fields they replace.
var envOverrides = []struct {
	name  string
	apply func(c *AppConfig, v string)
}{
	{"PORT", func(c *AppConfig, v string) {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}},
	{"DATA_DIR", func(c *AppConfig, v string) { c.Storage.DataDirectory = v }},
	{"LOG_BACKEND", func(c *AppConfig, v string) { c.Storage.LogBackend = v }},
	{"OCL_API_URL", func(c *AppConfig, v string) { c.Import.APIBaseURL = v }},
	{"OCL_API_TOKEN", func(c *AppConfig, v string) { c.Import.APIToken = v }},
	{"CATALOG_FILE", func(c *AppConfig, v string) { c.Import.CatalogFile = v }},
}

func (c *AppConfig) applyEnvironmentOverrides() {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(c, v)
		}
	}
}

// Validate rejects settings the server cannot start with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	switch c.Storage.LogBackend {
	case "memory", "file", "duckdb":
	default:
		return fmt.Errorf("unknown log backend %q (want memory, file or duckdb)", c.Storage.LogBackend)
	}
	if c.Import.MaxConcurrentImports < 1 {
		return fmt.Errorf("MaxConcurrentImports must be at least 1, got %d", c.Import.MaxConcurrentImports)
	}
	if c.Import.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("RequestTimeoutSeconds must be positive, got %d", c.Import.RequestTimeoutSeconds)
	}
	if c.Notification.StaleAfterMinutes < 0 {
		return fmt.Errorf("StaleAfterMinutes must not be negative, got %d", c.Notification.StaleAfterMinutes)
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if c.Import.CatalogFile != "" && !filepath.IsAbs(c.Import.CatalogFile) {
		c.Import.CatalogFile = filepath.Join(configDir, c.Import.CatalogFile)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// RequestTimeout is the concept API request timeout.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Import.RequestTimeoutSeconds) * time.Second
}

// SessionTimeout is how long an idle session stays loaded.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Session.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval is how often idle sessions are unloaded.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}

// StaleAfter is the age past which a restored in-progress import is failed.
func (c *AppConfig) StaleAfter() time.Duration {
	return time.Duration(c.Notification.StaleAfterMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Storage.DataDirectory, err)
	}
	return nil
}
