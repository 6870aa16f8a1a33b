// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
)

// Options holds the configuration values for the application.
type Options struct {
	// VaultPath is the location of the encrypted vault file.
	VaultPath string

	// KDF selects the key-derivation algorithm used when creating a
	// new vault ("pbkdf2-sha256" or "argon2id"). Existing vaults use
	// the algorithm stamped in their header.
	KDF string

	// KDFIterations is the cost parameter recorded at vault creation.
	// Zero selects the algorithm default.
	KDFIterations int

	// IdleTimeout is the idle duration after which an unlocked session
	// locks itself, as a time.ParseDuration string.
	IdleTimeout string

	// LogLevel sets the logging verbosity.
	LogLevel string

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.VaultPath, "f", "", "path to the vault file (default: ~/.passkeeper.vault)")
	flag.StringVar(&options.KDF, "kdf", "pbkdf2-sha256", "key derivation algorithm for new vaults")
	flag.IntVar(&options.KDFIterations, "kdf-iterations", 0, "key derivation cost for new vaults (0 = default)")
	flag.StringVar(&options.IdleTimeout, "idle-timeout", "5m", "idle duration before the session auto-locks")
	flag.StringVar(&options.LogLevel, "log-level", "info", "log level")
	flag.StringVar(&options.Config, "config", "", "path to config file")
	flag.StringVar(&options.Config, "c", "", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("PASSKEEPER_CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if vaultPath := os.Getenv("PASSKEEPER_VAULT"); vaultPath != "" {
		options.VaultPath = vaultPath
	}

	if idleTimeout := os.Getenv("PASSKEEPER_IDLE_TIMEOUT"); idleTimeout != "" {
		options.IdleTimeout = idleTimeout
	}

	return options
}
