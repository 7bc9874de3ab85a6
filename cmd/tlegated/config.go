package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/tlegate/internal/gate"
	"example.com/tlegate/internal/report"
	"example.com/tlegate/internal/server"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type manifestSigningConfig struct {
	PrivateKey string `yaml:"privateKey"`
}

type config struct {
	Port         int            `yaml:"port"`
	StorageDir   string         `yaml:"storageDir"`
	Concurrency  int            `yaml:"concurrency"`
	MaxBodyBytes int64          `yaml:"maxBodyBytes"`
	ProfileFile  string         `yaml:"profileFile"`
	RawProfiles  []yaml.Node    `yaml:"profiles"`
	Catalog      string         `yaml:"catalog"`
	Metrics      *bool          `yaml:"metrics"`
	Lang         string         `yaml:"lang"`
	Logs         logConfig      `yaml:"logs"`

	ManifestSigning manifestSigningConfig `yaml:"manifestSigning"`

	profiles []gate.Profile
	lang     report.Language
}

func (c config) metricsEnabled() bool {
	return c.Metrics == nil || *c.Metrics
}

// loadConfig reads the daemon configuration. Relative paths are resolved
// against the directory holding the config file.
func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "data"
	}
	cfg.StorageDir = resolvePath(cfg.StorageDir)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.MaxBodyBytes < 0 {
		return cfg, errors.New("maxBodyBytes must not be negative")
	}
	if len(cfg.RawProfiles) > 0 {
		// re-encode so inline profiles get the same defaults as a profile file
		doc, err := yaml.Marshal(map[string][]yaml.Node{"profiles": cfg.RawProfiles})
		if err != nil {
			return cfg, err
		}
		if cfg.profiles, err = gate.DecodeProfiles(doc, false); err != nil {
			return cfg, err
		}
	}
	if cfg.ProfileFile != "" {
		loaded, err := server.LoadProfileFile(baseDir, cfg.ProfileFile)
		if err != nil {
			return cfg, err
		}
		cfg.profiles = append(cfg.profiles, loaded...)
		cfg.ProfileFile = resolvePath(cfg.ProfileFile)
	}
	if cfg.Catalog == "" {
		cfg.Catalog = filepath.Join(cfg.StorageDir, "catalog.db")
	} else if cfg.Catalog != "off" {
		cfg.Catalog = resolvePath(cfg.Catalog)
	}
	if cfg.ManifestSigning.PrivateKey != "" {
		cfg.ManifestSigning.PrivateKey = resolvePath(cfg.ManifestSigning.PrivateKey)
	}
	if cfg.lang, err = report.ParseLanguage(cfg.Lang); err != nil {
		return cfg, err
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	} else {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}
