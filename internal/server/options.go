package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"example.com/tlegate/internal/catalog"
	"example.com/tlegate/internal/gate"
	"example.com/tlegate/internal/metrics"
	"example.com/tlegate/internal/report"
)

// RequiredProfiles must resolve before the daemon starts.
var RequiredProfiles = []string{gate.ProfileStrict, gate.ProfilePermissive}

const defaultMaxBody = 64 << 20

// Options configures server creation.
type Options struct {
	StorageDir string
	// ProfileFile is a YAML or JSON profile document loaded on top of the
	// built-in profiles.
	ProfileFile string
	Profiles    []gate.Profile
	Concurrency int
	// MaxBodyBytes caps request bodies other than uploads.
	MaxBodyBytes int64
	Lang         report.Language
	Catalog      *catalog.Store
	Metrics      *metrics.Collector
	// SigningKey is a PEM RSA private key. When set, batch manifests are
	// signed and published as manifest.jws.
	SigningKey []byte
}

// LoadProfileFile reads extra profiles from path. A relative path is
// resolved against base when base is not empty.
func LoadProfileFile(base, path string) ([]gate.Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("profile file path is empty")
	}
	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}
	profiles, err := gate.LoadProfiles(path)
	if err != nil {
		return nil, fmt.Errorf("load profiles %s: %w", path, err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("profile file %s contains no profiles", path)
	}
	return profiles, nil
}

func buildRegistry(opts Options) (*gate.Registry, error) {
	extra := append([]gate.Profile(nil), opts.Profiles...)
	if strings.TrimSpace(opts.ProfileFile) != "" {
		loaded, err := LoadProfileFile("", opts.ProfileFile)
		if err != nil {
			return nil, err
		}
		extra = append(extra, loaded...)
	}
	seen := make(map[string]bool)
	for _, p := range extra {
		id := strings.TrimSpace(p.ProfileId)
		if id == "" {
			return nil, errors.New("profile missing id")
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate profile %s configured", id)
		}
		seen[id] = true
	}
	reg := gate.NewRegistry(extra...)
	for _, required := range RequiredProfiles {
		if _, err := reg.Get(required); err != nil {
			return nil, fmt.Errorf("required profile %s not configured", required)
		}
	}
	return reg, nil
}
