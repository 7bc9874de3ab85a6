package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/tlegate/internal/tle"
)

// Profile is a named set of parser options. Recover selects the recovery
// state machine instead of the strict orchestrator.
type Profile struct {
	ProfileId   string      `json:"profileId" yaml:"profileId"`
	Version     string      `json:"version,omitempty" yaml:"version,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Recover     bool        `json:"recover,omitempty" yaml:"recover,omitempty"`
	Options     tle.Options `json:"options" yaml:"options"`
}

const (
	ProfileStrict     = "strict"
	ProfilePermissive = "permissive"
	ProfileRecover    = "recover"
)

// BuiltinProfiles returns the profiles available without configuration.
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileStrict: {
			ProfileId:   ProfileStrict,
			Version:     "1",
			Description: "every field-level failure rejects the record",
			Options:     tle.DefaultOptions(),
		},
		ProfilePermissive: {
			ProfileId:   ProfilePermissive,
			Version:     "1",
			Description: "checksum, catalog number and classification problems become warnings",
			Options:     tle.PermissiveOptions(),
		},
		ProfileRecover: {
			ProfileId:   ProfileRecover,
			Version:     "1",
			Description: "best-effort parsing with a recovery ledger",
			Recover:     true,
			Options:     tle.DefaultOptions(),
		},
	}
}

// LoadProfiles reads a YAML or JSON profile file. Options left out of a
// profile take their default values.
func LoadProfiles(path string) ([]Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeProfiles(b, strings.ToLower(filepath.Ext(path)) == ".json")
}

// DecodeProfiles decodes a document with a top-level profiles list.
func DecodeProfiles(b []byte, isJSON bool) ([]Profile, error) {
	var raw struct {
		Profiles []map[string]any `json:"profiles" yaml:"profiles"`
	}
	var err error
	if isJSON {
		err = json.Unmarshal(b, &raw)
	} else {
		err = yaml.Unmarshal(b, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	out := make([]Profile, 0, len(raw.Profiles))
	for i, m := range raw.Profiles {
		p := Profile{Options: tle.DefaultOptions()}
		// round-trip through YAML so missing option keys keep their defaults
		enc, err := yaml.Marshal(m)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(enc, &p); err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		if p.ProfileId == "" {
			return nil, fmt.Errorf("profile %d: missing profileId", i)
		}
		if p.Options.Mode, err = tle.ParseMode(string(p.Options.Mode)); err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.ProfileId, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Registry resolves profile names to profiles.
type Registry struct {
	profiles map[string]Profile
}

func NewRegistry(extra ...Profile) *Registry {
	r := &Registry{profiles: BuiltinProfiles()}
	for _, p := range extra {
		r.profiles[p.ProfileId] = p
	}
	return r
}

func (r *Registry) Get(name string) (Profile, error) {
	if name == "" {
		name = ProfileStrict
	}
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) All() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, n := range r.Names() {
		out = append(out, r.profiles[n])
	}
	return out
}
