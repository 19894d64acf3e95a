// Package config carries the small set of environment-derived inputs
// spec.md §6 recognizes (cache dir, swift-version, host platform,
// disable-prebuilts), plus root-level dependency overrides and mirrors
// (spec.md §4.2), the way golang-dep's context.go carries GOPATH
// discovery and analyzer info for a single invocation. No config-file
// framework is introduced; overrides are decoded from a small TOML file
// with github.com/pelletier/go-toml, the closest the teacher's stack
// comes to a root-override format (Gopkg.toml's [[override]] stanzas).
package config

import (
	"os"

	"github.com/pelletier/go-toml"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/semver"
)

// Override supersedes the requirement for a matching identity, per
// spec.md §4.2 ("Overrides from the root input supersede the requirement
// for matching identity").
type Override struct {
	Location    string
	Requirement semver.Requirement
}

// Mirror rewrites one identity to another before constraint emission; the
// original identity is retained only for diagnostics (spec.md §4.2, and
// the mirror-aware-pin-keys supplement in SPEC_FULL.md).
type Mirror struct {
	From, To string
}

// Config is the environment-derived, per-invocation configuration spec.md
// §6 names.
type Config struct {
	UserCacheDir      string
	SwiftVersion      string
	HostPlatform      string
	DisablePrebuilts  bool
	Overrides         map[string]Override // keyed by identity string
	Mirrors           map[string]Mirror   // keyed by original identity string
	TrustDir          string              // PEM certs trusted for prebuilt signature verification
}

const defaultCacheDirSuffix = "org.swift.swiftpm"

// FromEnvironment populates a Config from the recognized environment
// variables of spec.md §6. Only the user cache directory gets a default
// when unset (the OS user cache dir plus "org.swift.swiftpm"); an unset
// SWIFT_VERSION or WORKSPACE_HOST_PLATFORM leaves that field empty.
func FromEnvironment() Config {
	cfg := Config{
		Overrides: make(map[string]Override),
		Mirrors:   make(map[string]Mirror),
	}

	if v := os.Getenv("SWIFTPM_CACHE_DIR"); v != "" {
		cfg.UserCacheDir = v
	} else if uc, err := os.UserCacheDir(); err == nil {
		cfg.UserCacheDir = uc + string(os.PathSeparator) + defaultCacheDirSuffix
	}

	cfg.SwiftVersion = os.Getenv("SWIFT_VERSION")
	cfg.HostPlatform = os.Getenv("WORKSPACE_HOST_PLATFORM")
	cfg.DisablePrebuilts = os.Getenv("WORKSPACE_DISABLE_PREBUILTS") != ""
	cfg.TrustDir = os.Getenv("WORKSPACE_PREBUILTS_TRUST_DIR")

	return cfg
}

// --- root override file -----------------------------------------------

type rawOverrideFile struct {
	Override []rawOverride `toml:"override"`
	Mirror   []rawMirror   `toml:"mirror"`
}

type rawOverride struct {
	Name     string `toml:"name"`
	Location string `toml:"location"`
	Version  string `toml:"version,omitempty"`
	Branch   string `toml:"branch,omitempty"`
	Revision string `toml:"revision,omitempty"`
	Path     string `toml:"path,omitempty"`
}

type rawMirror struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// LoadOverrides decodes a root override file (see rawOverrideFile) and
// merges its contents into cfg.
func LoadOverrides(cfg *Config, data []byte) error {
	var raw rawOverrideFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return err
	}

	for _, o := range raw.Override {
		var req semver.Requirement
		switch {
		case o.Path != "":
			req = semver.NewUnversioned()
		case o.Branch != "":
			req = semver.NewBranch(o.Branch)
		case o.Revision != "":
			req = semver.NewRevision(o.Revision)
		case o.Version != "":
			v, err := semver.Parse(o.Version)
			if err != nil {
				return err
			}
			req = semver.NewExact(v)
		default:
			req = semver.NewUnversioned()
		}
		loc := o.Location
		if o.Path != "" {
			loc = o.Path
		}
		id := identity.Of(o.Name)
		cfg.Overrides[id.String()] = Override{Location: loc, Requirement: req}
	}

	for _, m := range raw.Mirror {
		fromID := identity.Of(m.From)
		cfg.Mirrors[fromID.String()] = Mirror{From: m.From, To: m.To}
	}

	return nil
}

// ResolveMirror rewrites loc's identity through any configured mirror,
// returning the (possibly different) identity to use going forward and
// whether a mirror applied.
func (c Config) ResolveMirror(loc string) (identity.Identity, bool) {
	id := identity.Of(loc)
	if m, ok := c.Mirrors[id.String()]; ok {
		return identity.Of(m.To), true
	}
	return id, false
}
