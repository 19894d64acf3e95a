package manifest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/semver"
)

// rawManifest/rawDependency/rawTarget mirror golang-dep's rawManifest /
// possibleProps (manifest.go): a wire-friendly shape decoded from JSON and
// then converted into the richer in-memory Manifest. This is NOT the real
// manifest parser (that's an out-of-scope collaborator per spec.md §1); it
// gives this repo's tests, LocalContainer fixtures and the workspacectl
// CLI's manifest loader a manifest to read without the real parser.
type rawManifest struct {
	DisplayName  string          `json:"name"`
	ToolsVersion string          `json:"toolsVersion"`
	Dependencies []rawDependency `json:"dependencies"`
	Products     []rawProduct    `json:"products"`
	Targets      []rawTarget     `json:"targets"`
	Platforms    []string        `json:"platforms,omitempty"`
}

type rawDependency struct {
	Location string   `json:"location"`
	Version  string   `json:"version,omitempty"`
	Low      string   `json:"from,omitempty"`
	High     string   `json:"to,omitempty"`
	Branch   string   `json:"branch,omitempty"`
	Revision string   `json:"revision,omitempty"`
	Products []string `json:"products,omitempty"` // empty means "everything"
}

type rawProduct struct {
	Name    string   `json:"name"`
	Targets []string `json:"targets"`
}

type rawTarget struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Dependencies []string `json:"dependencies,omitempty"`
	BinaryPath   string   `json:"binaryPath,omitempty"`
	BinaryURL    string   `json:"binaryURL,omitempty"`
	Checksum     string   `json:"checksum,omitempty"`
	UnsafeFlags  bool     `json:"unsafeFlags,omitempty"`
}

// Decode reads a fixture manifest from r. loc is the manifest's own
// location, used to derive its Identity.
func Decode(r io.Reader, loc string) (*Manifest, error) {
	var raw rawManifest
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", loc, err)
	}

	m := &Manifest{
		DisplayName: raw.DisplayName,
		Identity:    identity.Of(loc),
		Location:    loc,
		Platforms:   raw.Platforms,
	}
	if raw.ToolsVersion != "" {
		var maj, min int
		if _, err := fmt.Sscanf(raw.ToolsVersion, "%d.%d", &maj, &min); err != nil {
			return nil, fmt.Errorf("manifest: invalid toolsVersion %q: %w", raw.ToolsVersion, err)
		}
		m.ToolsVersion = ToolsVersion{Major: maj, Minor: min}
	}

	for _, rd := range raw.Dependencies {
		dep, err := toDependency(rd)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", loc, err)
		}
		m.Dependencies = append(m.Dependencies, dep)
	}

	for _, rp := range raw.Products {
		m.Products = append(m.Products, Product{Name: rp.Name, Targets: rp.Targets})
	}

	for _, rt := range raw.Targets {
		t, err := toTarget(rt)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", loc, err)
		}
		m.Targets = append(m.Targets, t)
	}

	return m, nil
}

func toDependency(rd rawDependency) (PackageDependency, error) {
	var req semver.Requirement
	set := 0
	if rd.Branch != "" {
		req = semver.NewBranch(rd.Branch)
		set++
	}
	if rd.Revision != "" {
		req = semver.NewRevision(rd.Revision)
		set++
	}
	if rd.Version != "" {
		v, err := semver.Parse(rd.Version)
		if err != nil {
			return PackageDependency{}, err
		}
		req = semver.NewExact(v)
		set++
	}
	if rd.Low != "" || rd.High != "" {
		low, err := semver.Parse(rd.Low)
		if err != nil {
			return PackageDependency{}, err
		}
		high, err := semver.Parse(rd.High)
		if err != nil {
			return PackageDependency{}, err
		}
		req = semver.NewRange(low, high)
		set++
	}
	if set == 0 {
		req = semver.NewUnversioned()
	} else if set > 1 {
		return PackageDependency{}, fmt.Errorf("multiple constraints specified for %s, can only specify one", rd.Location)
	}

	filter := EverythingFilter()
	if len(rd.Products) > 0 {
		filter = SpecificFilter(rd.Products...)
	}

	return PackageDependency{
		Identity:      identity.Of(rd.Location),
		Location:      rd.Location,
		Requirement:   req,
		ProductFilter: filter,
	}, nil
}

func toTarget(rt rawTarget) (Target, error) {
	kind, err := parseKind(rt.Kind)
	if err != nil {
		return Target{}, err
	}
	t := Target{
		Name:         rt.Name,
		Kind:         kind,
		Dependencies: rt.Dependencies,
		UnsafeFlags:  rt.UnsafeFlags,
	}
	if kind == Binary {
		t.Binary = &BinarySource{
			LocalPath: rt.BinaryPath,
			URL:       rt.BinaryURL,
			Checksum:  rt.Checksum,
		}
	}
	return t, nil
}

func parseKind(s string) (TargetKind, error) {
	switch s {
	case "library":
		return Library, nil
	case "executable":
		return Executable, nil
	case "test":
		return Test, nil
	case "macro":
		return Macro, nil
	case "plugin":
		return Plugin, nil
	case "binary":
		return Binary, nil
	default:
		return 0, fmt.Errorf("unknown target kind %q", s)
	}
}
