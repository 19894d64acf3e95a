// Package prebuilts implements the PrebuiltsManager of spec.md §4.7: an
// idempotent, re-entrant pipeline that turns an eligible managed
// dependency into a set of staged build-setting injections, fetching a
// signed manifest, verifying it, and downloading/caching/extracting the
// platform-appropriate archive. It is grounded on the secondary donor
// `distribution/distribution`'s manifest-fetch-then-verify pipeline
// (registry/client, manifest schema discrimination) generalized from a
// container registry's blob store to this workspace's prebuilt-library
// cache, using the same `github.com/opencontainers/go-digest` and
// `github.com/docker/libtrust` libraries that donor depends on.
package prebuilts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/sandbox"
)

// HTTPClient is the capability-interface seam for fetching manifests and
// archives, injected by parameter per spec.md §9's redesign note (no
// package-level http.DefaultClient use).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// EligibleSet names the identities the manager will attempt prebuilts
// for. spec.md §4.7: "the core ships with one entry for swift-syntax, but
// the set is a parameter."
type EligibleSet map[string]bool

// DefaultEligibleSet is the shipped default.
func DefaultEligibleSet() EligibleSet {
	return EligibleSet{identity.Of("github.com/apple/swift-syntax").String(): true}
}

// Platform names the host platform variant used to select an artifact,
// e.g. "macos_universal", "macos_aarch64", "ubuntu_noble_x86_64".
type Platform string

// Injection is one staged build-setting change the ModuleGraphBuilder may
// apply to a target, per spec.md §4.7 step 9. The builder decides whether
// to apply it (honoring the leakage rule); this package never mutates a
// target directly.
type Injection struct {
	TargetName string
	Legacy     bool
	IncludePaths   []string
	LibraryPaths   []string
	Libraries      []string
	OtherSwiftFlags []string
	OtherLDFlags    []string
}

// Manager runs the per-candidate pipeline of spec.md §4.7.
type Manager struct {
	Eligible  EligibleSet
	Client    HTTPClient
	Sandbox   *sandbox.Sandbox
	UserCache string
	TrustDir  string
	Scope     *diag.Scope

	missed map[string]bool // 404s recorded to avoid refetching within one process, per step 2
}

// NewManager builds a Manager.
func NewManager(eligible EligibleSet, client HTTPClient, sb *sandbox.Sandbox, userCache, trustDir string, scope *diag.Scope) *Manager {
	return &Manager{
		Eligible:  eligible,
		Client:    client,
		Sandbox:   sb,
		UserCache: userCache,
		TrustDir:  trustDir,
		Scope:     scope,
		missed:    make(map[string]bool),
	}
}

// Manifest is the decoded prebuilt manifest body, covering both the
// legacy and current schema fields. FetchFor decides which applies by
// field presence (includePath vs cModules), falling back to which of the
// two manifest URLs answered when neither field is present.
type Manifest struct {
	Libraries []LibraryEntry `json:"libraries"`
	schema    schemaKind
}

type schemaKind uint8

const (
	legacySchema schemaKind = iota
	currentSchema
)

// IsLegacySchema reports which of the two manifest shapes this Manifest
// was decoded from, used by callers deciding which Injection fields to
// populate via StageInjections.
func (m *Manifest) IsLegacySchema() bool { return m.schema == legacySchema }

// LibraryEntry describes one declared prebuilt library and its
// per-platform artifacts.
type LibraryEntry struct {
	Name        string              `json:"name"`
	IncludePath string              `json:"includePath,omitempty"` // legacy
	CModules    []string            `json:"cModules,omitempty"`    // current
	Artifacts   map[string]Artifact `json:"artifacts"`             // keyed by platform
	Checksum    string              `json:"checksum"`
}

// Artifact names one platform's archive and its declared checksum, when
// the schema splits checksums per-platform rather than per-library.
type Artifact struct {
	Checksum string `json:"checksum,omitempty"`
}

// FetchFor runs steps 1-3 of spec.md §4.7's pipeline for one candidate
// identity at a resolved version: construct both URL forms, GET whichever
// returns 200, verify the signed envelope. Returns (nil, nil) when
// prebuilts are silently disabled for this candidate (404, or signature
// failure after a warning is emitted).
func (m *Manager) FetchFor(ctx context.Context, id identity.Identity, version, swiftVersion string) (*Manifest, error) {
	if !m.Eligible[id.String()] {
		return nil, nil
	}

	missKey := id.String() + "@" + version + "@" + swiftVersion
	if m.missed[missKey] {
		return nil, nil
	}

	base := m.manifestBaseURL(id, version)
	legacyURL := base + "/" + swiftVersion + ".json"
	currentURL := base + "/" + swiftVersion + "-manifest.json"

	body, usedCurrent, err := m.fetchFirst200(ctx, []string{currentURL, legacyURL})
	if err != nil {
		return nil, err
	}
	if body == nil {
		m.missed[missKey] = true
		return nil, nil
	}

	var mf Manifest
	if err := json.Unmarshal(body, &mf); err != nil {
		m.Scope.Warningf("failed to decode prebuilt manifest for %s: %v", id, err)
		return nil, nil
	}
	if usedCurrent {
		mf.schema = currentSchema
	} else {
		mf.schema = legacySchema
	}
	// Field presence overrides the URL guess: includePath only exists in
	// the legacy schema, cModules only in the current one.
	for _, lib := range mf.Libraries {
		if lib.IncludePath != "" {
			mf.schema = legacySchema
			break
		}
		if len(lib.CModules) > 0 {
			mf.schema = currentSchema
			break
		}
	}

	if err := verifySignedEnvelope(body, m.TrustDir); err != nil {
		m.Scope.Warningf("Failed to decode prebuilt manifest: invalidSignature (%s): %v", id, err)
		return nil, nil
	}

	return &mf, nil
}

func (m *Manager) manifestBaseURL(id identity.Identity, version string) string {
	// Deliberately not path.Join: it runs path.Clean over the whole
	// string and collapses the "//" after the scheme, producing a
	// Host-less URL. These are URL path segments, not filesystem paths.
	return "https://prebuilts.swiftpackageindex.com/" + id.String() + "/" + version
}

// fetchFirst200 tries each URL in order, returning the first 200 body. A
// 404 on every URL is reported as (nil, false, nil) — "no prebuilt",
// never an error, per spec.md §4.7 step 2.
func (m *Manager) fetchFirst200(ctx context.Context, urls []string) ([]byte, bool, error) {
	for i, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, false, errors.Wrap(err, "prebuilts: building request")
		}
		resp, err := m.Client.Do(req)
		if err != nil {
			return nil, false, errors.Wrapf(err, "prebuilts: fetching %s", u)
		}
		body, closeErr := readAndClose(resp)
		if closeErr != nil {
			return nil, false, closeErr
		}
		if resp.StatusCode == http.StatusOK {
			return body, i == 0, nil
		}
		if resp.StatusCode != http.StatusNotFound {
			return nil, false, fmt.Errorf("prebuilts: %s returned %d", u, resp.StatusCode)
		}
	}
	return nil, false, nil
}

func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "prebuilts: reading response body")
	}
	return body, nil
}
