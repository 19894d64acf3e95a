// Package artifacts implements the BinaryArtifactsManager of spec.md
// §4.8: binds binary-kind targets to a local path or a fetched, checksum-
// verified, extracted remote archive. Grounded on the same
// distribution/distribution checksum-verification idiom pkg/prebuilts
// uses (SHA-256 over raw archive bytes via opencontainers/go-digest), but
// without the signed-envelope step — spec.md §4.8 has no signature
// requirement, only a declared checksum.
package artifacts

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/internal/fsutil"
	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/sandbox"
)

// HTTPClient mirrors pkg/prebuilts.HTTPClient — its own small seam rather
// than a shared import, since the two managers are independent
// collaborators in the module graph (spec.md §5: "Prebuilt fetches and
// binary-artifact fetches are independent and may proceed concurrently").
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var validExtensions = map[string]bool{
	".zip":            true,
	".xcframework":    true,
	".artifactbundle": true,
}

// UnexpectedArtifactTypeError implements spec.md §4.8's local-path
// extension check.
type UnexpectedArtifactTypeError struct {
	Target string
	Path   string
}

func (e *UnexpectedArtifactTypeError) Error() string {
	return fmt.Sprintf("unexpected artifact type for target %s: %s", e.Target, e.Path)
}

// ChecksumMismatchError is the hard error spec.md §4.8 names for a
// remote binary artifact whose downloaded bytes don't match the
// manifest-declared checksum.
type ChecksumMismatchError struct {
	Target, Expected, Actual string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for target %s: expected %s, got %s", e.Target, e.Expected, e.Actual)
}

// ExtractionFailedError is the hard error spec.md §4.8 names for an
// archive that fails to extract.
type ExtractionFailedError struct {
	Target    string
	Underlying error
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("extraction failed for target %s: %v", e.Target, e.Underlying)
}

// BoundArtifact is the resolved, usable path for a binary target.
type BoundArtifact struct {
	TargetName string
	Path       string
}

// Manager resolves every binary target reachable from a set of manifests.
type Manager struct {
	Client  HTTPClient
	Sandbox *sandbox.Sandbox
	Scope   *diag.Scope
}

// NewManager builds a Manager.
func NewManager(client HTTPClient, sb *sandbox.Sandbox, scope *diag.Scope) *Manager {
	return &Manager{Client: client, Sandbox: sb, Scope: scope}
}

// Bind resolves one binary target's artifact, per spec.md §4.8.
func (m *Manager) Bind(ctx context.Context, owner identity.Identity, t manifest.Target) (*BoundArtifact, error) {
	if t.Kind != manifest.Binary || t.Binary == nil {
		return nil, errors.Errorf("artifacts: %s is not a binary target", t.Name)
	}

	if t.Binary.LocalPath != "" {
		return m.bindLocal(t)
	}
	return m.bindRemote(ctx, owner, t)
}

func (m *Manager) bindLocal(t manifest.Target) (*BoundArtifact, error) {
	path := t.Binary.LocalPath
	if !fsutil.Exists(path) {
		return nil, &UnexpectedArtifactTypeError{Target: t.Name, Path: path}
	}
	ext := strings.ToLower(filepath.Ext(path))
	if fsutil.IsDir(path) {
		ext = strings.ToLower(filepath.Ext(strings.TrimRight(path, "/")))
	}
	if !validExtensions[ext] {
		return nil, &UnexpectedArtifactTypeError{Target: t.Name, Path: path}
	}
	return &BoundArtifact{TargetName: t.Name, Path: path}, nil
}

func (m *Manager) bindRemote(ctx context.Context, owner identity.Identity, t manifest.Target) (*BoundArtifact, error) {
	ext := archiveExt(t.Binary.URL)
	cachePath := m.Sandbox.ArtifactPath(owner, t.Name, ext)

	if fsutil.Exists(cachePath) {
		ok, err := fsutil.VerifyChecksum(cachePath, t.Binary.Checksum)
		if err == nil && ok {
			return &BoundArtifact{TargetName: t.Name, Path: m.extractedPath(owner, t.Name)}, nil
		}
		// Checksum drift: purge and refetch, per spec.md §4.8's final bullet.
		m.Scope.Infof("binary artifact for %s changed checksum; purging and refetching", t.Name)
		fsutil.RemoveAll(cachePath)
	}

	if err := m.download(ctx, t.Binary.URL, cachePath); err != nil {
		return nil, err
	}

	ok, err := fsutil.VerifyChecksum(cachePath, t.Binary.Checksum)
	if err != nil {
		return nil, errors.Wrapf(err, "artifacts: hashing %s", t.Name)
	}
	if !ok {
		actual, _ := fsutil.SHA256File(cachePath)
		fsutil.RemoveAll(cachePath)
		return nil, &ChecksumMismatchError{Target: t.Name, Expected: t.Binary.Checksum, Actual: actual}
	}

	extractDir := m.extractedPath(owner, t.Name)
	if err := extractArchive(cachePath, extractDir); err != nil {
		return nil, &ExtractionFailedError{Target: t.Name, Underlying: err}
	}

	return &BoundArtifact{TargetName: t.Name, Path: extractDir}, nil
}

func (m *Manager) extractedPath(owner identity.Identity, target string) string {
	return filepath.Join(m.Sandbox.ArtifactsDir(), owner.String(), target+"-extracted")
}

func archiveExt(url string) string {
	ext := strings.ToLower(filepath.Ext(url))
	if ext == "" {
		return "zip"
	}
	return strings.TrimPrefix(ext, ".")
}

func (m *Manager) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "artifacts: building request")
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "artifacts: downloading")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("artifacts: download returned %d", resp.StatusCode)
	}

	if err := fsutil.EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "artifacts: creating cache file")
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return errors.Wrap(err, "artifacts: writing cache file")
	}
	return nil
}

func extractArchive(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := fsutil.EnsureDir(dest); err != nil {
		return err
	}
	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if f.FileInfo().IsDir() {
			if err := fsutil.EnsureDir(target); err != nil {
				return err
			}
			continue
		}
		if err := fsutil.EnsureDir(filepath.Dir(target)); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}
