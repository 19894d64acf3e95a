package prebuilts

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/internal/fsutil"
	"github.com/depforge/workspace/pkg/identity"
)

// archiveURL resolves the archive path per spec.md §4.7 step 5: same
// path prefix as the manifest, with a schema-dependent filename.
func (m *Manager) archiveURL(id identity.Identity, version, swiftVersion, library string, platform Platform, legacy bool) string {
	name := swiftVersion + "-" + library
	if !legacy {
		name += "-" + string(platform)
	}
	return m.manifestBaseURL(id, version) + "/" + name + ".zip"
}

// cachePath is the cache file location named in spec.md §4.7 step 6.
func (m *Manager) cachePath(id identity.Identity, version, swiftVersion, library string, platform Platform) string {
	name := swiftVersion + "-" + library
	if platform != "" {
		name += "-" + string(platform)
	}
	return filepath.Join(m.UserCache, "prebuilts", id.String(), version, name+".zip")
}

// EnsureArtifact implements spec.md §4.7 steps 4-8 for one declared
// library: locate the platform's artifact, resolve its cache path,
// download+checksum-verify into the cache if needed (never trusting a
// stale cache blindly), then extract into the sandbox. Returns the
// extraction directory, or ("", nil) when the candidate is disabled: the
// platform has no artifact entry or the download/checksum step fails
// (both silently, apart from a debug record), or extraction fails (after
// a warning).
func (m *Manager) EnsureArtifact(ctx context.Context, id identity.Identity, version, swiftVersion string, lib LibraryEntry, platform Platform) (string, error) {
	artifact, ok := lib.Artifacts[string(platform)]
	if !ok {
		return "", nil // missing entry -> disable silently, step 4
	}

	checksum := artifact.Checksum
	if checksum == "" {
		checksum = lib.Checksum
	}

	cache := m.cachePath(id, version, swiftVersion, lib.Name, platform)

	needsDownload := true
	if fsutil.Exists(cache) {
		if ok, err := fsutil.VerifyChecksum(cache, checksum); err == nil && ok {
			needsDownload = false
		}
		// present but mismatched: fall through and overwrite, per step 6.
	}

	if needsDownload {
		url := m.archiveURL(id, version, swiftVersion, lib.Name, platform, false)
		if err := m.downloadToCache(ctx, url, cache, checksum); err != nil {
			m.Scope.Debugf("prebuilt download failed for %s/%s: %v", id, lib.Name, err)
			return "", nil // step 7: abort this candidate silently on mismatch
		}
	}

	extractDir := m.Sandbox.PrebuiltPath(id, version, swiftVersion, lib.Name, string(platform))
	if err := extractZip(cache, extractDir); err != nil {
		m.Scope.Warningf("extracting prebuilt archive for %s/%s failed: %v", id, lib.Name, err)
		return "", nil // step 8: diagnose and disable this candidate
	}
	return extractDir, nil
}

func (m *Manager) downloadToCache(ctx context.Context, url, cachePath, expectedChecksum string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "prebuilts: building download request")
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "prebuilts: downloading archive")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("prebuilts: download returned %d", resp.StatusCode)
	}

	if err := fsutil.EnsureDir(filepath.Dir(cachePath)); err != nil {
		return err
	}
	tmp := cachePath + ".download"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "prebuilts: creating temp download file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "prebuilts: writing download")
	}
	f.Close()

	ok, err := fsutil.VerifyChecksum(tmp, expectedChecksum)
	if err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "prebuilts: hashing downloaded archive")
	}
	if !ok {
		os.Remove(tmp)
		return errors.New("prebuilts: checksum mismatch, leaving no partial file")
	}
	return os.Rename(tmp, cachePath)
}

// extractZip extracts src (a zip archive) into dest, creating dest if
// needed. Used for prebuilt library archives (spec.md §4.7 step 8).
func extractZip(src, dest string) error {
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

// StageInjections implements spec.md §4.7 step 9: computes the build-
// setting injections for one extracted library, in the form the
// ModuleGraphBuilder will later decide whether to apply (restricted to
// macro/test-kind root targets, and only if the leakage rule doesn't
// globally disable prebuilts). This package never applies the injection
// itself.
func StageInjections(extractedDir, checkoutRoot string, lib LibraryEntry, legacy bool, targetName string) Injection {
	inj := Injection{TargetName: targetName, Legacy: legacy}
	if legacy {
		inj.IncludePaths = append(inj.IncludePaths, filepath.Join(extractedDir, "Modules"))
		if lib.IncludePath != "" {
			inj.IncludePaths = append(inj.IncludePaths, filepath.Join(checkoutRoot, lib.IncludePath))
		}
		inj.LibraryPaths = append(inj.LibraryPaths, filepath.Join(extractedDir, "lib"))
		inj.Libraries = append(inj.Libraries, lib.Name)
		return inj
	}

	inj.OtherSwiftFlags = append(inj.OtherSwiftFlags, "-I"+filepath.Join(extractedDir, "Modules"))
	for _, cm := range lib.CModules {
		inj.OtherSwiftFlags = append(inj.OtherSwiftFlags, "-I"+filepath.Join(checkoutRoot, cm))
	}
	inj.OtherLDFlags = append(inj.OtherLDFlags, filepath.Join(extractedDir, "lib", "lib"+lib.Name+".a"))
	return inj
}
