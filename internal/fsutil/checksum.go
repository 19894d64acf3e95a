package fsutil

import (
	"fmt"
	"io"
	"os"

	digest "github.com/opencontainers/go-digest"
)

// SHA256File hashes a file's raw bytes and renders it as lowercased hex,
// no prefix, per spec.md §6 ("Checksum encoding. SHA-256 lowercased hex,
// no prefix."). It's built on opencontainers/go-digest — borrowed from
// distribution/distribution, which uses the same library for its blob
// content addressing — rather than calling crypto/sha256 directly, so
// archive and manifest checksums share one verified, well-tested codec.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fsutil: open %s for hashing: %w", path, err)
	}
	defer f.Close()
	return SHA256Reader(f)
}

// SHA256Reader hashes a stream the same way, for bodies already in memory
// or in flight (e.g. an HTTP response body).
func SHA256Reader(r io.Reader) (string, error) {
	d, err := digest.SHA256.FromReader(r)
	if err != nil {
		return "", fmt.Errorf("fsutil: hash: %w", err)
	}
	return d.Encoded(), nil
}

// VerifyChecksum reports whether the file at path hashes to want (a
// lowercased hex SHA-256 digest, possibly prefixed "sha256:" which is
// stripped for comparison).
func VerifyChecksum(path, want string) (bool, error) {
	got, err := SHA256File(path)
	if err != nil {
		return false, err
	}
	return got == stripPrefix(want), nil
}

func stripPrefix(s string) string {
	const prefix = "sha256:"
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
