// Package checksum provides content-addressed hashing for packages and resources
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// ShortIDLength is the number of hex characters kept for package and resource IDs
const ShortIDLength = 16

// SHA256 returns the hex-encoded SHA-256 digest of data
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256File returns the hex-encoded SHA-256 digest of the file at path
func SHA256File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// ShortID returns a truncated hex MD5 digest of s, used for compact identifiers
func ShortID(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:ShortIDLength]
}

// PackageID derives the identifier for a (student, culture, language) package build.
// The timestamp keeps rebuilds distinct: a package is immutable once written, so
// content changes always surface as a new ID.
func PackageID(studentID, culture, language string, createdAt time.Time) string {
	return ShortID(fmt.Sprintf("%s-%s-%s-%d", studentID, culture, language, createdAt.UnixMilli()))
}

// ResourceID derives the identifier for a source URL. It is deliberately
// timestamp-free so repeated builds address the same resource identically.
func ResourceID(url string) string {
	return ShortID(url)
}
