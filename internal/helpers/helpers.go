package helpers

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9._-]+`)
	slugRepeats      = regexp.MustCompile(`_{2,}`)
)

// ConvertToSlug lowercases a title and reduces it to a filesystem friendly slug.
// Colons become dashes, whitespace becomes underscores and everything else outside
// [a-z0-9._-] is dropped.
func ConvertToSlug(str string) string {
	str = strings.ToLower(str)
	str = strings.ReplaceAll(str, ":", "-")
	str = strings.Join(strings.Fields(str), "_")
	str = slugInvalidChars.ReplaceAllString(str, "")
	str = slugRepeats.ReplaceAllString(str, "_")
	str = strings.ReplaceAll(str, "_-", "-")
	str = strings.ReplaceAll(str, "-_", "-")
	return strings.Trim(str, "_-")
}

// BytesToSize renders a byte count with a binary unit suffix, e.g. 1.50MB.
func BytesToSize(bytes uint64) string {
	if bytes == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", value, units[i])
}

// FormatDuration renders a duration in seconds as M:SS or H:MM:SS. Zero or unknown is "0:00".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatSpeed renders a transfer rate in B/s, KB/s or MB/s.
func FormatSpeed(bytesPerSec float64) string {
	switch {
	case bytesPerSec <= 0:
		return "0 B/s"
	case bytesPerSec < 1024:
		return fmt.Sprintf("%.0f B/s", bytesPerSec)
	case bytesPerSec < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", bytesPerSec/1024)
	default:
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(1024*1024))
	}
}

// FormatETA renders remaining seconds as "Xh Ym Zs", "Ym Zs" or "Zs".
func FormatETA(seconds int) string {
	if seconds <= 0 {
		return "Unknown"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// StringSliceContains does a case-insensitive membership check.
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// CheckAndMakeDir makes sure dir exists, creating parents as needed.
func CheckAndMakeDir(dir string) bool {
	if info, err := os.Stat(dir); err == nil {
		if info.IsDir() {
			return true
		}
		log.Errorf("Path %s exists but is not a directory", dir)
		return false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	log.Debugf("Created directory %s", dir)
	return true
}

// HashFile returns the hex BLAKE3 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckHash reports whether the file at path matches the expected BLAKE3 digest.
// An empty expectation never matches.
func CheckHash(path string, expected string) bool {
	if expected == "" {
		return false
	}
	got, err := HashFile(path)
	if err != nil {
		log.WithError(err).Debugf("Could not hash %s", path)
		return false
	}
	return strings.EqualFold(got, expected)
}
