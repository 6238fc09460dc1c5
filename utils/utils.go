package utils

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

var nonFilenameChars = regexp.MustCompile(`[^\w.\-]`)

// SanitizeFilename keeps letters, digits, '.', '-' and '_' of the base name.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	clean := nonFilenameChars.ReplaceAllString(name, "_")
	if clean == "" || clean == "." || clean == ".." {
		return "file"
	}
	return clean
}

// RandomHex returns n random bytes hex encoded.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Blank reports whether s is empty after trimming whitespace.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
