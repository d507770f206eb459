// Package security validates Hub identifiers and paths and keeps secrets
// and control characters out of logs.
package security

import (
	"path"
	"strings"
	"unicode"
)

// PathError represents a rejected repository id or repository path.
type PathError struct {
	Reason string
	Path   string
}

func (e *PathError) Error() string {
	if e.Path != "" {
		return e.Reason + ": " + e.Path
	}
	return e.Reason
}

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 1024

// ValidateRepoPath checks a file path inside a Hub repository. It must be
// relative, slash-separated and stay inside the repository.
func ValidateRepoPath(p string) error {
	switch {
	case p == "":
		return &PathError{Reason: "path is empty"}
	case strings.Contains(p, "\x00"):
		return &PathError{Reason: "path contains null byte", Path: "[contains null byte]"}
	case len(p) > MaxPathLength:
		return &PathError{Reason: "path exceeds maximum length", Path: p[:50] + "..."}
	case strings.HasPrefix(p, "/") || strings.Contains(p, "\\") || strings.Contains(p, ":"):
		return &PathError{Reason: "absolute path not allowed", Path: SanitizeForLog(p)}
	}

	for _, part := range strings.Split(path.Clean(p), "/") {
		if part == ".." {
			return &PathError{Reason: "path traversal detected", Path: SanitizeForLog(p)}
		}
	}
	return nil
}

// ValidateRepoID checks a Hub repository id of the form "owner/name".
func ValidateRepoID(id string) error {
	owner, name, ok := strings.Cut(id, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return &PathError{Reason: "repository id must be owner/name", Path: SanitizeForLog(id)}
	}
	for _, part := range []string{owner, name} {
		if part == "." || part == ".." {
			return &PathError{Reason: "path traversal detected", Path: SanitizeForLog(id)}
		}
		for _, r := range part {
			if !isRepoRune(r) {
				return &PathError{Reason: "repository id contains invalid characters", Path: SanitizeForLog(id)}
			}
		}
	}
	return nil
}

func isRepoRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.')
}

// SanitizeForLog sanitizes a string for safe logging: newlines, carriage
// returns and tabs are escaped, other control characters removed, and the
// result is truncated to 200 characters.
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, 200)
}

// SanitizeForLogWithLength sanitizes a string for logging with a custom max length.
func SanitizeForLogWithLength(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(min(len(s), maxLen+10))

	count := 0
	for _, r := range s {
		if count >= maxLen {
			b.WriteString("...")
			break
		}

		switch r {
		case '\n':
			b.WriteString("\\n")
			count += 2
		case '\r':
			b.WriteString("\\r")
			count += 2
		case '\t':
			b.WriteString("\\t")
			count += 2
		default:
			if !unicode.IsControl(r) {
				b.WriteRune(r)
				count++
			}
		}
	}

	return b.String()
}

// MaskToken hides all but the last four characters of a secret.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
