// Package security guards the places where external input reaches the
// filesystem: the table selector arriving over HTTP is embedded in a file
// name, so it must not be able to escape the tables directory.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory rejects paths that resolve outside safeDir,
// including escapes through symlinked parents.
func ValidatePathWithinDirectory(path, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory: %w", err)
	}

	// EvalSymlinks fails for paths that do not exist yet. Canonicalise the
	// deepest existing ancestor instead and reattach the remainder, so a
	// symlinked parent cannot smuggle the path out of the safe directory.
	canonical := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonical = resolved
	} else {
		probe := absPath
		for {
			parent := filepath.Dir(probe)
			if parent == probe {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				rel, _ := filepath.Rel(parent, absPath)
				canonical = filepath.Join(resolved, rel)
				break
			}
			probe = parent
		}
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonical)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", path, safeDir)
	}
	return nil
}

// SanitizeFilename maps an arbitrary string onto a safe file name fragment:
// anything outside ASCII letters, digits, dot, underscore and dash becomes a
// single underscore, and the result is length-limited and trimmed. An input
// with nothing salvageable comes back as "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128

	var b strings.Builder
	squashed := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			squashed = false
		default:
			if !squashed {
				b.WriteByte('_')
				squashed = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
