package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MarkerDir is the subdirectory that proves a directory is an initialized
// vault. A path without it is never accepted as a vault root.
const MarkerDir = ".obsidian"

// Classification errors for candidate vault roots. Callers match with
// errors.Is; the concrete error carries the offending path and detail.
var (
	ErrInvalidPathFormat  = errors.New("invalid path format")
	ErrNotLocalFilesystem = errors.New("not a local filesystem path")
	ErrSuspiciousPath     = errors.New("suspicious path")
	ErrOverlappingVaults  = errors.New("overlapping vaults")
)

// pathError pairs a classification error with the path that triggered it.
type pathError struct {
	kind   error
	path   string
	detail string
}

func (e *pathError) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("%s: %s", e.kind, e.path)
	}
	return fmt.Sprintf("%s: %s (%s)", e.kind, e.path, e.detail)
}

func (e *pathError) Unwrap() error { return e.kind }

// networkPrefixes are well-known mount points for remote filesystems. A vault
// on a network share would make every note operation a network operation and
// the symlink checks unreliable.
var networkPrefixes = []string{"/net/", "/smb/", "/afp/", "/nfs/"}

// systemDirs are locations that are never sane vault roots.
var systemDirs = []string{
	"/", "/bin", "/boot", "/dev", "/etc", "/lib", "/opt",
	"/proc", "/root", "/sbin", "/sys", "/usr", "/var",
}

// CheckFormat rejects paths containing characters that are illegal or
// dangerous in filesystem paths.
func CheckFormat(path string) error {
	if strings.TrimSpace(path) == "" {
		return &pathError{kind: ErrInvalidPathFormat, path: path, detail: "empty path"}
	}
	for _, r := range path {
		if r == 0 || r < 0x20 || r == 0x7f {
			return &pathError{kind: ErrInvalidPathFormat, path: path, detail: "control character in path"}
		}
	}
	return nil
}

// CheckLocal rejects network-share syntax and symlinks that escape their own
// directory. The returned path is the fully resolved (symlink-free) absolute
// path, which all later checks and the registry operate on.
func CheckLocal(path string) (string, error) {
	if strings.HasPrefix(path, `\\`) || strings.HasPrefix(path, "//") {
		return "", &pathError{kind: ErrNotLocalFilesystem, path: path, detail: "UNC path"}
	}
	for _, p := range networkPrefixes {
		if strings.HasPrefix(path, p) {
			return "", &pathError{kind: ErrNotLocalFilesystem, path: path, detail: "network mount prefix"}
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &pathError{kind: ErrInvalidPathFormat, path: path, detail: err.Error()}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &pathError{kind: ErrNotLocalFilesystem, path: path, detail: "path does not exist"}
		}
		return "", &pathError{kind: ErrNotLocalFilesystem, path: path, detail: err.Error()}
	}

	// A root that is itself a symlink must resolve within its own parent
	// directory; anything else lets a vault silently alias an arbitrary
	// location on disk.
	if resolved != abs && !isWithin(filepath.Dir(abs), resolved) {
		return "", &pathError{kind: ErrNotLocalFilesystem, path: path, detail: "symlink resolves outside its own directory"}
	}
	return resolved, nil
}

// CheckSuspicious rejects system directories, hidden directories, and the
// user's home directory root itself. The marker directory is exempt from the
// hidden-directory rule so a vault root may be named via its marker.
func CheckSuspicious(resolved string) error {
	clean := filepath.Clean(resolved)
	for _, d := range systemDirs {
		if clean == d {
			return &pathError{kind: ErrSuspiciousPath, path: resolved, detail: "system directory"}
		}
	}
	if home, err := os.UserHomeDir(); err == nil && clean == filepath.Clean(home) {
		return &pathError{kind: ErrSuspiciousPath, path: resolved, detail: "home directory root"}
	}
	for _, seg := range strings.Split(clean, string(filepath.Separator)) {
		if strings.HasPrefix(seg, ".") && seg != MarkerDir && seg != "." && seg != ".." {
			return &pathError{kind: ErrSuspiciousPath, path: resolved, detail: "hidden directory in path"}
		}
	}
	return nil
}

// CheckOverlap rejects the candidate set if any two resolved paths are equal
// or one contains the other. It must only be called with paths that already
// passed the per-path checks.
func CheckOverlap(resolved []string) error {
	for i := 0; i < len(resolved); i++ {
		for j := i + 1; j < len(resolved); j++ {
			a, b := filepath.Clean(resolved[i]), filepath.Clean(resolved[j])
			if a == b {
				return &pathError{kind: ErrOverlappingVaults, path: a, detail: "duplicate of " + b}
			}
			if isWithin(a, b) {
				return &pathError{kind: ErrOverlappingVaults, path: b, detail: "contained in " + a}
			}
			if isWithin(b, a) {
				return &pathError{kind: ErrOverlappingVaults, path: a, detail: "contained in " + b}
			}
		}
	}
	return nil
}

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeName derives a stable vault identifier from the last path segment:
// lowercase, non-alphanumeric runs collapsed to a single hyphen, leading and
// trailing hyphens trimmed.
func SanitizeName(path string) string {
	base := strings.ToLower(filepath.Base(filepath.Clean(path)))
	name := nonAlnumRun.ReplaceAllString(base, "-")
	return strings.Trim(name, "-")
}

// isWithin reports whether p is dir itself or a descendant of dir.
func isWithin(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
