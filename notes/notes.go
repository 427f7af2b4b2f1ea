package notes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/obsidianmcp/obsidian-mcp-go/vault"
)

// ErrOutsideVault rejects a relative path that resolves outside its vault.
var ErrOutsideVault = errors.New("path escapes the vault root")

// resolveInVault joins rel onto the named vault's root and verifies the
// result stays inside it. rel must be relative; the marker directory is off
// limits.
func resolveInVault(reg *vault.Registry, vaultName, rel string) (string, error) {
	root, ok := reg.Path(vaultName)
	if !ok {
		return "", fmt.Errorf("unknown vault: %s", vaultName)
	}
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %s", ErrOutsideVault, rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, rel)
	}
	if clean == vault.MarkerDir || strings.HasPrefix(clean, vault.MarkerDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is reserved", ErrOutsideVault, vault.MarkerDir)
	}
	return filepath.Join(root, clean), nil
}

// withMarkdownExt appends .md when the path has no extension, matching how
// vault applications name notes.
func withMarkdownExt(path string) string {
	if filepath.Ext(path) == "" {
		return path + ".md"
	}
	return path
}

// ReadNote returns the contents of a note.
func ReadNote(reg *vault.Registry, vaultName, rel string) (string, error) {
	path, err := resolveInVault(reg, vaultName, withMarkdownExt(rel))
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read note: %w", err)
	}
	return string(b), nil
}

// CreateNote writes a new note. It refuses to overwrite an existing file and
// creates intermediate directories as needed.
func CreateNote(reg *vault.Registry, vaultName, rel, content string) (string, error) {
	path, err := resolveInVault(reg, vaultName, withMarkdownExt(rel))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("note already exists: %s", rel)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write note: %w", err)
	}
	return path, nil
}

// EditNote appends to or replaces the contents of an existing note.
func EditNote(reg *vault.Registry, vaultName, rel, operation, content string) error {
	path, err := resolveInVault(reg, vaultName, withMarkdownExt(rel))
	if err != nil {
		return err
	}
	existing, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read note: %w", err)
	}
	var next []byte
	switch operation {
	case "append":
		next = existing
		if len(next) > 0 && next[len(next)-1] != '\n' {
			next = append(next, '\n')
		}
		next = append(next, []byte(content)...)
	case "replace":
		next = []byte(content)
	default:
		return fmt.Errorf("unknown edit operation: %s", operation)
	}
	if err := os.WriteFile(path, next, 0o644); err != nil {
		return fmt.Errorf("failed to write note: %w", err)
	}
	return nil
}

// MoveNote renames a note within its vault, creating destination directories
// as needed. It refuses to clobber an existing destination.
func MoveNote(reg *vault.Registry, vaultName, src, dst string) error {
	srcPath, err := resolveInVault(reg, vaultName, withMarkdownExt(src))
	if err != nil {
		return err
	}
	dstPath, err := resolveInVault(reg, vaultName, withMarkdownExt(dst))
	if err != nil {
		return err
	}
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("destination already exists: %s", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("failed to move note: %w", err)
	}
	return nil
}

// DeleteNote removes a note.
func DeleteNote(reg *vault.Registry, vaultName, rel string) error {
	path, err := resolveInVault(reg, vaultName, withMarkdownExt(rel))
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

// CreateDirectory creates a directory (and parents) inside a vault.
func CreateDirectory(reg *vault.Registry, vaultName, rel string) error {
	path, err := resolveInVault(reg, vaultName, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
