package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaxReadFileSize bounds read_workspace_file so a client cannot pull an
// arbitrarily large blob through the RPC channel.
const MaxReadFileSize = 10 * 1024 * 1024

// FileEntry is one entry of a directory listing.
type FileEntry struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // "file", "dir", "symlink"
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modifiedAt"`
}

// sanitizeRelPath rejects absolute paths, null bytes, and any ".."
// component, mirroring the teacher's sanitizeFilePath.
func sanitizeRelPath(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("file path contains a null byte")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute file paths are not allowed")
	}
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return fmt.Errorf("path traversal is not allowed")
		}
	}
	return nil
}

// ListWorkspaceFiles lists the immediate contents of relPath (default ".")
// within workspaceID's root, dirs first then alphabetically.
func (d *Deps) ListWorkspaceFiles(workspaceID, relPath string) ([]FileEntry, error) {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return nil, err
	}
	if relPath == "" {
		relPath = "."
	}
	if err := sanitizeRelPath(relPath); err != nil {
		return nil, err
	}
	dir := filepath.Join(entry.Path, relPath)

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", relPath, err)
	}

	out := make([]FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		typ := "file"
		switch {
		case de.IsDir():
			typ = "dir"
		case info.Mode()&os.ModeSymlink != 0:
			typ = "symlink"
		}
		out = append(out, FileEntry{
			Name:       de.Name(),
			Type:       typ,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		iDir, jDir := out[i].Type == "dir", out[j].Type == "dir"
		if iDir != jDir {
			return iDir
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// ReadWorkspaceFile returns the contents of relPath within workspaceID's
// root, bounded by MaxReadFileSize.
func (d *Deps) ReadWorkspaceFile(workspaceID, relPath string) ([]byte, error) {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return nil, err
	}
	if err := sanitizeRelPath(relPath); err != nil {
		return nil, err
	}
	path := filepath.Join(entry.Path, relPath)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", relPath)
	}
	if info.Size() > MaxReadFileSize {
		return nil, fmt.Errorf("%s exceeds maximum readable size of %d bytes", relPath, MaxReadFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	return data, nil
}
