package storage

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	memerrors "memstore/internal/errors"
	"memstore/internal/paths"
)

// ScopeFile is a scope database found on disk.
type ScopeFile struct {
	Key     string    `json:"key"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListScopeFiles returns every scope database under baseDir, sorted by key.
// Backups and WAL side files are skipped.
func ListScopeFiles(fs afero.Fs, baseDir string) ([]ScopeFile, error) {
	matches, err := afero.Glob(fs, paths.DBGlob(baseDir))
	if err != nil {
		return nil, memerrors.New(memerrors.IOError, "list scope databases", err)
	}

	out := make([]ScopeFile, 0, len(matches))
	for _, match := range matches {
		key, ok := paths.ScopeFromFileName(filepath.Base(match))
		if !ok {
			continue
		}
		info, err := fs.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		out = append(out, ScopeFile{
			Key:     key,
			Path:    match,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
