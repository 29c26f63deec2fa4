// Package scan enumerates the candidate record files of an input tree.
//
// Enumeration happens once per run, before any worker starts, and the result
// is sorted lexicographically so identifier allocation order is reproducible
// run to run for the same file set.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one candidate record with its on-disk size.
type File struct {
	Path string
	Size int64
}

// Batch is the enumerated input set.
type Batch struct {
	Files      []File
	TotalBytes int64
}

var candidateExtensions = map[string]struct{}{
	".dcm":   {},
	".dicom": {},
	".json":  {},
}

// IsCandidate reports whether a file name looks like a record the codec can
// attempt. Anything else is ignored during the walk.
func IsCandidate(name string) bool {
	_, ok := candidateExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Walk recursively enumerates candidate files under root in sorted order.
func Walk(root string) (Batch, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Batch{}, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return Batch{}, fmt.Errorf("input directory %q is not a directory", root)
	}

	var batch Batch
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !IsCandidate(entry.Name()) {
			return nil
		}
		fi, err := entry.Info()
		if err != nil {
			return err
		}
		batch.Files = append(batch.Files, File{Path: path, Size: fi.Size()})
		batch.TotalBytes += fi.Size()
		return nil
	})
	if err != nil {
		return Batch{}, fmt.Errorf("walk input directory: %w", err)
	}

	// WalkDir visits entries in lexical order per directory, but sort the
	// flattened list anyway so the ordering contract does not depend on
	// traversal details.
	sort.Slice(batch.Files, func(i, j int) bool { return batch.Files[i].Path < batch.Files[j].Path })
	return batch, nil
}
