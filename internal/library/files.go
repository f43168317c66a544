package library

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// File is an audio file queued for a build.
type File struct {
	Path    string
	Size    int64
	Created time.Time
}

// StatFile reads size and creation time for path.
func StatFile(path string) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	return File{Path: path, Size: fi.Size(), Created: creationTime(fi)}, nil
}

// SortByCreation orders files oldest first; ties fall back to path order.
func SortByCreation(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Created.Equal(files[j].Created) {
			return files[i].Path < files[j].Path
		}
		return files[i].Created.Before(files[j].Created)
	})
}

// Paths flattens files into their paths, keeping order.
func Paths(files []File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// CollectFiles walks root and returns every file accepted by match, sorted
// by creation time, plus their total size in bytes. Unreadable entries are
// skipped.
func CollectFiles(root string, match func(path string) bool) ([]File, int64, error) {
	var files []File
	var total int64

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() || !match(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, File{Path: path, Size: info.Size(), Created: creationTime(info)})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	SortByCreation(files)
	return files, total, nil
}
