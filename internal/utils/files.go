// Package utils provides small filesystem helpers shared by the build
// tooling.
package utils

import (
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// sourceGlob matches Vela source files anywhere under the walk root.
const sourceGlob = "**/*.vela"

// skipDirs is the fixed set of artifact directories excluded from source
// discovery.
var skipDirs = map[string]bool{
	"target":       true,
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
	".cache":       true,
}

// FindVelaFiles recursively finds all .vela files under root, skipping the
// fixed artifact directories. Results are returned in walk order, which is
// deterministic for a given tree.
func FindVelaFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		match, matchErr := doublestar.Match(sourceGlob, filepath.ToSlash(rel))
		if matchErr != nil {
			return matchErr
		}
		if match {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return files, nil
}
