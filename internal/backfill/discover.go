package backfill

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// DiscoverFiles lists <root>/projects/<path_id>/*.jsonl. Project directories
// and files are returned in lexical order so runs over an unchanged tree emit
// conversations in the same order.
func DiscoverFiles(root string) ([]BatchFile, error) {
	projects := filepath.Join(root, "projects")
	info, err := os.Stat(projects)
	if err != nil {
		return nil, goerr.Wrap(err, "projects directory not found", goerr.V("dir", projects))
	}
	if !info.IsDir() {
		return nil, goerr.New("projects path is not a directory", goerr.V("dir", projects))
	}

	dirs, err := os.ReadDir(projects)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read projects directory", goerr.V("dir", projects))
	}

	var files []BatchFile
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		pathID := d.Name()
		entries, err := os.ReadDir(filepath.Join(projects, pathID))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read project directory", goerr.V("path_id", pathID))
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
				continue
			}
			files = append(files, BatchFile{
				Path:    filepath.Join(projects, pathID, e.Name()),
				PathID:  pathID,
				BatchID: strings.TrimSuffix(e.Name(), ".jsonl"),
			})
		}
	}

	// os.ReadDir already sorts by name; keep the guarantee explicit.
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].PathID != files[j].PathID {
			return files[i].PathID < files[j].PathID
		}
		return files[i].BatchID < files[j].BatchID
	})
	return files, nil
}

// SingleFile describes one log outside the projects layout. Its parent
// directory name stands in for the path id.
func SingleFile(path string) (BatchFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return BatchFile{}, goerr.Wrap(err, "single file not found", goerr.V("path", path))
	}
	if info.IsDir() {
		return BatchFile{}, goerr.New("single file is a directory", goerr.V("path", path))
	}
	return BatchFile{
		Path:    path,
		PathID:  filepath.Base(filepath.Dir(path)),
		BatchID: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}, nil
}
