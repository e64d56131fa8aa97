package runlog

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"metricd/internal/common/fsutil"
	"metricd/pkg/types"
)

// ListRuns returns a summary of every run directory under root, newest
// first by directory modification time. A missing root yields an empty
// list; unreadable runs degrade to directory-name identity.
func ListRuns(root string) []types.RunInfo {
	expanded, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil
	}
	dirs := listRunDirs(expanded)
	out := make([]types.RunInfo, 0, len(dirs))
	for _, d := range dirs {
		meta := ReadMeta(filepath.Join(d, MetaFilename))
		info := types.RunInfo{
			RunID:     filepath.Base(d),
			Path:      d,
			ModelType: "Unknown",
			Name:      filepath.Base(d),
		}
		if v, ok := meta["run_id"].(string); ok && v != "" {
			info.RunID = v
		}
		if v, ok := meta["name"].(string); ok && v != "" {
			info.Name = v
		}
		if v, ok := meta["model_type"].(string); ok && v != "" {
			info.ModelType = v
		}
		if v, ok := meta["created_ms"].(float64); ok {
			info.CreatedMs = int64(v)
		}
		out = append(out, info)
	}
	return out
}

// FindRunDir resolves a run ID to its directory under root.
func FindRunDir(root, runID string) (string, bool) {
	expanded, err := fsutil.ExpandHome(root)
	if err != nil {
		return "", false
	}
	dir := filepath.Join(expanded, runID)
	if fsutil.PathExists(dir) {
		return dir, true
	}
	return "", false
}

func listRunDirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	type dirMtime struct {
		path string
		mod  time.Time
	}
	var dirs []dirMtime
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(root, e.Name())
		fi, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, dirMtime{path: p, mod: fi.ModTime()})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mod.After(dirs[j].mod) })
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = d.path
	}
	return out
}
