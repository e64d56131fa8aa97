package runlog

import (
	"encoding/json"
	"os"
)

// ReadMeta loads a run's meta.json. A missing, unreadable or corrupt file
// degrades to an empty base object rather than an error; run metadata is
// diagnostic, not authoritative.
func ReadMeta(path string) map[string]any {
	b, err := os.ReadFile(path)
	if err != nil {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

// UpdateMeta merges updates into the existing meta object and rewrites the
// file in place. Fields set by earlier writes are preserved.
func UpdateMeta(path string, updates map[string]any) error {
	obj := ReadMeta(path)
	for k, v := range updates {
		obj[k] = v
	}
	b, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
