package runlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
)

// ReadChunk reads up to maxRecords complete JSON lines from path starting
// at byte offset and returns the parsed records plus the offset to resume
// from. A trailing line without a terminator is excluded and the returned
// offset points at its start, so the next call re-reads it once complete.
// Malformed lines are skipped. Offsets outside [0, size] clamp to 0, which
// tolerates truncation or recreation between polls. A missing file yields
// an empty result at offset 0. maxRecords <= 0 means no limit.
func ReadChunk(path string, offset int64, maxRecords int) ([]map[string]any, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if offset < 0 || offset > fi.Size() {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, err
	}

	r := bufio.NewReader(f)
	var records []map[string]any
	next := offset
	for maxRecords <= 0 || len(records) < maxRecords {
		line, err := r.ReadBytes('\n')
		if err != nil {
			// Partial trailing line (or read error): leave next behind it
			// so a later call re-reads once the writer finishes the line.
			break
		}
		next += int64(len(line))
		raw := bytes.TrimSpace(line)
		if len(raw) == 0 {
			continue
		}
		var obj map[string]any
		if json.Unmarshal(raw, &obj) != nil {
			continue
		}
		records = append(records, obj)
	}
	return records, next, nil
}
