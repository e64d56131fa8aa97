package runlog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"metricd/internal/common/fsutil"
	"metricd/pkg/types"
)

const (
	MetaFilename    = "meta.json"
	MetricsFilename = "metrics.jsonl"

	schemaVersion = "1.0"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultFlushEvery   = 1
	defaultFlushSeconds = 1.0
)

// Config tunes the flush policy of a Writer.
type Config struct {
	// Flush after this many buffered events. Default 1.
	FlushEvery int
	// Flush after this many seconds since the last flush, whichever first.
	// Default 1.0.
	FlushSeconds float64
}

// MetaFields carries caller-provided run identity written into meta.json.
type MetaFields struct {
	ModelType string
	Device    string
	Extra     map[string]any
}

// Record is one appended step. Metrics values are coerced to float64;
// entries without a numeric representation are dropped silently.
type Record struct {
	Step    int64
	Epoch   *int64
	Split   string
	Metrics map[string]any
}

// Writer is the durable, append-only event log for a single run.
// It is not safe for concurrent use; the log is single-writer by contract.
type Writer struct {
	runID       string
	dir         string
	metricsPath string
	metaPath    string

	f           *os.File
	flushEvery  int
	flushWindow time.Duration
	buffered    int
	lastFlush   time.Time
	lastStepMs  int64

	closeOnce sync.Once
	closeErr  error
	log       zerolog.Logger
}

// Create builds a unique run ID from name, creation time and a random
// suffix, creates the run directory idempotently, writes the initial
// meta.json snapshot and opens the metrics log for append.
func Create(runRoot, name string, cfg Config, meta MetaFields, log zerolog.Logger) (*Writer, error) {
	root, err := fsutil.ExpandHome(runRoot)
	if err != nil {
		return nil, err
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = defaultFlushEvery
	}
	if cfg.FlushSeconds <= 0 {
		cfg.FlushSeconds = defaultFlushSeconds
	}
	nowMs := time.Now().UnixMilli()
	u := uuid.New()
	runID := fmt.Sprintf("%s-%d-%s", name, nowMs, hex.EncodeToString(u[:4]))
	dir := filepath.Join(root, runID)
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}

	w := &Writer{
		runID:       runID,
		dir:         dir,
		metricsPath: filepath.Join(dir, MetricsFilename),
		metaPath:    filepath.Join(dir, MetaFilename),
		flushEvery:  cfg.FlushEvery,
		flushWindow: time.Duration(cfg.FlushSeconds * float64(time.Second)),
		lastFlush:   time.Now(),
		log:         log,
	}

	snapshot := types.RunMeta{
		SchemaVersion: schemaVersion,
		RunID:         runID,
		Name:          name,
		CreatedMs:     nowMs,
		ModelType:     meta.ModelType,
		Device:        meta.Device,
		Tracker: types.TrackerConfig{
			FlushEvery:   cfg.FlushEvery,
			FlushSeconds: cfg.FlushSeconds,
		},
		Extra: meta.Extra,
	}
	if err := UpdateMeta(w.metaPath, metaToMap(snapshot)); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(w.metricsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metrics log: %w", err)
	}
	w.f = f
	return w, nil
}

// RunID returns the immutable run identifier.
func (w *Writer) RunID() string { return w.runID }

// Dir returns the run directory.
func (w *Writer) Dir() string { return w.dir }

// MetricsPath returns the path of the append-only event log.
func (w *Writer) MetricsPath() string { return w.metricsPath }

// Append serializes one record as a single JSON line and applies the
// flush policy. The inter-event delta dt_ms is 0 for the first record.
func (w *Writer) Append(rec Record) error {
	if w.f == nil {
		return fmt.Errorf("runlog: writer is closed")
	}
	now := time.Now().UnixMilli()
	var dt int64
	if w.lastStepMs > 0 {
		dt = now - w.lastStepMs
		if dt < 0 {
			dt = 0
		}
	}
	w.lastStepMs = now

	ev := types.MetricEvent{
		TMs:    now,
		Step:   rec.Step,
		Epoch:  rec.Epoch,
		Split:  rec.Split,
		DtMs:   dt,
		Values: make(map[string]float64, len(rec.Metrics)),
	}
	for k, v := range rec.Metrics {
		if f, ok := types.CoerceFloat(v); ok {
			ev.Values[k] = f
		}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(append(line, '\n')); err != nil {
		return err
	}
	w.buffered++

	dueToCount := w.buffered >= w.flushEvery
	dueToTime := time.Since(w.lastFlush) >= w.flushWindow
	if dueToCount || dueToTime {
		w.flush()
	}
	return nil
}

// flush is the durability barrier. A failed sync is logged and ignored,
// favoring liveness over a rigid guarantee.
func (w *Writer) flush() {
	w.buffered = 0
	w.lastFlush = time.Now()
	if err := w.f.Sync(); err != nil {
		w.log.Debug().Err(err).Str("run_id", w.runID).Msg("metrics fsync failed")
	}
}

// Close performs the final flush+sync, releases the file handle exactly
// once and amends meta.json with termination fields. runErr, when non-nil,
// marks the run as failed. Secondary errors are swallowed so teardown
// always completes.
func (w *Writer) Close(runErr error) error {
	w.closeOnce.Do(func() {
		if w.f != nil {
			w.flush()
			w.closeErr = w.f.Close()
			w.f = nil
		}
		updates := map[string]any{
			"ended_ms": time.Now().UnixMilli(),
			"ok":       runErr == nil,
			"error":    nil,
		}
		if runErr != nil {
			updates["error"] = runErr.Error()
		}
		if err := UpdateMeta(w.metaPath, updates); err != nil {
			w.log.Debug().Err(err).Str("run_id", w.runID).Msg("meta amend failed")
		}
	})
	return w.closeErr
}

func metaToMap(m types.RunMeta) map[string]any {
	b, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if json.Unmarshal(b, &out) != nil {
		return map[string]any{}
	}
	return out
}
