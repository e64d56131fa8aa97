package types

import (
	"encoding/json"
	"strconv"
)

// MetricEvent is one durable record of a single training step. The fixed
// fields are always written; every entry in Values is flattened into the
// top-level JSON object alongside them.
type MetricEvent struct {
	// Wall-clock milliseconds at emission.
	TMs int64
	// Caller-supplied step counter. Not enforced monotonic.
	Step int64
	// Optional epoch; serialized as null when absent.
	Epoch *int64
	// Tag such as "train" or "val".
	Split string
	// Milliseconds since the previous event in the same run, 0 at the first.
	DtMs int64
	// Numeric metrics keyed by name (loss, acc, lr, ...).
	Values map[string]float64
}

// Reserved field names; metric keys with these names are ignored.
const (
	fieldTMs   = "t_ms"
	fieldStep  = "step"
	fieldEpoch = "epoch"
	fieldSplit = "split"
	fieldDtMs  = "dt_ms"
)

func (e MetricEvent) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Values)+5)
	obj[fieldTMs] = e.TMs
	obj[fieldStep] = e.Step
	if e.Epoch != nil {
		obj[fieldEpoch] = *e.Epoch
	} else {
		obj[fieldEpoch] = nil
	}
	obj[fieldSplit] = e.Split
	obj[fieldDtMs] = e.DtMs
	for k, v := range e.Values {
		switch k {
		case fieldTMs, fieldStep, fieldEpoch, fieldSplit, fieldDtMs:
			continue
		}
		obj[k] = v
	}
	return json.Marshal(obj)
}

func (e *MetricEvent) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = MetricEvent{Values: make(map[string]float64)}
	for k, raw := range obj {
		switch k {
		case fieldTMs:
			if err := json.Unmarshal(raw, &e.TMs); err != nil {
				return err
			}
		case fieldStep:
			if err := json.Unmarshal(raw, &e.Step); err != nil {
				return err
			}
		case fieldEpoch:
			var ep *int64
			if err := json.Unmarshal(raw, &ep); err != nil {
				return err
			}
			e.Epoch = ep
		case fieldSplit:
			if err := json.Unmarshal(raw, &e.Split); err != nil {
				return err
			}
		case fieldDtMs:
			if err := json.Unmarshal(raw, &e.DtMs); err != nil {
				return err
			}
		default:
			var f float64
			if err := json.Unmarshal(raw, &f); err != nil {
				// stray non-numeric field; skip rather than fail the record
				continue
			}
			e.Values[k] = f
		}
	}
	return nil
}

// CoerceFloat converts an arbitrary metric value to float64 best-effort.
// ok reports whether the value has a numeric representation; callers drop
// the field when it does not.
func CoerceFloat(v any) (f float64, ok bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// SysStats is a best-effort snapshot of host/GPU utilization attached to
// each submitted event. Fields that could not be sampled stay at their
// zero value (or nil for VRAMPercent).
type SysStats struct {
	CPUPercent  float64  `json:"cpu_percent"`
	RAMPercent  float64  `json:"ram_percent"`
	DeviceType  string   `json:"device_type"`
	DeviceName  string   `json:"device_name"`
	VRAMPercent *float64 `json:"vram_percent"`
}

// TrackerConfig is the durable-log tuning snapshot stored in meta.json.
type TrackerConfig struct {
	FlushEvery   int     `json:"flush_every"`
	FlushSeconds float64 `json:"flush_seconds"`
}

// RunMeta is the initial meta.json snapshot written at run creation.
// Termination fields (ended_ms, ok, error) are merged in at teardown and
// intentionally absent here.
type RunMeta struct {
	SchemaVersion string         `json:"schema_version"`
	RunID         string         `json:"run_id"`
	Name          string         `json:"name"`
	CreatedMs     int64          `json:"created_ms"`
	ModelType     string         `json:"model_type"`
	Device        string         `json:"device"`
	Tracker       TrackerConfig  `json:"tracker"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// RunInfo is a summary row for one run directory.
type RunInfo struct {
	RunID     string `json:"run_id"`
	Path      string `json:"path"`
	CreatedMs int64  `json:"created_ms"`
	ModelType string `json:"model_type"`
	Name      string `json:"name"`
}
