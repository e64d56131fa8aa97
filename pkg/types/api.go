package types

// LogRequest is the submission payload for POST /api/log. The broker caches
// and fans out the whole object unchanged, so viewers see exactly what the
// producer sent.
type LogRequest struct {
	// Experiment name this event belongs to.
	// example: mnist-baseline
	Experiment string `json:"experiment"`
	// Caller-supplied step counter.
	// example: 42
	Step int64 `json:"step"`
	// Raw metric values; non-numeric entries are dropped by consumers.
	Metrics map[string]any `json:"metrics"`
	// Host/GPU utilization snapshot taken at send time.
	SysStats *SysStats `json:"sys_stats,omitempty"`
	// Model metadata blob; producers send it with the first event only.
	ModelInfo map[string]any `json:"model_info,omitempty"`
}

// StatusRequest is the body of POST /api/status.
type StatusRequest struct {
	// Producer lifecycle signal; "finished" triggers idle-shutdown evaluation.
	// example: finished
	Status string `json:"status"`
}

// OKResponse is the uniform success payload for submission endpoints.
type OKResponse struct {
	Status string `json:"status"`
}

// ExperimentsResponse wraps GET /api/experiments.
type ExperimentsResponse struct {
	// Names of experiments with at least one cached event.
	Experiments []string `json:"experiments"`
}

// RunsResponse wraps run listings produced from the on-disk run root.
type RunsResponse struct {
	Runs []RunInfo `json:"runs"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code"`
}
