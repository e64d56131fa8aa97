package broker

// experimentNotFoundError signals a delete against an unknown experiment
// for 404 mapping.
type experimentNotFoundError struct{ name string }

func (e experimentNotFoundError) Error() string { return "experiment not found: " + e.name }

// ErrExperimentNotFound constructs an experimentNotFoundError.
func ErrExperimentNotFound(name string) error { return experimentNotFoundError{name: name} }

// IsExperimentNotFound reports whether err indicates an unknown experiment.
func IsExperimentNotFound(err error) bool {
	_, ok := err.(experimentNotFoundError)
	return ok
}
