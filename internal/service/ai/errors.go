package ai

import "fmt"

// ModelLoadError means the detector could not be initialized. It is permanent
// for the process: later calls return the same error.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load detection model %s: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// InputError reports arguments that violate the Detect contract.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid detector input: " + e.Reason
}
