package importer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunInProgress rejects a run while another one holds the guard.
var ErrRunInProgress = errors.New("importer: run already in progress")

// ConfigError reports missing provider settings. The run is skipped before
// any network call.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "importer: missing settings: " + strings.Join(e.Missing, ", ")
}

// ReconcileError is a store failure while reconciling one event. It never
// ends the run.
type ReconcileError struct {
	RemoteID string
	Op       string
	Err      error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("importer: %s for event %s: %v", e.Op, e.RemoteID, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// StorageCapabilityError reports that field storage is unavailable. Records
// are still written, without their derived fields.
type StorageCapabilityError struct {
	Capability string
}

func (e *StorageCapabilityError) Error() string {
	return "importer: storage capability unavailable: " + e.Capability
}
