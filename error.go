package strom

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors of the ingestion pipeline. Fatal conditions carry one of
// these in their chain, so callers can match with errors.Is.
var (
	// ErrConfiguration is returned when a device handshake fails before
	// the run starts.
	ErrConfiguration = errors.New("configuration failed")

	// ErrFetchTimeout is returned when a hardware source stopped
	// delivering samples for the bounded retry budget.
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrHardwareProtocol is returned on an unrecoverable device-level
	// failure.
	ErrHardwareProtocol = errors.New("hardware protocol error")

	// ErrQueueOverflow is returned when device FIFO occupancy crossed
	// the critical threshold and sample loss is imminent.
	ErrQueueOverflow = errors.New("device queue overflow")
)

// ConfigurationError describes a failed device handshake for one unit.
type ConfigurationError struct {
	Unit string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unit %s: configuration failed: %v", e.Unit, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(err error) bool { return err == ErrConfiguration }

// FetchTimeoutError reports a source which returned no samples for the
// whole retry budget.
type FetchTimeoutError struct {
	Unit    string
	Cycles  int
	Elapsed time.Duration
}

func (e *FetchTimeoutError) Error() string {
	return fmt.Sprintf("unit %s: getting no samples for %d cycles (%v)", e.Unit, e.Cycles, e.Elapsed.Round(time.Millisecond))
}

// Is matches ErrFetchTimeout.
func (e *FetchTimeoutError) Is(err error) bool { return err == ErrFetchTimeout }

// HardwareError wraps an error reported by the device during acquisition.
type HardwareError struct {
	Unit string
	Op   string
	Err  error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("unit %s: %s: %v", e.Unit, e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

// Is matches ErrHardwareProtocol.
func (e *HardwareError) Is(err error) bool { return err == ErrHardwareProtocol }

// OverflowError reports a device FIFO past the critical occupancy.
type OverflowError struct {
	Unit    string
	Percent int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("unit %s: device queue %d%% full; stopping run", e.Unit, e.Percent)
}

// Is matches ErrQueueOverflow.
func (e *OverflowError) Is(err error) bool { return err == ErrQueueOverflow }
