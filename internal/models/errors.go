package models

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds carried in API responses.
const (
	KindFetch           = "fetch_error"
	KindTraining        = "training_error"
	KindCorruptArtifact = "corrupt_artifact"
	KindUnknownRegion   = "unknown_region"
	KindTimeout         = "timeout"
	KindNotReady        = "not_ready"
	KindCleared         = "cleared"
	KindInvalidRequest  = "invalid_request"
	KindChatUnavailable = "chat_unavailable"
	KindInternal        = "internal_error"
)

// Kinded is implemented by errors that carry a machine-readable kind.
type Kinded interface {
	error
	Kind() string
}

// KindOf returns the kind of the first Kinded error in err's chain.
func KindOf(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// FetchError reports a failure of the external data source.
type FetchError struct {
	RegionKey string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for region %s: %v", e.RegionKey, e.Err)
}
func (e *FetchError) Unwrap() error { return e.Err }
func (e *FetchError) Kind() string  { return KindFetch }

// TrainingError reports that a model could not be fitted, usually because there
// were not enough usable records.
type TrainingError struct {
	RegionKey string
	Parameter Parameter
	Err       error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training %s model for region %s failed: %v", e.Parameter, e.RegionKey, e.Err)
}
func (e *TrainingError) Unwrap() error { return e.Err }
func (e *TrainingError) Kind() string  { return KindTraining }

// CorruptArtifactError reports a persisted model that could not be decoded.
// It is treated as a cache miss and never returned to API callers.
type CorruptArtifactError struct {
	Path string
	Err  error
}

func (e *CorruptArtifactError) Error() string {
	return fmt.Sprintf("corrupt model artifact %s: %v", e.Path, e.Err)
}
func (e *CorruptArtifactError) Unwrap() error { return e.Err }
func (e *CorruptArtifactError) Kind() string  { return KindCorruptArtifact }

// UnknownRegionError is returned for region keys missing from the registry.
type UnknownRegionError struct {
	RegionKey string
}

func (e *UnknownRegionError) Error() string {
	return fmt.Sprintf("unknown region: %s", e.RegionKey)
}
func (e *UnknownRegionError) Kind() string { return KindUnknownRegion }

// TimeoutError is returned to a caller that stopped waiting for an in-flight
// operation. The operation itself keeps running.
type TimeoutError struct {
	RegionKey string
	Waited    time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("gave up waiting for region %s after %v", e.RegionKey, e.Waited.Round(time.Millisecond))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) Kind() string  { return KindTimeout }

// NotReadyError is returned when an operation needs a Ready region.
type NotReadyError struct {
	RegionKey string
	State     string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("region %s is not ready (state: %s)", e.RegionKey, e.State)
}
func (e *NotReadyError) Kind() string { return KindNotReady }

// ClearedError is delivered to waiters of an operation whose region was cleared
// while it was running. Its result was discarded.
type ClearedError struct {
	RegionKey string
}

func (e *ClearedError) Error() string {
	return fmt.Sprintf("region %s was cleared while loading; result discarded", e.RegionKey)
}
func (e *ClearedError) Kind() string { return KindCleared }

// ValidationError reports a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
func (e *ValidationError) Kind() string { return KindInvalidRequest }

// ChatUnavailableError reports that no chat backend is configured.
type ChatUnavailableError struct {
	Reason string
}

func (e *ChatUnavailableError) Error() string {
	return "chat unavailable: " + e.Reason
}
func (e *ChatUnavailableError) Kind() string { return KindChatUnavailable }
