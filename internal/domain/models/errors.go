package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no caller identity could be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the caller lacks the required capability.
	ErrForbidden = errors.New("forbidden")
	// ErrRefreshRunning is returned when a refresh job is already in flight.
	ErrRefreshRunning = errors.New("refresh already in progress")
	// ErrRateLimited means the caller exceeded its run budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound means an optional data file has not been produced yet.
	ErrNotFound = errors.New("not found")
)

// UpstreamError is a failed call to a market data provider.
type UpstreamError struct {
	Provider string
	Op       string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InsufficientDataError means a series is shorter than the indicator window.
type InsufficientDataError struct {
	Symbol string
	Series string
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %s has %d candles, need %d", e.Symbol, e.Series, e.Have, e.Need)
}

// ValidationError is malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PersistenceError is a signal store read or write failure.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
