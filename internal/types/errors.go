package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrChallengeDetected = errors.New("bot challenge detected")
	ErrAuthExhausted     = errors.New("all credentials exhausted")
	ErrSessionDied       = errors.New("session is no longer alive")
	ErrElementNotFound   = errors.New("element not found")
	ErrNotClickable      = errors.New("element is not clickable")
	ErrEmptyResponse     = errors.New("empty response body")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrRunInProgress     = errors.New("a run is already in progress")
	ErrNoRunInProgress   = errors.New("no run in progress")
	ErrRunAborted        = errors.New("run aborted")
	ErrUnknownSource     = errors.New("unknown source")
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateKey      = errors.New("duplicate key")
)

// FetchError wraps errors that occur while loading a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// NavigationError reports a failed required navigation step.
type NavigationError struct {
	Step     string
	URL      string
	Selector string
	Err      error
}

func (e *NavigationError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("navigation %s failed at %s (selector=%q): %v", e.Step, e.URL, e.Selector, e.Err)
	}
	return fmt.Sprintf("navigation %s failed at %s: %v", e.Step, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed write for a single publication or author.
type PersistenceError struct {
	Op    string
	Title string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("persistence error (%s) for %q: %v", e.Op, e.Title, e.Err)
	}
	return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PipelineError wraps an error raised by one record middleware stage.
type PipelineError struct {
	Stage string
	Title string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q for %q: %v", e.Stage, e.Title, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// AuthExhaustedError is returned when no credential could log in across every restart cycle.
type AuthExhaustedError struct {
	Source      Source
	Credentials int
	Cycles      int
}

func (e *AuthExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d credential(s) failed across %d cycle(s): %v",
		e.Source, e.Credentials, e.Cycles, ErrAuthExhausted)
}

func (e *AuthExhaustedError) Unwrap() error { return ErrAuthExhausted }
