package correction

import "errors"

var (
	// ErrValidationUnavailable means the defect validator could not be reached.
	ErrValidationUnavailable = errors.New("validator unavailable")
	// ErrParseFailure means the API answered but no usable JSON payload was found.
	ErrParseFailure = errors.New("failed to parse correction payload")
	// ErrApplyNoop means a payload asked for an update but changed nothing.
	ErrApplyNoop = errors.New("correction payload changed no fields")
	// ErrClaimConflict means the record changed under us (status or version).
	ErrClaimConflict = errors.New("correction record claim conflict")
	// ErrInvalidTransition means the requested status change is not allowed.
	ErrInvalidTransition = errors.New("invalid correction status transition")
	// ErrNotFound means the record does not exist.
	ErrNotFound = errors.New("correction record not found")
	// ErrWorkflowRunning means another workflow invocation holds the run lock.
	ErrWorkflowRunning = errors.New("correction workflow already running")
)
