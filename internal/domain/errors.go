package domain

import "errors"

var (
	// Bank client errors
	ErrAuthRequired  = errors.New("bank credentials missing or rejected")
	ErrSigningFailed = errors.New("sca signature failed")
	ErrRangeTooLarge = errors.New("statement window exceeds 469 days")

	// Store errors
	ErrTransactionNotFound = errors.New("bank transaction not found")
	ErrCursorNotFound      = errors.New("sync cursor not found")
	ErrPatternNotFound     = errors.New("pattern not found")
	ErrCursorBusy          = errors.New("sync cursor held by another worker")
	ErrStatusRegression    = errors.New("match status cannot regress")

	// Orchestrator errors
	ErrLeaseConflict = errors.New("scoring lease held by another worker")
	ErrStaleAttempt  = errors.New("scoring attempt is stale")

	// Approval service errors
	ErrDuplicateSubmission = errors.New("suggestion already submitted")

	// Matcher errors
	ErrLLMInvalidResponse = errors.New("llm response references unknown gl entry")
)
