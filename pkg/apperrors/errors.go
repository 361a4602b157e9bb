package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrNoActiveSession    = errors.New("no active import session")
	ErrSheetNotFound      = errors.New("sheet not found in session")
	ErrColumnNotFound     = errors.New("column not found in sheet")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPendingColumns     = errors.New("sheet has columns pending review")
	ErrNoApprovedSheets   = errors.New("no approved sheets to commit")
	ErrCommitInProgress   = errors.New("commit already in progress")
	ErrStaleGeneration    = errors.New("analysis result superseded by a newer request")
	ErrUnsupportedDialect = errors.New("unsupported catalog dialect")
)
