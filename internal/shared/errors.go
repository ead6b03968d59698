package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Storage errors
	ErrStorageOpen     = fmt.Errorf("failed to open storage")
	ErrDuplicateMember = fmt.Errorf("member already exists")
	ErrMemberNotFound  = fmt.Errorf("member not found")
	ErrVideoNotFound   = fmt.Errorf("video not found")

	// Remote fetch errors
	ErrTransientFetch = fmt.Errorf("remote fetch failed")
	ErrParse          = fmt.Errorf("malformed remote payload")
	ErrEmptyMember    = fmt.Errorf("member has no videos")

	// Coordinator errors
	ErrShuttingDown = fmt.Errorf("coordinator shutting down")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
