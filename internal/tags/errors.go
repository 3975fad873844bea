package tags

import "errors"

// Validation failures are user-correctable: the caller re-prompts. Storage
// failures carry ErrStorage and the underlying cause, both testable with
// errors.Is.
var (
	ErrEmptyName     = errors.New("tag name cannot be empty")
	ErrDuplicateName = errors.New("tag already exists")
	ErrTagNotFound   = errors.New("tag not found")
	ErrStorage       = errors.New("tag storage error")
)
