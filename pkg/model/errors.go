package model

import "fmt"

// ErrorCode is the closed set of error classes the engine surfaces to callers.
type ErrorCode string

const (
	NoError                 ErrorCode = ""
	DoesNotExistError       ErrorCode = "does_not_exist"
	AlreadyExistsError      ErrorCode = "already_exists"
	InvalidDetailError      ErrorCode = "invalid_detail"
	InvalidContactTypeError ErrorCode = "invalid_contact_type"
	LockedError             ErrorCode = "locked"
	DetailAccessError       ErrorCode = "detail_access"
	PermissionsError        ErrorCode = "permissions"
	OutOfMemoryError        ErrorCode = "out_of_memory"
	NotSupportedError       ErrorCode = "not_supported"
	BadArgumentError        ErrorCode = "bad_argument"
	UnspecifiedError        ErrorCode = "unspecified"
	LimitReachedError       ErrorCode = "limit_reached"
	InvalidCollectionError  ErrorCode = "invalid_collection"
)

// Error is a typed engine error carrying one of the closed ErrorCode values.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "contactstore: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("contactstore: %s", e.Code)
	}
	return fmt.Sprintf("contactstore: %s: %s", e.Code, e.Message)
}

// NewError constructs an *Error with the given code and formatted message.
func NewError(code ErrorCode, format string, a ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

// IndexedError is a per-index error produced by a batch operation, keyed by
// the position of the offending entry in the caller-supplied slice.
type IndexedError struct {
	Index int
	Err   *Error
}

// BatchErrors holds the overall error (first non-NoError encountered) and the
// per-index error map produced by a batch save/remove operation.
type BatchErrors struct {
	Overall  *Error
	PerIndex map[int]*Error
}

// Record sets the per-index error and, if this is the first failure seen,
// the overall error too.
func (b *BatchErrors) Record(index int, err *Error) {
	if b.PerIndex == nil {
		b.PerIndex = make(map[int]*Error)
	}
	b.PerIndex[index] = err
	if b.Overall == nil {
		b.Overall = err
	}
}

// ClearPerIndex resets the per-index map, used after a transactional rollback where
// only the overall error should survive.
func (b *BatchErrors) ClearPerIndex() {
	b.PerIndex = nil
}
