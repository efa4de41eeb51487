package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrPoolExhausted
	ErrDimensionMismatch
	ErrEncryption
	ErrMigration
	ErrTooMany
	ErrInternal
)
