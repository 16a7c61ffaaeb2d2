package store

import "errors"

// Sentinel errors. The API layer maps these onto coded responses.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrBookNotFound    = errors.New("book not found")
	ErrBookExists      = errors.New("book already exists")
	ErrTimingNotFound  = errors.New("timing table not found")
	ErrPairingNotFound = errors.New("pairing not found")
)
