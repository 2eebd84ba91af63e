package batches

import "errors"

var (
	ErrNotFound        = errors.New("batches: not found")
	ErrConflict        = errors.New("batches: already exists")
	ErrInvalidArgument = errors.New("batches: invalid argument")
	ErrUpstream        = errors.New("batches: voice platform request failed")
)
