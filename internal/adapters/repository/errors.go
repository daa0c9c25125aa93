package repository

import "github.com/okian/zen/internal/domain/model"

// Sentinel kinds shared with the other store implementations.
var (
	ErrNotFound     = model.ErrNotFound
	ErrInvalidLimit = model.ErrInvalidLimit
)
