package model

import "errors"

// ErrInvalidEncoding is returned by the codec when a required discriminator
// field is missing or unknown.
var ErrInvalidEncoding = errors.New("invalid encoding")
