package hashkey

import "errors"

// ErrInvalidHex is returned by FromHex when the input contains a non-hex
// character.
var ErrInvalidHex = errors.New("hashkey: invalid hex")

// ErrInvalidLength is returned by FromHex when the decoded byte length is
// not exactly Size.
var ErrInvalidLength = errors.New("hashkey: invalid key length")
