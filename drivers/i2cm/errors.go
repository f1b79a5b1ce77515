package i2cm

import "errors"

var (
	errNoRole    = errors.New("mode enables neither master nor slave")
	errAddr      = errors.New("address exceeds 7 bits")
	errDataRate  = errors.New("data rate out of range for bus clock")
	errEmptyRead = errors.New("empty read buffer")
	errTooLong   = errors.New("buffer exceeds 255 bytes")
	errState     = errors.New("wrong transfer state")
)
