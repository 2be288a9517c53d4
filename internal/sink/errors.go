package sink

import "errors"

var (
	ErrNotBound     = errors.New("sink not bound to a sample rate")
	ErrRateMismatch = errors.New("sample rate does not match engine rate")
	ErrBadShape     = errors.New("sample buffer shape must be mono")
	ErrClosed       = errors.New("sink is closed")
)
