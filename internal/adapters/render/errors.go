package render

import "errors"

var (
	// ErrNoBars is returned when a bar chart has nothing to draw.
	ErrNoBars = errors.New("render: no bars")
	// ErrZeroMax is returned when no bar has a positive value.
	ErrZeroMax = errors.New("render: maximum value is not positive")
	// ErrEncode wraps PNG encoding failures.
	ErrEncode = errors.New("render: encode png")
)
