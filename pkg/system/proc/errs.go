package proc

import "errors"

// ErrEmptyProcTable indicates that the proc filesystem listed no processes
// at all. A live kernel always has some, so an empty listing means the
// mount itself is broken or masked.
var ErrEmptyProcTable = errors.New("proc: empty process table")
