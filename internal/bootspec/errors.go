package bootspec

import "fmt"

// UnsupportedSourceError means the boot source could not be read at
// all. An unrecognized OS is never an error; the resolver falls back to
// a generic profile instead.
type UnsupportedSourceError struct {
	Path string
	Err  error
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("boot source %s is not readable: %v", e.Path, e.Err)
}

func (e *UnsupportedSourceError) Unwrap() error {
	return e.Err
}
