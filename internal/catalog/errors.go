package catalog

import "fmt"

// ProbeError reports that the device listing facility itself is
// unavailable (missing tools, permission denied). Enumeration either
// returns a complete snapshot or a ProbeError, never a partial result
// with silently missing devices. Callers may retry.
type ProbeError struct {
	Op  string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("device probe failed (%s): %v", e.Op, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
