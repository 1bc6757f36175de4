package management

import (
	"fmt"
	"io"
)

// readAllWithLimit reads up to limit bytes from r, reporting whether the
// body was truncated. Used to build bounded error messages without risking
// unbounded memory use on a misbehaving console.
func readAllWithLimit(r io.Reader, limit int64) (body []byte, truncated bool, err error) {
	if r == nil {
		return nil, false, fmt.Errorf("management: reader is nil")
	}
	limited := io.LimitReader(r, limit+1)
	b, err := io.ReadAll(limited)
	if err != nil {
		return nil, false, err
	}
	if int64(len(b)) > limit {
		return b[:limit], true, nil
	}
	return b, false, nil
}
