// Package clock provides the wall-clock seconds used for post timestamps and
// their human readable form.
package clock

import "time"

// Layout is the human readable timestamp format used in logs and output.
const Layout = "2006-01-02 15:04:05"

type Clock interface {
	// Now returns the current unix time in seconds.
	Now() int64
}

type System struct{}

func (System) Now() int64 { return time.Now().Unix() }

// Func adapts a function to Clock.
type Func func() int64

func (f Func) Now() int64 { return f() }

// Format renders a unix timestamp in local time.
func Format(ts int64) string {
	return time.Unix(ts, 0).Format(Layout)
}
