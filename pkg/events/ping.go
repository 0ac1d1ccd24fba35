package events

import (
	"fmt"
	"strings"
)

// IsPing reports whether e is a keepalive. Events with an explicit type tag
// are pings only when the tag says so; untagged events fall back to a
// string match on their representation.
func IsPing(e Event) bool {
	if e == nil {
		return false
	}
	if e.Type() == EventTypePing {
		return true
	}
	if e.Type() != "" {
		return false
	}
	s, err := Repr(e)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(s), "ping")
}

// Repr is the best-effort string representation of an event: its raw
// payload when it was decoded, its String method otherwise. A panicking
// String method is reported as an error.
func Repr(e Event) (s string, err error) {
	if p := e.Payload(); len(p) > 0 {
		return string(p), nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("could not represent %T: %v", e, r)
		}
	}()
	if st, ok := e.(fmt.Stringer); ok {
		return st.String(), nil
	}
	return fmt.Sprintf("%+v", e), nil
}
