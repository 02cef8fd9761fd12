package strom

import (
	"github.com/rs/xid"
)

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}
