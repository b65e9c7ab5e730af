package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed opaque identifier, e.g. "sale-5f3a...".
func New(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
