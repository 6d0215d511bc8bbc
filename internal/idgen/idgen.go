// Package idgen renders opaque 128-bit identifiers as type-prefixed
// strings (resp_, conv_, etc.).
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

const (
	PrefixOrganization = "org"
	PrefixWorkspace    = "ws"
	PrefixAPIKey       = "key"
	PrefixModel        = "model"
	PrefixBackend      = "back"
	PrefixConversation = "conv"
	PrefixResponse     = "resp"
	PrefixItem         = "item"
	PrefixUsageLog     = "ulog"
	PrefixSession      = "sess"
)

// New renders a fresh random v4 UUID under the given type prefix, e.g.
// New(PrefixResponse) -> "resp_6b1fa6b9d9d9455ea3c3d3c7b4b0a1f1".
func New(prefix string) string {
	id := uuid.New()
	return prefix + "_" + strings.ReplaceAll(id.String(), "-", "")
}

// HasPrefix reports whether id carries the expected type prefix, a cheap
// guard against cross-entity id confusion at service boundaries.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}
