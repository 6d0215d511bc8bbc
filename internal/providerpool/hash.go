package providerpool

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// hashString derives a stable, short backend id from an endpoint URL so
// the same endpoint always maps to the same backend id across refreshes.
func hashString(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 36)
}
