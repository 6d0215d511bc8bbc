package ratelimit

import "strings"

// ClassifyRoute maps an HTTP path to a rate-limit Class:
// "paths that generate or edit images map to image; everything else to
// text."
func ClassifyRoute(path string) Class {
	lower := strings.ToLower(path)

	if strings.Contains(lower, "/images/") || strings.Contains(lower, "/image/") {
		return ClassImage
	}

	return ClassText
}
