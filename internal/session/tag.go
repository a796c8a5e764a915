// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"net/url"
	"strings"
)

// tagParam is the query parameter a scanned tag URL carries.
const tagParam = "nfc"

// ExtractTag pulls the tag identifier out of a scanned navigation string.
// Accepts a full URL with an "nfc" query parameter or a bare token. Returns
// ok=false when no identifier is present; that is a handled state, not an
// error.
func ExtractTag(raw string) (tag string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if u, err := url.Parse(raw); err == nil {
		if v := u.Query().Get(tagParam); v != "" {
			return v, true
		}
		// A URL-shaped string without the parameter carries no tag.
		if u.Scheme != "" || u.Host != "" || strings.Contains(raw, "?") {
			return "", false
		}
	}

	// Bare token (e.g. "42") scanned directly.
	return raw, true
}
