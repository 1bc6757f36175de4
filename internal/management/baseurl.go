package management

import (
	"fmt"
	"net/url"
	"strings"
)

// normalizeBaseURL trims whitespace/trailing slashes and validates that raw
// is a well-formed http(s) URL with no embedded user info.
func normalizeBaseURL(raw string) (string, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(raw), "/")
	if baseURL == "" {
		return "", fmt.Errorf("management: base URL is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("management: base URL must be a valid URL")
	}
	if parsed.User != nil {
		return "", fmt.Errorf("management: base URL must not include user info")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("management: base URL scheme must be http or https")
	}
	return baseURL, nil
}

// joinPath strips leading/trailing slashes from segment and joins it onto
// base, matching the "leading/trailing / stripped and re-joined" rule of
// spec.md §4.C.
func joinPath(base, segment string) string {
	return base + "/" + strings.Trim(segment, "/")
}
