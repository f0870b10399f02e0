package ndn

import "strings"

// SplitSegments splits an ndn URL path (the part after "/ndn/") into its
// non-empty segments.
func SplitSegments(urlPath string) []string {
	trimmed := strings.Trim(urlPath, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
