package resolver

import "strings"

// parentZone strips the leftmost label from an absolute name.
// parentZone("www.google.com.") == "google.com."
// parentZone("com.") == "."
func parentZone(zone string) string {
	i := strings.IndexByte(zone, '.')
	if i < 0 {
		return "."
	}
	if i == len(zone)-1 {
		return "."
	}
	return zone[i+1:]
}
