package provider

import "strings"

// NormalizeEndpoint joins a user-supplied base URL with endpoint per
// spec.md §6: a base ending in "/v1" gets the endpoint appended directly;
// otherwise "/v1" is inserted first.
func NormalizeEndpoint(base, endpoint string) string {
	base = strings.TrimRight(base, "/")
	endpoint = strings.TrimLeft(endpoint, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/" + endpoint
	}
	return base + "/v1/" + endpoint
}
