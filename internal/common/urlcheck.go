package common

import (
	"net/url"
	"strings"
)

// blockedHosts are known error-redirect domains whose pages never carry a job
// posting. URLs resolving to one of these hosts are dropped at the pipeline
// boundary.
var blockedHosts = map[string]struct{}{
	"errors.edgesuite.net": {},
}

// IsHTTPURL reports whether value parses as an absolute http or https URL.
func IsHTTPURL(value string) bool {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// ShouldSkipURL is the validity predicate applied on both sides of the job
// task queue: URLs failing it are dropped during diff expansion and completed
// without output if one slips through to the inference worker.
func ShouldSkipURL(value string) bool {
	if !IsHTTPURL(value) {
		return true
	}
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return true
	}
	_, blocked := blockedHosts[u.Hostname()]
	return blocked
}
