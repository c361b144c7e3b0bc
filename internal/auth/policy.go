package auth

import (
	"net/http"
	"strings"
)

// Tier is the trust tier a request must satisfy.
type Tier string

const (
	TierNone     Tier = ""
	TierPublic   Tier = "public"
	TierOperator Tier = "operator"
	TierDevice   Tier = "device"
)

// Policy determines the required tier by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	PublicPaths    map[string]struct{}
	DevicePrefixes []string
}

// NewDefaultPolicy builds a policy with exemptions, anonymous routes and device routes.
func NewDefaultPolicy(exemptPaths, publicPaths, devicePrefixes []string) Policy {
	return Policy{
		ExemptPaths:    toSet(exemptPaths),
		PublicPaths:    toSet(publicPaths),
		DevicePrefixes: devicePrefixes,
	}
}

// IsExempt returns true when a request should skip auth entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	_, ok := p.ExemptPaths[r.URL.Path]
	return ok
}

// RequiredTier resolves the tier for the request.
func (p Policy) RequiredTier(r *http.Request) Tier {
	if r == nil || p.IsExempt(r) {
		return TierNone
	}
	path := r.URL.Path
	if _, ok := p.PublicPaths[path]; ok {
		return TierPublic
	}
	for _, prefix := range p.DevicePrefixes {
		if strings.HasPrefix(path, prefix) {
			return TierDevice
		}
	}
	if strings.HasPrefix(path, "/api/") {
		return TierOperator
	}
	return TierNone
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
