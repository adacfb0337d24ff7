package auth

import "strings"

// RedirectRule rewrites paths with the given prefix for principals matching
// Applies. A prefix ending in "/" expects exactly one trailing segment (an id);
// otherwise the path must match the prefix exactly.
type RedirectRule struct {
	From    string
	To      string
	Applies func(p *Principal) bool
}

// DefaultRedirectRules send corporate accounts to the corporate catalog.
var DefaultRedirectRules = []RedirectRule{
	{From: "/shop", To: "/corporate-shop", Applies: (*Principal).IsCorporate},
	{From: "/shop/", To: "/corporate-shop/", Applies: (*Principal).IsCorporate},
	{From: "/shop-details/", To: "/corporate-shop/", Applies: (*Principal).IsCorporate},
}

type Redirector struct {
	rules []RedirectRule
}

func NewRedirector(rules ...RedirectRule) *Redirector {
	if len(rules) == 0 {
		rules = DefaultRedirectRules
	}
	return &Redirector{rules: rules}
}

// ResolvePath returns the path the principal should actually be served. Paths
// that match no rule, and all paths for a nil principal, come back unchanged.
func (r *Redirector) ResolvePath(p *Principal, requested string) string {
	if p == nil {
		return requested
	}

	path, query, hasQuery := strings.Cut(requested, "?")
	trimmed := path
	if len(trimmed) > 1 {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}

	for _, rule := range r.rules {
		rewritten, ok := rule.rewrite(trimmed)
		if !ok || (rule.Applies != nil && !rule.Applies(p)) {
			continue
		}
		if hasQuery {
			return rewritten + "?" + query
		}
		return rewritten
	}

	return requested
}

func (rule RedirectRule) rewrite(path string) (string, bool) {
	if !strings.HasSuffix(rule.From, "/") {
		if path == rule.From {
			return rule.To, true
		}
		return "", false
	}

	id, ok := strings.CutPrefix(path, rule.From)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return rule.To + id, true
}
