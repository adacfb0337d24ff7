package auth

import (
	"context"
	"strings"
)

// Outcome is the result of a guard check: either a principal to proceed with, or
// the failure that rejected the request.
type Outcome struct {
	Principal *Principal
	Failure   *Failure
}

func (o Outcome) Proceed() bool {
	return o.Failure == nil && o.Principal != nil
}

func (o Outcome) Kind() FailureKind {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Kind
}

func proceed(p *Principal) Outcome {
	return Outcome{Principal: p}
}

func reject(f *Failure) Outcome {
	return Outcome{Failure: f}
}

type Resolver interface {
	Resolve(ctx context.Context, rawToken string) (*Principal, error)
}

// Guard composes session resolution and policy evaluation. It keeps no state
// between calls and is safe for concurrent use.
type Guard struct {
	resolver Resolver
}

func NewGuard(resolver Resolver) *Guard {
	return &Guard{resolver: resolver}
}

// Check runs the full authentication and authorization sequence and stops at the
// first failure. On success the returned context carries the principal.
func (g *Guard) Check(ctx context.Context, rawToken string, req Requirement) (context.Context, Outcome) {
	if rawToken == "" {
		return ctx, reject(fail(MissingToken, nil))
	}

	principal, err := g.resolver.Resolve(ctx, rawToken)
	if err != nil {
		return ctx, reject(asFailure(err))
	}

	decision := Authorize(principal, req)
	if !decision.Allow {
		return ctx, reject(fail(decision.Reason, nil))
	}

	return WithPrincipal(ctx, principal), proceed(principal)
}

func asFailure(err error) *Failure {
	if f, ok := err.(*Failure); ok {
		return f
	}
	if kind, ok := KindOf(err); ok {
		return fail(kind, err)
	}
	return fail(LookupUnavailable, err)
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header.
// Any other scheme, or an empty token, is reported as absent.
func ExtractBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
