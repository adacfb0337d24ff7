package auth

import (
	"context"
	"time"
)

// Principal is the verified identity behind a request. It is only ever built by
// the SessionResolver from a verified token plus a fresh account lookup.
type Principal struct {
	SubjectID   string      `json:"subjectId"`
	Role        Role        `json:"role"`
	AccountType AccountType `json:"accountType"`
	Status      Status      `json:"status"`
	TokenID     string      `json:"-"`
	IssuedAt    time.Time   `json:"issuedAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

func (p *Principal) GetPrincipalID() string {
	return p.SubjectID
}

func (p *Principal) GetPrincipalRole() string {
	return string(p.Role)
}

func (p *Principal) Blocked() bool {
	return p.Status == StatusBlocked
}

func (p *Principal) IsCorporate() bool {
	return p != nil && p.AccountType == AccountCorporate
}

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFrom returns the principal attached by the Guard, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}
