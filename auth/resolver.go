package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrSubjectNotFound is returned by an AccountStore when the subject of a
// verified token no longer exists.
var ErrSubjectNotFound = errors.New("subject not found")

// AccountStore is the user/account collaborator consulted on every request.
// Implementations must not cache across requests: a status change has to be
// visible on the very next call.
type AccountStore interface {
	LookupStatus(ctx context.Context, subjectID string) (Status, error)
	LookupAccountType(ctx context.Context, subjectID string) (AccountType, error)
}

// RevocationList reports tokens revoked before their expiry (logout).
type RevocationList interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type TokenVerifier interface {
	Verify(raw string) (*Claims, error)
}

type SessionResolver struct {
	tokens      TokenVerifier
	accounts    AccountStore
	revocations RevocationList
	logger      zerolog.Logger
}

type SessionResolverOption func(*SessionResolver)

func WithRevocationList(list RevocationList) SessionResolverOption {
	return func(r *SessionResolver) {
		r.revocations = list
	}
}

func WithResolverLogger(logger zerolog.Logger) SessionResolverOption {
	return func(r *SessionResolver) {
		r.logger = logger
	}
}

func NewSessionResolver(tokens TokenVerifier, accounts AccountStore, opts ...SessionResolverOption) *SessionResolver {
	r := &SessionResolver{
		tokens:   tokens,
		accounts: accounts,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns a raw bearer token into a Principal. Token failures are returned
// with their kind unchanged; account problems are reported as AccountBlocked or
// LookupUnavailable.
func (r *SessionResolver) Resolve(ctx context.Context, rawToken string) (*Principal, error) {
	if rawToken == "" {
		return nil, fail(MissingToken, nil)
	}

	claims, err := r.tokens.Verify(rawToken)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, fail(Malformed, err)
	}

	if claims.LegacyUserType {
		r.logger.Warn().Str("subject", claims.SubjectID).Msg("token carries legacy userType claim")
	}

	if r.revocations != nil && claims.TokenID != "" {
		revoked, err := r.revocations.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return nil, fail(LookupUnavailable, err)
		}
		if revoked {
			return nil, fail(Revoked, nil)
		}
	}

	if r.accounts == nil {
		return nil, fail(LookupUnavailable, errors.New("no account store configured"))
	}

	status, err := r.accounts.LookupStatus(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			return nil, fail(AccountBlocked, err)
		}
		return nil, fail(LookupUnavailable, err)
	}
	if status == StatusBlocked {
		return nil, fail(AccountBlocked, nil)
	}
	if !status.Valid() {
		return nil, fail(LookupUnavailable, errors.New("account store returned unknown status "+string(status)))
	}

	accountType, err := r.accounts.LookupAccountType(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			return nil, fail(AccountBlocked, err)
		}
		return nil, fail(LookupUnavailable, err)
	}
	if !accountType.Valid() {
		return nil, fail(LookupUnavailable, errors.New("account store returned unknown account type "+string(accountType)))
	}

	return &Principal{
		SubjectID:   claims.SubjectID,
		Role:        claims.Role,
		AccountType: accountType,
		Status:      status,
		TokenID:     claims.TokenID,
		IssuedAt:    claims.IssuedAt,
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}
