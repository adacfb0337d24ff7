package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrConfig is returned when the token service has no signing key.
var ErrConfig = errors.New("token signing key is not configured")

// Claims is the verified content of a token.
type Claims struct {
	SubjectID   string
	Role        Role
	AccountType AccountType
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	// LegacyUserType is set when the token carried the account type under the
	// old "userType" claim only.
	LegacyUserType bool
}

type tokenClaims struct {
	Role        string `json:"role"`
	AccountType string `json:"accountType,omitempty"`
	UserType    string `json:"userType,omitempty"`
	jwt.RegisteredClaims
}

type TokenServiceOptions struct {
	Secret []byte
	Issuer string
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// TokenService issues and verifies HS256 signed JWTs. The key is fixed at
// construction time.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenService(opts TokenServiceOptions) (*TokenService, error) {
	if len(opts.Secret) == 0 {
		return nil, ErrConfig
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(opts.Secret))
	copy(secret, opts.Secret)

	return &TokenService{
		secret: secret,
		issuer: opts.Issuer,
		now:    now,
	}, nil
}

func (s *TokenService) Issue(subjectID string, role Role, accountType AccountType, ttl time.Duration) (string, error) {
	raw, _, err := s.IssueWithExpiry(subjectID, role, accountType, ttl)
	return raw, err
}

// IssueWithExpiry issues a token and returns the expiry it carries. The exp
// claim has whole second precision, so the expiry is rounded up: a token never
// expires before now+ttl.
func (s *TokenService) IssueWithExpiry(subjectID string, role Role, accountType AccountType, ttl time.Duration) (string, time.Time, error) {
	if s == nil || len(s.secret) == 0 {
		return "", time.Time{}, ErrConfig
	}
	if subjectID == "" {
		return "", time.Time{}, errors.New("subject id is required")
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}
	if !accountType.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown account type %q", accountType)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}

	issuedAt := s.now()
	expiresAt := ceilSecond(issuedAt.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role:        string(role),
		AccountType: string(accountType),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	raw, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, expiresAt, nil
}

func ceilSecond(t time.Time) time.Time {
	truncated := t.Truncate(time.Second)
	if truncated.Before(t) {
		return truncated.Add(time.Second)
	}
	return truncated
}

func (s *TokenService) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fail(MissingToken, nil)
	}
	if s == nil || len(s.secret) == 0 {
		return nil, fail(InvalidSignature, ErrConfig)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	tc, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, fail(Malformed, errors.New("unexpected claims type"))
	}

	return tc.toClaims()
}

// classifyJWTError maps jwt parse errors onto failure kinds. The parser checks
// the signature before any claim, so a tampered token never reaches the expiry
// check.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fail(Malformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fail(InvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fail(Expired, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing), errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fail(Malformed, err)
	default:
		return fail(Malformed, err)
	}
}

func (tc *tokenClaims) toClaims() (*Claims, error) {
	if tc.Subject == "" {
		return nil, fail(Malformed, errors.New("missing subject"))
	}

	role, ok := ParseRole(tc.Role)
	if !ok {
		return nil, fail(Malformed, fmt.Errorf("unknown role %q", tc.Role))
	}

	rawAccountType := tc.AccountType
	legacy := false
	if rawAccountType == "" && tc.UserType != "" {
		rawAccountType = tc.UserType
		legacy = true
	}

	accountType, ok := ParseAccountType(rawAccountType)
	if !ok {
		return nil, fail(Malformed, fmt.Errorf("unknown account type %q", rawAccountType))
	}

	claims := &Claims{
		SubjectID:      tc.Subject,
		Role:           role,
		AccountType:    accountType,
		TokenID:        tc.ID,
		LegacyUserType: legacy,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}

	return claims, nil
}
