package storefront

import (
	"context"
	"time"

	rest "github.com/xompass/storefront-rest"
	"github.com/xompass/storefront-rest/accounts"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/otp"
)

// Users is the account store the API reads and mutates.
type Users interface {
	FindOrCreateByPhone(ctx context.Context, phone string) (*accounts.User, error)
	FindByID(ctx context.Context, id string) (*accounts.User, error)
	List(ctx context.Context, limit, skip int64) ([]accounts.User, int64, error)
	SetStatus(ctx context.Context, id string, status auth.Status) error
	SetAccountType(ctx context.Context, id string, accountType auth.AccountType) error
	SetRole(ctx context.Context, id string, role auth.Role) error
}

type Codes interface {
	Request(ctx context.Context, destination string) (*otp.Challenge, error)
	Verify(ctx context.Context, destination, code string) error
}

type TokenIssuer interface {
	IssueWithExpiry(subjectID string, role auth.Role, accountType auth.AccountType, ttl time.Duration) (string, time.Time, error)
}

type Revoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

type Options struct {
	TokenTTL                time.Duration
	TempAdminTokenTTL       time.Duration
	OTPRequestsPerHour      int
	OTPVerificationsPerHour int
}

type API struct {
	users   Users
	codes   Codes
	tokens  TokenIssuer
	revoker Revoker
	opts    Options
}

func NewAPI(users Users, codes Codes, tokens TokenIssuer, revoker Revoker, opts Options) *API {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.TempAdminTokenTTL <= 0 || opts.TempAdminTokenTTL > opts.TokenTTL {
		opts.TempAdminTokenTTL = min(time.Hour, opts.TokenTTL)
	}
	if opts.OTPRequestsPerHour <= 0 {
		opts.OTPRequestsPerHour = 5
	}
	if opts.OTPVerificationsPerHour <= 0 {
		opts.OTPVerificationsPerHour = 10
	}
	return &API{users: users, codes: codes, tokens: tokens, revoker: revoker, opts: opts}
}

// tokenTTL gives temporary admins a shorter session.
func (a *API) tokenTTL(role auth.Role) time.Duration {
	if role == auth.RoleTempAdmin {
		return a.opts.TempAdminTokenTTL
	}
	return a.opts.TokenTTL
}

// Endpoints declares every storefront route with its access requirement.
func (a *API) Endpoints() []*rest.Endpoint {
	userID := rest.NewPathParam("id", rest.ParamTypeObjectID, true)

	return []*rest.Endpoint{
		{
			Name:        "requestOtp",
			Method:      rest.MethodPOST,
			Path:        "/auth/otp",
			Public:      true,
			BodyParams:  func() any { return &otpRequestBody{} },
			RateLimiter: a.otpRateLimit,
			ActionType:  rest.ActionTypeLogin,
			Handler:     a.requestOTP,
		},
		{
			Name:        "verifyOtp",
			Method:      rest.MethodPOST,
			Path:        "/auth/otp/verify",
			Public:      true,
			BodyParams:  func() any { return &otpVerifyBody{} },
			RateLimiter: a.otpVerifyRateLimit,
			ActionType:  rest.ActionTypeLogin,
			Model:       "User",
			Handler:     a.verifyOTP,
		},
		{
			Name:       "logout",
			Method:     rest.MethodPOST,
			Path:       "/auth/logout",
			ActionType: rest.ActionTypeLogout,
			Handler:    a.logout,
		},
		{
			Name:       "me",
			Method:     rest.MethodGET,
			Path:       "/me",
			ActionType: rest.ActionTypeRead,
			Handler:    a.me,
		},
		{
			Name:         "resolvePath",
			Method:       rest.MethodGET,
			Path:         "/paths/resolve",
			Public:       true,
			OptionalAuth: true,
			Accepts:      []rest.Param{rest.NewQueryParam("path", rest.ParamTypeString, true)},
			ActionType:   rest.ActionTypeRead,
			Handler:      a.resolvePath,
		},
		{
			Name:         "corporatePricing",
			Method:       rest.MethodGET,
			Path:         "/corporate/pricing",
			AccountTypes: []auth.AccountType{auth.AccountCorporate},
			ActionType:   rest.ActionTypeRead,
			Handler:      a.corporatePricing,
		},
		{
			Name:   "listUsers",
			Method: rest.MethodGET,
			Path:   "/admin/users",
			Roles:  []auth.Role{auth.RoleAdmin},
			Accepts: []rest.Param{
				rest.NewQueryParam("limit", rest.ParamTypeInt),
				rest.NewQueryParam("skip", rest.ParamTypeInt),
			},
			ActionType: rest.ActionTypeRead,
			Model:      "User",
			Handler:    a.listUsers,
		},
		{
			Name:       "setUserStatus",
			Method:     rest.MethodPATCH,
			Path:       "/admin/users/:id/status",
			Roles:      []auth.Role{auth.RoleAdmin},
			Accepts:    []rest.Param{userID},
			BodyParams: func() any { return &statusBody{} },
			ActionType: rest.ActionTypeUpdate,
			Model:      "User",
			Handler:    a.setStatus,
		},
		{
			Name:       "setUserAccountType",
			Method:     rest.MethodPATCH,
			Path:       "/admin/users/:id/account-type",
			Roles:      []auth.Role{auth.RoleAdmin},
			Accepts:    []rest.Param{userID},
			BodyParams: func() any { return &accountTypeBody{} },
			ActionType: rest.ActionTypeUpdate,
			Model:      "User",
			Handler:    a.setAccountType,
		},
		{
			Name:       "setUserRole",
			Method:     rest.MethodPATCH,
			Path:       "/admin/users/:id/role",
			Roles:      []auth.Role{auth.RoleSuperAdmin},
			Accepts:    []rest.Param{userID},
			BodyParams: func() any { return &roleBody{} },
			ActionType: rest.ActionTypeUpdate,
			Model:      "User",
			Handler:    a.setRole,
		},
	}
}
