package storefront

import (
	"errors"
	"net/http"
	"time"

	rest "github.com/xompass/storefront-rest"
	"github.com/xompass/storefront-rest/accounts"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/http_errors"
	"github.com/xompass/storefront-rest/otp"
)

type otpRequestBody struct {
	Phone string `json:"phone" normalize:"phone" validate:"required,e164"`
}

type otpVerifyBody struct {
	Phone string `json:"phone" normalize:"phone" validate:"required,e164"`
	Code  string `json:"code" normalize:"trim" validate:"required,numeric,min=4,max=10"`
}

type otpRequested struct {
	Destination string    `json:"destination"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type session struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      *accounts.User `json:"user"`
}

type profile struct {
	Principal *auth.Principal `json:"principal"`
	User      *accounts.User  `json:"user"`
}

type pricing struct {
	PriceList   string           `json:"priceList"`
	AccountType auth.AccountType `json:"accountType"`
}

// otpRateLimit counts code requests per phone.
func (a *API) otpRateLimit(c *rest.EndpointContext) rest.RateLimit {
	key := ""
	if body, ok := c.ParsedBody.(*otpRequestBody); ok {
		key = "otp:" + body.Phone
	}
	return rest.RateLimit{Max: a.opts.OTPRequestsPerHour, Window: time.Hour, Key: key}
}

// otpVerifyRateLimit counts code guesses per phone across challenges.
func (a *API) otpVerifyRateLimit(c *rest.EndpointContext) rest.RateLimit {
	key := ""
	if body, ok := c.ParsedBody.(*otpVerifyBody); ok {
		key = "otp-verify:" + body.Phone
	}
	return rest.RateLimit{Max: a.opts.OTPVerificationsPerHour, Window: time.Hour, Key: key}
}

func (a *API) requestOTP(c *rest.EndpointContext) error {
	body := c.ParsedBody.(*otpRequestBody)

	challenge, err := a.codes.Request(c.Context(), body.Phone)
	if err != nil {
		c.App.Errorf("OTP request failed: %v", err)
		return http_errors.InternalServerErrorWithCode("OTP_UNAVAILABLE", "Could not send the code, try again later")
	}

	return c.JSON(otpRequested{Destination: challenge.Destination, ExpiresAt: challenge.ExpiresAt}, http.StatusAccepted)
}

func (a *API) verifyOTP(c *rest.EndpointContext) error {
	body := c.ParsedBody.(*otpVerifyBody)
	ctx := c.Context()

	if err := a.codes.Verify(ctx, body.Phone, body.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrTooManyAttempts):
			return http_errors.TooManyRequestsErrorWithCode("OTP_TOO_MANY_ATTEMPTS", "Too many wrong codes, request a new one")
		case errors.Is(err, otp.ErrCodeNotFound), errors.Is(err, otp.ErrCodeMismatch):
			return http_errors.UnauthorizedErrorWithCode("OTP_INVALID", "Invalid or expired code")
		default:
			c.App.Errorf("OTP verification failed: %v", err)
			return http_errors.InternalServerErrorWithCode("OTP_UNAVAILABLE", "Could not verify the code, try again later")
		}
	}

	user, err := a.users.FindOrCreateByPhone(ctx, body.Phone)
	if err != nil {
		return err
	}
	if user.Status == auth.StatusBlocked {
		return http_errors.UnauthorizedErrorWithCode(string(auth.AccountBlocked), auth.AccountBlocked.Error())
	}

	accountType, legacy, ok := user.EffectiveAccountType()
	if !ok {
		c.App.Errorf("User %s has no usable account type", user.ID.Hex())
		return http_errors.InternalServerErrorWithCode("ACCOUNT_MISCONFIGURED", "Account is misconfigured")
	}
	if legacy {
		c.App.Warnf("User %s logged in with legacy userType %q", user.ID.Hex(), user.UserType)
	}

	token, expiresAt, err := a.tokens.IssueWithExpiry(user.ID.Hex(), user.Role, accountType, a.tokenTTL(user.Role))
	if err != nil {
		c.App.Errorf("Token issue failed: %v", err)
		return http_errors.InternalServerErrorWithCode("TOKEN_UNAVAILABLE", "Could not start a session")
	}

	return c.RespondAndLog(session{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, user.ID.Hex(), rest.ResponseTypeJSON)
}

func (a *API) logout(c *rest.EndpointContext) error {
	p := c.Principal
	if a.revoker != nil && p.TokenID != "" {
		if err := a.revoker.Revoke(c.Context(), p.TokenID, p.ExpiresAt); err != nil {
			c.App.Errorf("Token revocation failed for %s: %v", p.SubjectID, err)
			return http_errors.InternalServerErrorWithCode("LOGOUT_UNAVAILABLE", "Could not end the session, try again later")
		}
	}
	return c.RespondAndLog(nil, p.SubjectID, rest.ResponseTypeNoContent, http.StatusNoContent)
}

func (a *API) me(c *rest.EndpointContext) error {
	user, err := a.users.FindByID(c.Context(), c.Principal.SubjectID)
	if err != nil {
		return userError(err)
	}
	return c.JSON(profile{Principal: c.Principal, User: user})
}

func (a *API) resolvePath(c *rest.EndpointContext) error {
	requested, _ := c.QueryParam("path").(string)
	if requested == "" || requested[0] != '/' {
		return http_errors.BadRequestErrorWithCode("INVALID_PATH", "path must be absolute")
	}

	resolved := c.ResolvePath(requested)
	return c.JSON(rest.Redirect{
		Requested:  requested,
		Path:       resolved,
		Redirected: resolved != requested,
	})
}

func (a *API) corporatePricing(c *rest.EndpointContext) error {
	return c.JSON(pricing{PriceList: "corporate", AccountType: c.Principal.AccountType})
}

// userError maps account store errors to responses.
func userError(err error) error {
	switch {
	case errors.Is(err, accounts.ErrNotFound):
		return http_errors.NotFoundErrorWithCode("USER_NOT_FOUND", "User not found")
	case errors.Is(err, accounts.ErrInvalidInput):
		return http_errors.BadRequestErrorWithCode("INVALID_ACCOUNT_INPUT", err.Error())
	default:
		return err
	}
}
