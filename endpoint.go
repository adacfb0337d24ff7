package rest

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/http_errors"
)

type RateLimit struct {
	Max    int
	Window time.Duration
	Key    string
}

type Endpoint struct {
	Name        string
	Method      EndpointMethod
	Path        string
	Handler     func(c *EndpointContext) error
	Disabled    bool       // If true, the endpoint is disabled and will not be registered or accessible.
	BodyParams  func() any // Returns a pointer to the struct the JSON body is decoded into.
	RateLimiter func(*EndpointContext) RateLimit
	Public      bool // If true, the endpoint is accessible without authentication.
	// OptionalAuth only applies to public endpoints: a present token is still
	// resolved and must be valid, a missing one is allowed through.
	OptionalAuth  bool
	Roles         []auth.Role        // Any role satisfying one of these may call the endpoint. Empty means any role.
	AccountTypes  []auth.AccountType // If set, the caller's account type must be one of these.
	ActionType    ActionType         // Used for audit logging.
	Model         string             // The related model or resource. Used for audit logging.
	Accepts       []Param
	AuditDisabled bool           // Disable audit logging for this endpoint
	MetaData      map[string]any // Additional metadata for the endpoint
	app           *RestApp
}

// Requirement is the access requirement the guard evaluates for this endpoint.
func (ep *Endpoint) Requirement() auth.Requirement {
	return auth.Requirement{
		Roles:        ep.Roles,
		AccountTypes: ep.AccountTypes,
	}
}

// run authorizes before touching the body so unauthenticated callers never get
// validation feedback.
func (ep *Endpoint) run(c echo.Context) error {
	if ep.Disabled {
		return http_errors.NotFoundError("Endpoint not found")
	}

	ctx := &EndpointContext{
		EchoCtx:   c,
		Endpoint:  ep,
		App:       ep.app,
		IpAddress: c.RealIP(),
		context:   c.Request().Context(),
	}

	err := ep.app.Authorize(ctx)
	if err != nil {
		return err
	}

	err = parseBody(ep, ctx)
	if err != nil {
		return err
	}

	err = parseAllParams(ep, ctx)
	if err != nil {
		return err
	}

	err = checkRateLimit(ctx)
	if err != nil {
		return err
	}

	return ep.Handler(ctx)
}
