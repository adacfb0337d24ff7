package rest

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/http_errors"
)

// AccessGuard decides whether a request carrying rawToken may use an endpoint
// with the given requirement.
type AccessGuard interface {
	Check(ctx context.Context, rawToken string, req auth.Requirement) (context.Context, auth.Outcome)
}

// Authorize runs the guard for the endpoint in ctx. On success the principal is
// set on ctx and on the request context seen by the handler.
func (receiver *RestApp) Authorize(ctx *EndpointContext) error {
	ep := ctx.Endpoint
	if ep.Public && !ep.OptionalAuth {
		return nil
	}

	rawToken, present := auth.ExtractBearer(ctx.EchoCtx.Request().Header.Get(echo.HeaderAuthorization))
	if ep.Public && !present {
		return nil
	}

	if receiver.guard == nil {
		receiver.Errorf("No guard configured, denying access to %s", ep.Name)
		return http_errors.InternalServerErrorWithCode("AUTH_NOT_CONFIGURED", "Authorization is not configured")
	}

	reqCtx, outcome := receiver.guard.Check(ctx.Context(), rawToken, ep.Requirement())
	if !outcome.Proceed() {
		kind := outcome.Kind()
		if kind == auth.LookupUnavailable {
			receiver.Errorf("Authorization for %s failed: %v", ep.Name, outcome.Failure)
		} else {
			receiver.Debugf("Request to %s rejected: %s", ep.Name, kind)
		}
		return receiver.rejection(ctx, kind)
	}

	ctx.Principal = outcome.Principal
	ctx.Token = rawToken
	ctx.context = reqCtx
	ctx.EchoCtx.SetRequest(ctx.EchoCtx.Request().WithContext(reqCtx))
	return nil
}

func (receiver *RestApp) rejection(ctx *EndpointContext, kind auth.FailureKind) error {
	if kind == "" {
		kind = auth.LookupUnavailable
	}
	status := kind.HTTPStatus()
	if status == http.StatusUnauthorized {
		ctx.EchoCtx.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	}
	return http_errors.NewErrorResponseWithCode(status, string(kind), kind.Error())
}
