package rest

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xompass/storefront-rest/auth"
)

type EndpointContext struct {
	App          *RestApp
	EchoCtx      echo.Context
	Endpoint     *Endpoint
	ParsedBody   any
	ParsedQuery  map[string]any
	ParsedPath   map[string]any
	ParsedHeader map[string]any
	IpAddress    string
	Principal    *auth.Principal // nil on public endpoints called without a token
	Token        string
	context      context.Context
}

func (eCtx *EndpointContext) Context() context.Context {
	if eCtx.context == nil {
		return context.Background()
	}
	return eCtx.context
}

func (eCtx *EndpointContext) ValidateStruct(v any) error {
	if v == nil {
		return nil
	}
	return eCtx.App.ValidatorInstance.Struct(v)
}

func (eCtx *EndpointContext) SanitizeStruct(v any) error {
	if v == nil {
		return nil
	}

	return processStruct(v, tagSanitize)
}

func (eCtx *EndpointContext) NormalizeStruct(v any) error {
	if v == nil {
		return nil
	}

	return processStruct(v, tagNormalize)
}

// ResolvePath returns the path the caller should be sent to instead of
// requested, or requested itself.
func (eCtx *EndpointContext) ResolvePath(requested string) string {
	if eCtx.App.redirector == nil {
		return requested
	}
	return eCtx.App.redirector.ResolvePath(eCtx.Principal, requested)
}

// PathParam returns a parsed path parameter, falling back to the raw value.
func (eCtx *EndpointContext) PathParam(name string) any {
	if v, ok := eCtx.ParsedPath[name]; ok && v != nil {
		return v
	}
	return eCtx.EchoCtx.Param(name)
}

func (eCtx *EndpointContext) QueryParam(name string) any {
	return eCtx.ParsedQuery[name]
}

/**
 * RespondAndLog sends a response and logs the audit if enabled.
 * @param response The response data to send.
 * @param affectedModelId The ID of the model affected by the operation, used for logging.
 * @param contentType The type of response to send (JSON, Text, NoContent).
 * @param statusCode Optional status code to override the default 200 OK.
 */
func (ctx *EndpointContext) RespondAndLog(response any, affectedModelId any, contentType ResponseType, statusCode ...int) error {
	if !ctx.Endpoint.AuditDisabled && ctx.App.auditLogConfig.Enabled && ctx.App.auditLogConfig.Handler != nil {
		if err := ctx.App.auditLogConfig.Handler(ctx, response, affectedModelId); err != nil {
			ctx.App.Errorf("Failed to log audit: %v", err)
		}
	}

	status := http.StatusOK
	if len(statusCode) > 0 {
		status = statusCode[0]
	}

	switch contentType {
	case ResponseTypeJSON:
		return ctx.EchoCtx.JSON(status, response)
	case ResponseTypeText:
		if str, ok := response.(string); ok {
			return ctx.EchoCtx.String(status, str)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "text response must be string")
	case ResponseTypeNoContent:
		return ctx.EchoCtx.NoContent(status)
	default:
		return echo.NewHTTPError(http.StatusNotAcceptable, "unsupported content type")
	}
}

// JSON sends a JSON response
func (ctx *EndpointContext) JSON(response any, statusCode ...int) error {
	status := http.StatusOK
	if len(statusCode) > 0 {
		status = statusCode[0]
	}

	return ctx.EchoCtx.JSON(status, response)
}

// NoContent sends a 204 No Content response
func (ctx *EndpointContext) NoContent() error {
	return ctx.EchoCtx.NoContent(http.StatusNoContent)
}
