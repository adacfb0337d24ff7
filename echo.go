package rest

import (
	"errors"
	"net/http"

	goerrors "github.com/go-errors/errors"
	"github.com/karagenc/fj4echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xompass/storefront-rest/http_errors"
)

func NewEchoApp(exposeErrorStack bool) *echo.Echo {
	app := echo.New()
	app.HideBanner = true
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.CORS())
	app.Use(middleware.Secure())

	app.JSONSerializer = fj4echo.New()
	app.HTTPErrorHandler = errorHandler(exposeErrorStack)

	return app
}

func errorHandler(exposeErrorStack bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		responseError := toErrorResponse(err, exposeErrorStack)

		var sendErr error
		if c.Request().Method == http.MethodHead {
			sendErr = c.NoContent(responseError.Code)
		} else {
			sendErr = c.JSON(responseError.Code, responseError)
		}
		if sendErr != nil {
			c.Logger().Error(sendErr)
		}
	}
}

func toErrorResponse(err error, exposeErrorStack bool) *http_errors.ErrorResponse {
	var errResponse *http_errors.ErrorResponse
	var paramErrors ParamErrors
	var httpErr *echo.HTTPError
	var stackErr *goerrors.Error

	switch {
	case errors.As(err, &errResponse):
		return errResponse
	case errors.As(err, &paramErrors):
		return http_errors.BadRequestErrorWithCode("INVALID_PARAMETERS", "Invalid parameters", paramErrors)
	case errors.As(err, &httpErr):
		return http_errors.NewErrorResponse(httpErr.Code, http.StatusText(httpErr.Code))
	case errors.As(err, &stackErr):
		if exposeErrorStack {
			return http_errors.InternalServerError(stackErr.Error(), stackErr.ErrorStack())
		}
		return http_errors.InternalServerError("Internal Server Error")
	default:
		if exposeErrorStack && err.Error() != "" {
			return http_errors.InternalServerError(err.Error())
		}
		return http_errors.InternalServerError("Internal Server Error")
	}
}
