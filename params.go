package rest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xompass/storefront-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type Param struct {
	in        ParamLocation
	name      string
	paramType ParamType
	required  bool
	Parser    func(string) (any, error)
}

func newParam(in ParamLocation, name string, paramType ParamType, required []bool) Param {
	return Param{
		in:        in,
		name:      name,
		paramType: paramType,
		required:  len(required) > 0 && required[0],
	}
}

func NewQueryParam(name string, paramType ParamType, required ...bool) Param {
	return newParam(InQuery, name, paramType, required)
}

func NewPathParam(name string, paramType ParamType, required ...bool) Param {
	return newParam(InPath, name, paramType, required)
}

func NewHeaderParam(name string, paramType ParamType, required ...bool) Param {
	return newParam(InHeader, name, paramType, required)
}

type ParamErrors []*http_errors.ErrorResponse

func (pe ParamErrors) Error() string {
	var messages []string
	for _, err := range pe {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

func parseAllParams(e *Endpoint, ec *EndpointContext) error {
	ec.ParsedQuery = make(map[string]any)
	ec.ParsedPath = make(map[string]any)
	ec.ParsedHeader = make(map[string]any)

	var paramErrors ParamErrors

	for _, param := range e.Accepts {
		val, err := parseParam(ec, param)
		if err != nil {
			var errResponse *http_errors.ErrorResponse
			if !errors.As(err, &errResponse) {
				errResponse = http_errors.BadRequestError("Invalid parameter", fmt.Sprintf("Parameter %s: %s", param.name, err.Error()))
			}

			paramErrors = append(paramErrors, errResponse)
			continue
		}

		switch param.in {
		case InQuery:
			ec.ParsedQuery[param.name] = val
		case InPath:
			ec.ParsedPath[param.name] = val
		case InHeader:
			ec.ParsedHeader[param.name] = val
		}
	}

	if len(paramErrors) > 0 {
		return paramErrors
	}

	return nil
}

func parseParam(ctx *EndpointContext, param Param) (any, error) {
	if ctx == nil || ctx.EchoCtx == nil {
		return nil, http_errors.BadRequestError("Invalid context", "Endpoint context is required to get path parameters")
	}

	var raw string
	_, queryPresent := ctx.EchoCtx.QueryParams()[param.name]

	switch param.in {
	case InQuery:
		raw = ctx.EchoCtx.QueryParam(param.name)
	case InPath:
		raw = ctx.EchoCtx.Param(param.name)
	case InHeader:
		raw = ctx.EchoCtx.Request().Header.Get(param.name)
	}

	if param.required {
		if (param.in == InQuery && !queryPresent) || (param.in != InQuery && raw == "") {
			return nil, http_errors.BadRequestError("Missing parameter", fmt.Sprintf("Parameter %s is required", param.name))
		}
	}

	if param.Parser != nil {
		val, err := param.Parser(raw)
		if err != nil {
			return nil, http_errors.BadRequestError("Invalid parameter", fmt.Sprintf("Parameter %s is invalid: %s", param.name, err.Error()))
		}

		return val, nil
	}

	if raw == "" {
		// ?flag is equivalent to ?flag=true
		if param.in == InQuery && param.paramType == ParamTypeBool {
			return queryPresent, nil
		}
		return nil, nil
	}

	switch param.paramType {
	case ParamTypeString:
		return raw, nil
	case ParamTypeInt:
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, http_errors.BadRequestError("Invalid parameter", "Parameter "+param.name+" must be an integer")
		}

		return value, nil
	case ParamTypeBool:
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, http_errors.BadRequestError("Invalid parameter", "Parameter "+param.name+" must be a boolean")
		}
		return value, nil
	case ParamTypeFloat:
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, http_errors.BadRequestError("Invalid parameter", "Parameter "+param.name+" must be a float")
		}

		return value, nil
	case ParamTypeDate:
		value, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, http_errors.BadRequestError("Invalid parameter", "Parameter "+param.name+" must be a date in the format YYYY-MM-DD")
		}
		return value, nil
	case ParamTypeDateTime:
		value, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, http_errors.BadRequestError("Invalid parameter", "Parameter "+param.name+" must be a datetime in the format YYYY-MM-DDTHH:MM:SSZ")
		}
		return value, nil
	case ParamTypeObjectID:
		oid, err := bson.ObjectIDFromHex(raw)
		if err != nil {
			return nil, http_errors.BadRequestError("Invalid parameter", "Parameter "+param.name+" must be a valid ObjectID")
		}
		return oid, nil
	default:
		return nil, http_errors.BadRequestError("Invalid parameter type", "Parameter "+param.name+" has an invalid type")
	}
}

func getFriendlyValidationErrors(err error) map[string]string {
	friendlyErrors := map[string]string{}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		friendlyErrors["error"] = err.Error()
		return friendlyErrors
	}

	for _, e := range ve {
		message := getErrorMessage(e.Tag(), e.Kind().String(), e.Param())
		if message == "" {
			message = "This field is invalid"
		}
		friendlyErrors[e.Field()] = message
	}
	return friendlyErrors
}

func getErrorMessage(tag string, kind string, param string) string {
	switch tag {
	case "required":
		return "This field is required"
	case "max":
		if kind == "string" || kind == "slice" || kind == "array" {
			return "This field must have a maximum length of " + param
		}
		return "This field must be less than " + param
	case "min":
		if kind == "string" || kind == "slice" || kind == "array" {
			return "This field must have a minimum length of " + param
		}
		return "This field must be greater than " + param
	case "eq":
		return "This field must be equal to " + param
	case "lt":
		return "This field must be less than " + param
	case "lte":
		return "This field must be less than or equal to " + param
	case "gt":
		return "This field must be greater than " + param
	case "gte":
		return "This field must be greater than or equal to " + param
	case "ne", "ne_ignore_case":
		return "This field must not be equal to " + param
	case "email":
		return "This field must be a valid email"
	case "e164":
		return "This field must be a phone number in international format"
	case "numeric":
		return "This field must contain only digits"
	case "len":
		return "This field must have a length of " + param
	case "oneof":
		return "This field must be one of: " + param
	default:
		return ""
	}
}
