package rest

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/xompass/storefront-rest/http_errors"
	"golang.org/x/text/unicode/norm"
)

const maxBodyBytes = 1 << 20

const (
	tagNormalize = "normalize"
	tagSanitize  = "sanitize"
)

// Validable bodies validate themselves instead of going through validate tags.
type Validable interface {
	Validate(ctx *EndpointContext) error
}

// Sanitizeable bodies replace the sanitize tags with their own logic.
type Sanitizeable interface {
	Sanitize(ctx *EndpointContext) error
}

// Normalizeable bodies replace the normalize tags with their own logic.
type Normalizeable interface {
	Normalize(ctx *EndpointContext) error
}

// FieldProcessor rewrites the value of a string field.
type FieldProcessor func(string) string

var (
	htmlPolicy  = bluemonday.UGCPolicy()
	stripPolicy = bluemonday.StrictPolicy()

	processorsMu sync.RWMutex
	processors   = map[string]map[string]FieldProcessor{
		tagNormalize: {
			"trim":      strings.TrimSpace,
			"lowercase": strings.ToLower,
			"uppercase": strings.ToUpper,
			"unaccent":  removeDiacritics,
			"unicode":   norm.NFC.String,
			"phone":     normalizePhone,
		},
		tagSanitize: {
			"html":         htmlPolicy.Sanitize,
			"strip":        stripPolicy.Sanitize,
			"alphanumeric": keepRunes(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }),
			"numeric":      keepRunes(unicode.IsDigit),
		},
	}

	// plans caches the processing plan per struct type and tag key.
	plans sync.Map
)

func RegisterNormalizer(name string, fn FieldProcessor) error {
	return registerProcessor(tagNormalize, name, fn)
}

func RegisterSanitizer(name string, fn FieldProcessor) error {
	return registerProcessor(tagSanitize, name, fn)
}

func registerProcessor(tag string, name string, fn FieldProcessor) error {
	if fn == nil {
		return fmt.Errorf("%s processor %q cannot be nil", tag, name)
	}

	processorsMu.Lock()
	defer processorsMu.Unlock()

	if _, exists := processors[tag][name]; exists {
		return fmt.Errorf("%s processor %q already exists", tag, name)
	}
	processors[tag][name] = fn
	return nil
}

func lookupProcessor(tag string, name string) (FieldProcessor, bool) {
	processorsMu.RLock()
	defer processorsMu.RUnlock()
	fn, ok := processors[tag][name]
	return fn, ok
}

func keepRunes(keep func(rune) bool) FieldProcessor {
	return func(s string) string {
		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			if keep(r) {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
}

func removeDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// normalizePhone keeps the digits of a phone number and a leading "+".
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	digits := keepRunes(unicode.IsDigit)(s)
	if strings.HasPrefix(s, "+") && digits != "" {
		return "+" + digits
	}
	return digits
}

type fieldPlan struct {
	index  int
	name   string
	funcs  []FieldProcessor
	dive   bool // apply to each element of a slice
	nested bool // struct or pointer to struct
}

func buildPlan(t reflect.Type, tag string) ([]fieldPlan, error) {
	var plan []fieldPlan
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		ft := sf.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			plan = append(plan, fieldPlan{index: i, name: sf.Name, nested: true})
			continue
		}

		raw := sf.Tag.Get(tag)
		if raw == "" {
			continue
		}

		fp := fieldPlan{index: i, name: sf.Name}
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			switch name {
			case "":
				continue
			case "dive":
				fp.dive = true
				continue
			}
			fn, ok := lookupProcessor(tag, name)
			if !ok {
				return nil, fmt.Errorf("field %s: unknown %s processor %q", sf.Name, tag, name)
			}
			fp.funcs = append(fp.funcs, fn)
		}

		if fp.dive && ft.Kind() != reflect.Slice && ft.Kind() != reflect.Array {
			return nil, fmt.Errorf("field %s is marked with 'dive' but is not a slice", sf.Name)
		}
		plan = append(plan, fp)
	}
	return plan, nil
}

type planKey struct {
	t   reflect.Type
	tag string
}

func planFor(t reflect.Type, tag string) ([]fieldPlan, error) {
	key := planKey{t: t, tag: tag}
	if cached, ok := plans.Load(key); ok {
		return cached.([]fieldPlan), nil
	}
	plan, err := buildPlan(t, tag)
	if err != nil {
		return nil, err
	}
	plans.Store(key, plan)
	return plan, nil
}

// processStruct applies the processors named in the given struct tag to every
// string field of v, descending into nested structs. v must be a non-nil
// pointer to a struct.
func processStruct(v any, tag string) error {
	if _, ok := processors[tag]; !ok {
		return errors.New("invalid operator: " + tag)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("expected a non-nil pointer to a struct")
	}
	return processValue(rv.Elem(), tag)
}

func processValue(rv reflect.Value, tag string) error {
	if rv.Kind() != reflect.Struct {
		return errors.New("expected a struct, got: " + rv.Kind().String())
	}

	plan, err := planFor(rv.Type(), tag)
	if err != nil {
		return err
	}

	for _, fp := range plan {
		fv := rv.Field(fp.index)
		if fp.nested {
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if err := processValue(fv, tag); err != nil {
				return fmt.Errorf("field %s: %w", fp.name, err)
			}
			continue
		}

		if fp.dive {
			for i := 0; i < fv.Len(); i++ {
				applyProcessors(fv.Index(i), fp.funcs)
			}
			continue
		}
		applyProcessors(fv, fp.funcs)
	}
	return nil
}

func applyProcessors(v reflect.Value, funcs []FieldProcessor) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.String || !v.CanSet() {
		return
	}
	s := v.String()
	for _, fn := range funcs {
		s = fn(s)
	}
	v.SetString(s)
}

func hasValidateTags(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("validate") != "" {
			return true
		}
	}
	return false
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	return mediaType == echo.MIMEApplicationJSON || strings.HasSuffix(mediaType, "+json")
}

// parseBody decodes the JSON request body into the endpoint's body type, then
// sanitizes, normalizes and validates it.
func parseBody(e *Endpoint, ec *EndpointContext) error {
	if !slices.Contains([]EndpointMethod{MethodPOST, MethodPUT, MethodPATCH}, e.Method) || e.BodyParams == nil {
		return nil
	}

	form := e.BodyParams()
	if form == nil {
		return http_errors.BadRequestError("Request body cannot be nil")
	}

	req := ec.EchoCtx.Request()
	if !isJSONContentType(req.Header.Get(echo.HeaderContentType)) {
		return http_errors.NewErrorResponseWithCode(415, "UNSUPPORTED_MEDIA_TYPE", "Request body must be JSON")
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
	if err != nil {
		return http_errors.BadRequestError("Failed to read request body", err.Error())
	}
	if len(data) > maxBodyBytes {
		return http_errors.NewErrorResponseWithCode(413, "BODY_TOO_LARGE", "Request body is too large")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return http_errors.BadRequestError("Request body is required")
	}

	if err := sonic.Unmarshal(data, form); err != nil {
		ec.App.Debugf("cannot bind body for %s: %v", e.Name, err)
		return http_errors.BadRequestError("Failed to bind request body", fmt.Sprintf("Failed to bind request body: %s", err.Error()))
	}

	if err := sanitizeBody(ec, form); err != nil {
		return asBadRequest(err, "Failed to sanitize request body")
	}
	if err := normalizeBody(ec, form); err != nil {
		return asBadRequest(err, "Failed to normalize request body")
	}

	if v, ok := form.(Validable); ok {
		if err := v.Validate(ec); err != nil {
			return asBadRequest(err, "Failed to validate request body")
		}
	} else if hasValidateTags(reflect.TypeOf(form)) {
		if err := ec.ValidateStruct(form); err != nil {
			return asBadRequest(err, "Failed to validate request body")
		}
	}

	ec.ParsedBody = form
	return nil
}

func sanitizeBody(ec *EndpointContext, v any) error {
	if s, ok := v.(Sanitizeable); ok {
		return s.Sanitize(ec)
	}
	return ec.SanitizeStruct(v)
}

func normalizeBody(ec *EndpointContext, v any) error {
	if n, ok := v.(Normalizeable); ok {
		return n.Normalize(ec)
	}
	return ec.NormalizeStruct(v)
}

func asBadRequest(err error, message string) error {
	var errResponse *http_errors.ErrorResponse
	if errors.As(err, &errResponse) {
		return errResponse
	}
	return http_errors.BadRequestError(message, getFriendlyValidationErrors(err))
}
