package auth

import (
	"errors"
	"net/http"
)

// FailureKind enumerates every way a request can fail authentication or
// authorization. Kinds are errors themselves so callers can match them with
// errors.Is.
type FailureKind string

const (
	MissingToken      FailureKind = "MissingToken"
	Malformed         FailureKind = "Malformed"
	InvalidSignature  FailureKind = "InvalidSignature"
	Expired           FailureKind = "Expired"
	Revoked           FailureKind = "Revoked"
	AccountBlocked    FailureKind = "AccountBlocked"
	LookupUnavailable FailureKind = "LookupUnavailable"
	InsufficientRole  FailureKind = "InsufficientRole"
	WrongAccountType  FailureKind = "WrongAccountType"
)

var failureMessages = map[FailureKind]string{
	MissingToken:      "authentication required",
	Malformed:         "malformed token",
	InvalidSignature:  "invalid token signature",
	Expired:           "token expired",
	Revoked:           "token revoked",
	AccountBlocked:    "account blocked",
	LookupUnavailable: "account lookup unavailable",
	InsufficientRole:  "insufficient role",
	WrongAccountType:  "account type not allowed",
}

func (k FailureKind) Error() string {
	if msg, ok := failureMessages[k]; ok {
		return msg
	}
	return string(k)
}

// HTTPStatus maps the kind to the status the HTTP boundary must answer with.
// Only policy denials are 403; everything else means the caller is not
// (or no longer) authenticated.
func (k FailureKind) HTTPStatus() int {
	switch k {
	case InsufficientRole, WrongAccountType:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// Failure couples a kind with the underlying cause, if any.
type Failure struct {
	Kind  FailureKind
	Cause error
}

func (f *Failure) Error() string {
	if f.Cause == nil {
		return f.Kind.Error()
	}
	return f.Kind.Error() + ": " + f.Cause.Error()
}

func (f *Failure) Unwrap() []error {
	if f.Cause == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Cause}
}

func fail(kind FailureKind, cause error) *Failure {
	return &Failure{Kind: kind, Cause: cause}
}

// KindOf extracts the failure kind carried by err. The boolean is false when err
// is not an authorization failure at all.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	var k FailureKind
	if errors.As(err, &k) {
		return k, true
	}
	return "", false
}
