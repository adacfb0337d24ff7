package auth

import "slices"

// Requirement is the access rule declared by a route. An empty Roles slice
// admits any authenticated principal; a nil AccountTypes slice means the account
// type is not checked.
type Requirement struct {
	Roles        []Role
	AccountTypes []AccountType
}

type Decision struct {
	Allow  bool        `json:"allow"`
	Reason FailureKind `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allow: true}
}

func deny(reason FailureKind) Decision {
	return Decision{Reason: reason}
}

// Authorize decides whether principal may perform an action guarded by req.
// It has no side effects.
func Authorize(principal *Principal, req Requirement) Decision {
	if principal == nil {
		return deny(MissingToken)
	}
	if principal.Blocked() {
		return deny(AccountBlocked)
	}

	if len(req.Roles) > 0 && !slices.ContainsFunc(req.Roles, principal.Role.Satisfies) {
		return deny(InsufficientRole)
	}

	if req.AccountTypes != nil && !slices.Contains(req.AccountTypes, principal.AccountType) {
		return deny(WrongAccountType)
	}

	return allow()
}
