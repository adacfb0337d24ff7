package storefront

import (
	"net/http"

	rest "github.com/xompass/storefront-rest"
	"github.com/xompass/storefront-rest/accounts"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const defaultPageSize = 50

type statusBody struct {
	Status auth.Status `json:"status" validate:"required,oneof=Active Blocked"`
}

type accountTypeBody struct {
	AccountType auth.AccountType `json:"accountType" validate:"required,oneof=Individual Corporate Admin SuperAdmin"`
}

type roleBody struct {
	Role auth.Role `json:"role" validate:"required,oneof=user tempAdmin admin SuperAdmin"`
}

func intQuery(c *rest.EndpointContext, name string, fallback int) int {
	if v, ok := c.QueryParam(name).(int); ok {
		return v
	}
	return fallback
}

// outranks reports whether role can manage accounts holding target: it must
// satisfy target without being the same role.
func outranks(role, target auth.Role) bool {
	return role != target && role.Satisfies(target)
}

// targetUser returns the hex id in the path. The caller's own account and
// accounts of equal or higher role are refused.
func (a *API) targetUser(c *rest.EndpointContext) (string, error) {
	oid, ok := c.PathParam("id").(bson.ObjectID)
	if !ok {
		return "", http_errors.BadRequestError("Invalid parameter", "Parameter id must be a valid ObjectID")
	}
	id := oid.Hex()
	if id == c.Principal.SubjectID {
		return "", http_errors.ConflictErrorWithCode("CANNOT_MODIFY_SELF", "Admins cannot change their own account")
	}

	target, err := a.users.FindByID(c.Context(), id)
	if err != nil {
		return "", userError(err)
	}
	if !outranks(c.Principal.Role, target.Role) {
		c.App.Warnf("%s %s tried to modify %s %s", c.Principal.Role, c.Principal.SubjectID, target.Role, id)
		return "", http_errors.ForbiddenErrorWithCode(string(auth.InsufficientRole), auth.InsufficientRole.Error())
	}
	return id, nil
}

func (a *API) listUsers(c *rest.EndpointContext) error {
	limit := intQuery(c, "limit", defaultPageSize)
	skip := intQuery(c, "skip", 0)
	if limit <= 0 || skip < 0 {
		return http_errors.BadRequestErrorWithCode("INVALID_PAGINATION", "limit must be positive and skip not negative")
	}

	users, total, err := a.users.List(c.Context(), int64(limit), int64(skip))
	if err != nil {
		return err
	}

	return c.JSON(rest.Page[accounts.User]{Items: users, Total: total, Limit: int64(limit), Skip: int64(skip)})
}

func (a *API) setStatus(c *rest.EndpointContext) error {
	id, err := a.targetUser(c)
	if err != nil {
		return err
	}
	body := c.ParsedBody.(*statusBody)

	if err := a.users.SetStatus(c.Context(), id, body.Status); err != nil {
		return userError(err)
	}
	return c.RespondAndLog(nil, id, rest.ResponseTypeNoContent, http.StatusNoContent)
}

func (a *API) setAccountType(c *rest.EndpointContext) error {
	id, err := a.targetUser(c)
	if err != nil {
		return err
	}
	body := c.ParsedBody.(*accountTypeBody)

	if err := a.users.SetAccountType(c.Context(), id, body.AccountType); err != nil {
		return userError(err)
	}
	return c.RespondAndLog(nil, id, rest.ResponseTypeNoContent, http.StatusNoContent)
}

func (a *API) setRole(c *rest.EndpointContext) error {
	id, err := a.targetUser(c)
	if err != nil {
		return err
	}
	body := c.ParsedBody.(*roleBody)

	if err := a.users.SetRole(c.Context(), id, body.Role); err != nil {
		return userError(err)
	}
	return c.RespondAndLog(nil, id, rest.ResponseTypeNoContent, http.StatusNoContent)
}
