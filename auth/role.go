package auth

import "slices"

type Role string

const (
	RoleUser       Role = "user"
	RoleTempAdmin  Role = "tempAdmin"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

// RoleName satisfies rest.EndpointRole.
func (r Role) RoleName() string {
	return string(r)
}

// roleImplies lists, for every known role, the roles whose actions it can perform
// (itself included). A role missing from this table satisfies nothing, so a new
// role must be added here before it grants access anywhere.
var roleImplies = map[Role][]Role{
	RoleSuperAdmin: {RoleSuperAdmin, RoleAdmin, RoleTempAdmin, RoleUser},
	RoleAdmin:      {RoleAdmin, RoleTempAdmin, RoleUser},
	RoleTempAdmin:  {RoleTempAdmin, RoleUser},
	RoleUser:       {RoleUser},
}

func (r Role) Valid() bool {
	_, ok := roleImplies[r]
	return ok
}

// Satisfies reports whether r can perform the actions of required.
func (r Role) Satisfies(required Role) bool {
	return slices.Contains(roleImplies[r], required)
}

func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

type AccountType string

const (
	AccountIndividual AccountType = "Individual"
	AccountCorporate  AccountType = "Corporate"
	AccountAdmin      AccountType = "Admin"
	AccountSuperAdmin AccountType = "SuperAdmin"
)

var accountTypes = []AccountType{AccountIndividual, AccountCorporate, AccountAdmin, AccountSuperAdmin}

func (a AccountType) Valid() bool {
	return slices.Contains(accountTypes, a)
}

func ParseAccountType(s string) (AccountType, bool) {
	a := AccountType(s)
	return a, a.Valid()
}

type Status string

const (
	StatusActive  Status = "Active"
	StatusBlocked Status = "Blocked"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusBlocked
}
