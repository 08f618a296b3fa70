package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermIncidentsReport    Permission = "incidents.report"
	PermIncidentsView      Permission = "incidents.view"
	PermIncidentsVerify    Permission = "incidents.verify"
	PermIncidentsManage    Permission = "incidents.manage"
	PermMissionsDispatch   Permission = "missions.dispatch"
	PermMissionsAdvance    Permission = "missions.advance"
	PermMissionsView       Permission = "missions.view"
	PermApplicationsApply  Permission = "applications.apply"
	PermApplicationsReview Permission = "applications.review"
	PermProfilesManageOwn  Permission = "profiles.manage_own"
	PermProfilesView       Permission = "profiles.view"
	PermAuditView          Permission = "audit.view"
)

const casbinModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

type Role struct {
	Name        string
	Permissions []Permission
}

// Policy answers role -> permission questions. It is static for the process
// lifetime; grants are loaded once at construction.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if _, err := e.AddPolicy(role.Name, string(perm)); err != nil {
				return nil, fmt.Errorf("rbac add policy %s/%s: %w", role.Name, perm, err)
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

// DefaultPolicy encodes the built-in role grants.
func DefaultPolicy() (*Policy, error) {
	return NewPolicy([]Role{
		{Name: "CIVILIAN", Permissions: []Permission{
			PermIncidentsReport, PermIncidentsView, PermApplicationsApply,
			PermProfilesManageOwn,
		}},
		{Name: "VOLUNTEER", Permissions: []Permission{
			PermIncidentsReport, PermIncidentsView, PermIncidentsVerify,
			PermMissionsView, PermMissionsAdvance, PermApplicationsApply,
			PermProfilesView,
		}},
		{Name: "ADMIN", Permissions: []Permission{
			PermIncidentsReport, PermIncidentsView, PermIncidentsVerify, PermIncidentsManage,
			PermMissionsDispatch, PermMissionsAdvance, PermMissionsView,
			PermApplicationsApply, PermApplicationsReview, PermProfilesView, PermAuditView,
		}},
	})
}

func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}
