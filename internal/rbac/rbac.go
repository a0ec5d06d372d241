// Package rbac holds the static role/permission matrix. Tables are closed
// mappings fixed at compile time; callers get set-membership predicates,
// never the raw tables.
package rbac

import (
	"strings"

	"github.com/tradegate/tradegate/internal/model"
)

// Permission strings granted to accounts and checked by route guards.
const (
	PermManageUsers    = "MANAGE_USERS"
	PermManageOrders   = "MANAGE_ORDERS"
	PermManageProducts = "MANAGE_PRODUCTS"
	PermManageFinances = "MANAGE_FINANCES"
	PermManageSecurity = "MANAGE_SECURITY"
	PermViewAnalytics  = "VIEW_ANALYTICS"
	PermManagePlatform = "MANAGE_PLATFORM"
)

// resourceRoles maps resource names to the roles allowed to touch them.
var resourceRoles = map[string]map[model.Role]bool{
	"products": {
		model.RoleSeller: true, model.RoleOperationsAdmin: true, model.RoleSuperAdmin: true,
	},
	"orders": {
		model.RoleCustomer: true, model.RoleSeller: true,
		model.RoleOperationsAdmin: true, model.RoleFinanceAdmin: true, model.RoleSuperAdmin: true,
	},
	"payments": {
		model.RoleFinanceAdmin: true, model.RoleSuperAdmin: true,
	},
	"accounts": {
		model.RoleSecurityAdmin: true, model.RoleSuperAdmin: true,
	},
	"audit": {
		model.RoleSecurityAdmin: true, model.RoleSuperAdmin: true,
	},
	"security": {
		model.RoleSecurityAdmin: true, model.RoleSuperAdmin: true,
	},
	"analytics": {
		model.RoleOperationsAdmin: true, model.RoleFinanceAdmin: true,
		model.RoleSecurityAdmin: true, model.RoleSuperAdmin: true,
	},
}

// actionRoles maps action names to the roles that hold them implicitly.
// Accounts may additionally carry any action as an explicit permission
// string; guards OR the two.
var actionRoles = map[string]map[model.Role]bool{
	PermManageUsers:    {model.RoleSecurityAdmin: true, model.RoleSuperAdmin: true},
	PermManageOrders:   {model.RoleOperationsAdmin: true, model.RoleSuperAdmin: true},
	PermManageProducts: {model.RoleSeller: true, model.RoleOperationsAdmin: true, model.RoleSuperAdmin: true},
	PermManageFinances: {model.RoleFinanceAdmin: true, model.RoleSuperAdmin: true},
	PermManageSecurity: {model.RoleSecurityAdmin: true, model.RoleSuperAdmin: true},
	PermViewAnalytics: {
		model.RoleOperationsAdmin: true, model.RoleFinanceAdmin: true,
		model.RoleSecurityAdmin: true, model.RoleSuperAdmin: true,
	},
	PermManagePlatform: {model.RoleSuperAdmin: true},
}

// publicRoutePrefixes are always allowed, authenticated or not.
var publicRoutePrefixes = []string{
	"/health",
	"/ready",
	"/api/v1/auth/login",
	"/api/v1/auth/admin/login",
	"/api/v1/auth/2fa/verify",
	"/ws",
}

// routeBucket is a coarse route grouping. All four admin roles share the
// admin bucket; finer resource/action checks differentiate within it.
type routeBucket string

const (
	bucketAdmin  routeBucket = "admin"
	bucketSeller routeBucket = "seller"
	bucketAny    routeBucket = "authenticated"
)

var routeBuckets = map[string]routeBucket{
	"/api/v1/admin":   bucketAdmin,
	"/api/v1/seller":  bucketSeller,
	"/api/v1/auth":    bucketAny,
	"/api/v1/account": bucketAny,
}

func bucketsFor(role model.Role) map[routeBucket]bool {
	buckets := map[routeBucket]bool{bucketAny: true}
	if model.IsAdminRole(role) {
		buckets[bucketAdmin] = true
	}
	if role == model.RoleSeller {
		buckets[bucketSeller] = true
	}
	return buckets
}

// dataTypeAllowlist controls which data types each admin role may read on
// accounts it does not own. "*" is the wildcard.
var dataTypeAllowlist = map[model.Role]map[string]bool{
	model.RoleSuperAdmin:      {"*": true},
	model.RoleSecurityAdmin:   {"sessions": true, "audit": true, "security": true},
	model.RoleOperationsAdmin: {"orders": true, "products": true},
	model.RoleFinanceAdmin:    {"payments": true, "orders": true},
}

// HasResourcePermission reports whether the role may access the resource.
func HasResourcePermission(role model.Role, resource string) bool {
	return resourceRoles[resource][role]
}

// HasActionPermission reports whether the role implicitly holds the action.
func HasActionPermission(role model.Role, action string) bool {
	return actionRoles[action][role]
}

// HasRouteAccess reports whether the role may reach the route. Public
// prefixes always pass; otherwise the longest matching bucket prefix must
// belong to one of the role's buckets.
func HasRouteAccess(role model.Role, routePath string) bool {
	for _, prefix := range publicRoutePrefixes {
		if strings.HasPrefix(routePath, prefix) {
			return true
		}
	}

	var matched routeBucket
	matchedLen := -1
	for prefix, bucket := range routeBuckets {
		if strings.HasPrefix(routePath, prefix) && len(prefix) > matchedLen {
			matched = bucket
			matchedLen = len(prefix)
		}
	}
	if matchedLen < 0 {
		return false
	}
	return bucketsFor(role)[matched]
}

// CanAccessOwnedData reports whether the actor may read data owned by
// ownerID. Owners always may; admins may when their allowlist covers the
// data type or carries the wildcard.
func CanAccessOwnedData(actorID string, actorRole model.Role, ownerID, dataType string) bool {
	if actorID == ownerID {
		return true
	}
	if !model.IsAdminRole(actorRole) {
		return false
	}
	allow := dataTypeAllowlist[actorRole]
	return allow["*"] || allow[dataType]
}

// PermissionSnapshot is the resolved permission view for a role, computed
// on demand from the static tables.
type PermissionSnapshot struct {
	Role          model.Role `json:"role"`
	Resources     []string   `json:"resources"`
	Actions       []string   `json:"actions"`
	RoutePrefixes []string   `json:"routePrefixes"`
}

// Snapshot resolves the full permission set for a role.
func Snapshot(role model.Role) PermissionSnapshot {
	snap := PermissionSnapshot{Role: role}
	for resource, roles := range resourceRoles {
		if roles[role] {
			snap.Resources = append(snap.Resources, resource)
		}
	}
	for action, roles := range actionRoles {
		if roles[role] {
			snap.Actions = append(snap.Actions, action)
		}
	}
	buckets := bucketsFor(role)
	for prefix, bucket := range routeBuckets {
		if buckets[bucket] {
			snap.RoutePrefixes = append(snap.RoutePrefixes, prefix)
		}
	}
	return snap
}
