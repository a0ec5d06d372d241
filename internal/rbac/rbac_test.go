package rbac

import (
	"testing"

	"github.com/tradegate/tradegate/internal/model"
)

func TestHasRouteAccess(t *testing.T) {
	cases := []struct {
		role model.Role
		path string
		want bool
	}{
		// Public prefixes pass for everyone, even an empty role.
		{"", "/health", true},
		{"", "/api/v1/auth/login", true},
		{"", "/api/v1/auth/admin/login", true},
		{"", "/ws", true},
		{model.RoleCustomer, "/ready", true},

		// Admin bucket
		{model.RoleSuperAdmin, "/api/v1/admin/audit", true},
		{model.RoleSecurityAdmin, "/api/v1/admin/security/unblock-ip", true},
		{model.RoleFinanceAdmin, "/api/v1/admin/audit", true},
		{model.RoleCustomer, "/api/v1/admin/audit", false},
		{model.RoleSeller, "/api/v1/admin/audit", false},

		// Seller bucket
		{model.RoleSeller, "/api/v1/seller/products", true},
		{model.RoleCustomer, "/api/v1/seller/products", false},
		{model.RoleSuperAdmin, "/api/v1/seller/products", false},

		// Authenticated bucket
		{model.RoleCustomer, "/api/v1/account/me", true},
		{model.RoleSuperAdmin, "/api/v1/account/me", true},

		// Unmapped prefix
		{model.RoleSuperAdmin, "/api/v2/other", false},
	}
	for _, tc := range cases {
		if got := HasRouteAccess(tc.role, tc.path); got != tc.want {
			t.Errorf("HasRouteAccess(%s, %s) = %v, want %v", tc.role, tc.path, got, tc.want)
		}
	}
}

func TestHasResourcePermission(t *testing.T) {
	cases := []struct {
		role     model.Role
		resource string
		want     bool
	}{
		{model.RoleSeller, "products", true},
		{model.RoleCustomer, "products", false},
		{model.RoleCustomer, "orders", true},
		{model.RoleFinanceAdmin, "payments", true},
		{model.RoleOperationsAdmin, "payments", false},
		{model.RoleSecurityAdmin, "audit", true},
		{model.RoleFinanceAdmin, "audit", false},
		{model.RoleSuperAdmin, "security", true},
		{model.RoleSeller, "unknown", false},
	}
	for _, tc := range cases {
		if got := HasResourcePermission(tc.role, tc.resource); got != tc.want {
			t.Errorf("HasResourcePermission(%s, %s) = %v, want %v", tc.role, tc.resource, got, tc.want)
		}
	}
}

func TestHasActionPermission(t *testing.T) {
	cases := []struct {
		role   model.Role
		action string
		want   bool
	}{
		{model.RoleSuperAdmin, PermManagePlatform, true},
		{model.RoleSecurityAdmin, PermManagePlatform, false},
		{model.RoleSecurityAdmin, PermManageSecurity, true},
		{model.RoleFinanceAdmin, PermManageFinances, true},
		{model.RoleFinanceAdmin, PermManageSecurity, false},
		{model.RoleSeller, PermManageProducts, true},
		{model.RoleCustomer, PermViewAnalytics, false},
		{model.RoleOperationsAdmin, PermViewAnalytics, true},
	}
	for _, tc := range cases {
		if got := HasActionPermission(tc.role, tc.action); got != tc.want {
			t.Errorf("HasActionPermission(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestCanAccessOwnedData(t *testing.T) {
	cases := []struct {
		name     string
		actorID  string
		role     model.Role
		ownerID  string
		dataType string
		want     bool
	}{
		{"owner always", "acc_1", model.RoleCustomer, "acc_1", "orders", true},
		{"customer other", "acc_1", model.RoleCustomer, "acc_2", "orders", false},
		{"seller other", "acc_1", model.RoleSeller, "acc_2", "products", false},
		{"super wildcard", "adm_1", model.RoleSuperAdmin, "acc_2", "anything", true},
		{"security sessions", "adm_1", model.RoleSecurityAdmin, "acc_2", "sessions", true},
		{"security payments", "adm_1", model.RoleSecurityAdmin, "acc_2", "payments", false},
		{"finance payments", "adm_1", model.RoleFinanceAdmin, "acc_2", "payments", true},
		{"ops orders", "adm_1", model.RoleOperationsAdmin, "acc_2", "orders", true},
		{"ops audit", "adm_1", model.RoleOperationsAdmin, "acc_2", "audit", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAccessOwnedData(tc.actorID, tc.role, tc.ownerID, tc.dataType); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanJoinChannel(t *testing.T) {
	cases := []struct {
		role    model.Role
		channel string
		want    bool
	}{
		{model.RoleSuperAdmin, ChannelAdminSecurity, true},
		{model.RoleSuperAdmin, ChannelAdminFinances, true},
		{model.RoleSuperAdmin, ChannelAdminOperations, true},
		{model.RoleSecurityAdmin, ChannelAdminSecurity, true},
		{model.RoleSecurityAdmin, ChannelAdminFinances, false},
		{model.RoleFinanceAdmin, ChannelAdminFinances, true},
		{model.RoleFinanceAdmin, ChannelAdminOperations, false},
		{model.RoleOperationsAdmin, ChannelAdminOperations, true},
		{model.RoleCustomer, ChannelAdminSecurity, false},
		// The shared admin channel is never explicitly subscribable.
		{model.RoleSuperAdmin, ChannelAdmin, false},
		{model.RoleCustomer, "made-up", false},
	}
	for _, tc := range cases {
		if got := CanJoinChannel(tc.role, tc.channel); got != tc.want {
			t.Errorf("CanJoinChannel(%s, %s) = %v, want %v", tc.role, tc.channel, got, tc.want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	snap := Snapshot(model.RoleFinanceAdmin)
	if snap.Role != model.RoleFinanceAdmin {
		t.Errorf("role = %s", snap.Role)
	}

	hasResource := func(name string) bool {
		for _, r := range snap.Resources {
			if r == name {
				return true
			}
		}
		return false
	}
	if !hasResource("payments") || !hasResource("orders") {
		t.Errorf("resources = %v, want payments and orders", snap.Resources)
	}
	if hasResource("security") {
		t.Errorf("finance admin must not hold security, got %v", snap.Resources)
	}

	hasAction := func(name string) bool {
		for _, a := range snap.Actions {
			if a == name {
				return true
			}
		}
		return false
	}
	if !hasAction(PermManageFinances) || hasAction(PermManagePlatform) {
		t.Errorf("actions = %v", snap.Actions)
	}
}
