package rbac

import "github.com/tradegate/tradegate/internal/model"

// Realtime channel names. Per-identity channels are derived from the
// account ID and are not listed here.
const (
	ChannelAdmin           = "admin"
	ChannelAdminSecurity   = "admin-security"
	ChannelAdminFinances   = "admin-finances"
	ChannelAdminOperations = "admin-operations"
)

// channelRoles gates explicit channel subscriptions by role. The shared
// admin channel is joined automatically, never subscribed to.
var channelRoles = map[string]map[model.Role]bool{
	ChannelAdminSecurity: {
		model.RoleSuperAdmin: true, model.RoleSecurityAdmin: true,
	},
	ChannelAdminFinances: {
		model.RoleSuperAdmin: true, model.RoleFinanceAdmin: true,
	},
	ChannelAdminOperations: {
		model.RoleSuperAdmin: true, model.RoleOperationsAdmin: true,
	},
}

// CanJoinChannel reports whether the role may subscribe to the channel.
func CanJoinChannel(role model.Role, channel string) bool {
	return channelRoles[channel][role]
}
