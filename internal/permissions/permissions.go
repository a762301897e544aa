package permissions

import (
	"slices"

	"github.com/bwmarrin/discordgo"

	"guildwarden/internal/moderation"
)

const moderatorBits = discordgo.PermissionAdministrator |
	discordgo.PermissionKickMembers |
	discordgo.PermissionBanMembers |
	discordgo.PermissionManageMessages

// IsModerator reports whether a member may run moderation commands.
func IsModerator(perms int64, roles []string, policy moderation.Policy) bool {
	if perms&moderatorBits != 0 {
		return true
	}
	return hasAny(roles, policy.ModeratorRoleIDs) || hasAny(roles, policy.AdminRoleIDs)
}

func IsAdmin(perms int64, roles []string, policy moderation.Policy) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return hasAny(roles, policy.AdminRoleIDs)
}

func hasAny(roles, allowed []string) bool {
	for _, role := range roles {
		if slices.Contains(allowed, role) {
			return true
		}
	}
	return false
}
