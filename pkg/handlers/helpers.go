package handlers

import (
	"net/http"

	"ebe-backend/pkg/database"
	"ebe-backend/pkg/models"
	"ebe-backend/pkg/utils"
)

// ==== helpers: membership/role checks ====
//
// Single capability check shared by every club-scoped handler; the
// waiting-room service performs the same check through its own port.

// requireClubMember 校验成员资格，非成员时写入403并返回 ok=false
func requireClubMember(w http.ResponseWriter, db database.Store, clubID, userID string) (models.ClubRole, bool) {
	role, err := db.GetClubRole(clubID, userID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to resolve membership")
		return models.RoleNone, false
	}
	if role == models.RoleNone {
		utils.WriteForbiddenResponse(w, "Not a member of this club")
		return models.RoleNone, false
	}
	return role, true
}

// requireClubStaff 要求 admin/moderator 角色
func requireClubStaff(w http.ResponseWriter, db database.Store, clubID, userID string) (models.ClubRole, bool) {
	role, ok := requireClubMember(w, db, clubID, userID)
	if !ok {
		return models.RoleNone, false
	}
	if !role.IsPrivileged() {
		utils.WriteForbiddenResponse(w, "Admin or moderator role required")
		return models.RoleNone, false
	}
	return role, true
}

// requireClubAdmin 要求 admin 角色
func requireClubAdmin(w http.ResponseWriter, db database.Store, clubID, userID string) bool {
	role, ok := requireClubMember(w, db, clubID, userID)
	if !ok {
		return false
	}
	if role != models.RoleAdmin {
		utils.WriteForbiddenResponse(w, "Admin role required")
		return false
	}
	return true
}
