package utils

import (
	"net/http"
	"slices"

	"petpet/globals"
)

func GetUserIDFromRequest(r *http.Request) string {
	userID, ok := r.Context().Value(globals.UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func GetUsernameFromRequest(r *http.Request) string {
	name, _ := r.Context().Value(globals.UsernameKey).(string)
	return name
}

func GetRolesFromRequest(r *http.Request) []string {
	roles, _ := r.Context().Value(globals.RoleKey).([]string)
	return roles
}

func IsAdmin(r *http.Request) bool {
	return slices.Contains(GetRolesFromRequest(r), globals.RoleAdmin)
}
