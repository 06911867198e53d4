package services

import (
	"github.com/geocoder89/learnhub/internal/domain/module"
	"github.com/geocoder89/learnhub/internal/domain/user"
)

// CanMutate is the single authorization rule for changing a module: admins
// may change any module, anyone else only the modules they created.
func CanMutate(m module.Module, userID, role string) bool {
	if role == user.RoleAdmin {
		return true
	}
	return userID != "" && m.CreatedBy.ID == userID
}
