package module

import (
	"time"

	"github.com/google/uuid"
)

func NewFromCreateRequest(req CreateModuleRequest, creatorID string) Module {
	now := time.Now().UTC()

	return Module{
		ID:            uuid.NewString(),
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		EstimatedTime: req.EstimatedTime,
		CreatedBy:     Ref{ID: creatorID},
		EnrolledUsers: []Ref{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
