package module

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("module not found")

// Ref is a populated reference to a user: the id plus the email for display.
type Ref struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type Module struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	EstimatedTime float64   `json:"estimatedTime"`
	CreatedBy     Ref       `json:"createdBy"`
	EnrolledUsers []Ref     `json:"enrolledUsers"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsEnrolled reports whether userID is part of the enrollment set.
func (m Module) IsEnrolled(userID string) bool {
	for _, u := range m.EnrolledUsers {
		if u.ID == userID {
			return true
		}
	}
	return false
}

type CreateModuleRequest struct {
	Title         string  `json:"title" binding:"required,max=200"`
	Description   string  `json:"description" binding:"required,max=5000"`
	Category      string  `json:"category" binding:"required,max=80"`
	EstimatedTime float64 `json:"estimatedTime" binding:"required,gt=0"`
}

// a full replacement payload; enrollment is never changed through this path.
type UpdateModuleRequest struct {
	Title         string  `json:"title" binding:"required,max=200"`
	Description   string  `json:"description" binding:"required,max=5000"`
	Category      string  `json:"category" binding:"required,max=80"`
	EstimatedTime float64 `json:"estimatedTime" binding:"required,gt=0"`
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// with pointers if optional, it will be nil
type ListFilter struct {
	Category *string
	Page     int
	Limit    int
}

func (f ListFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ListQuery is the query-string shape of GET /modules.
type ListQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Category string `form:"category" binding:"omitempty,max=80"`
}

func (q ListQuery) Filter() ListFilter {
	f := ListFilter{Page: q.Page, Limit: q.Limit}

	if f.Page == 0 {
		f.Page = DefaultPage
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if q.Category != "" {
		c := q.Category
		f.Category = &c
	}
	return f
}
