package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/learnhub/internal/domain/module"
	"github.com/geocoder89/learnhub/internal/domain/user"
	"github.com/geocoder89/learnhub/internal/http/middlewares"
	"github.com/geocoder89/learnhub/internal/services"
	"github.com/geocoder89/learnhub/internal/utils"
	"github.com/gin-gonic/gin"
)

// ModuleService is satisfied by *services.ModuleService.
type ModuleService interface {
	CreateModule(ctx context.Context, req module.CreateModuleRequest, creatorID string) (module.Module, error)
	GetAllModules(ctx context.Context, filter module.ListFilter) ([]module.Module, error)
	GetModuleByID(ctx context.Context, id string) (module.Module, error)
	UpdateModule(ctx context.Context, id string, req module.UpdateModuleRequest, userID, role string) (module.Module, error)
	DeleteModule(ctx context.Context, id, userID, role string) error
	EnrollInModule(ctx context.Context, moduleID, userID string) (module.Module, error)
	GetEnrolledModules(ctx context.Context, userID string) ([]module.Module, error)
	GetEnrollmentCount(ctx context.Context, moduleID string) (int, error)
}

type ModulesHandler struct {
	svc ModuleService
}

func NewModulesHandler(svc ModuleService) *ModulesHandler {
	return &ModulesHandler{svc: svc}
}

func (h *ModulesHandler) CreateModule(ctx *gin.Context) {
	var req module.CreateModuleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)

	m, err := h.svc.CreateModule(ctx.Request.Context(), req, userID)
	if err != nil {
		h.respondServiceError(ctx, err, "Could not create module")
		return
	}

	ctx.JSON(http.StatusCreated, m)
}

func (h *ModulesHandler) ListModules(ctx *gin.Context) {
	var q module.ListQuery

	if !BindQuery(ctx, &q) {
		return
	}

	filter := q.Filter()

	mods, err := h.svc.GetAllModules(ctx.Request.Context(), filter)
	if err != nil {
		h.respondServiceError(ctx, err, "Could not list modules")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"modules": mods,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}

func (h *ModulesHandler) GetModuleByID(ctx *gin.Context) {
	id, ok := moduleIDParam(ctx)
	if !ok {
		return
	}

	m, err := h.svc.GetModuleByID(ctx.Request.Context(), id)
	if err != nil {
		h.respondServiceError(ctx, err, "Could not fetch module")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, m)
}

func (h *ModulesHandler) UpdateModule(ctx *gin.Context) {
	id, ok := moduleIDParam(ctx)
	if !ok {
		return
	}

	var req module.UpdateModuleRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)
	role, _ := middlewares.RoleFromContext(ctx)

	m, err := h.svc.UpdateModule(ctx.Request.Context(), id, req, userID, role)
	if err != nil {
		h.respondServiceError(ctx, err, "Could not update module")
		return
	}

	ctx.JSON(http.StatusOK, m)
}

func (h *ModulesHandler) DeleteModule(ctx *gin.Context) {
	id, ok := moduleIDParam(ctx)
	if !ok {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)
	role, _ := middlewares.RoleFromContext(ctx)

	if err := h.svc.DeleteModule(ctx.Request.Context(), id, userID, role); err != nil {
		h.respondServiceError(ctx, err, "Could not delete module")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Module deleted"})
}

func (h *ModulesHandler) Enroll(ctx *gin.Context) {
	id, ok := moduleIDParam(ctx)
	if !ok {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)

	m, err := h.svc.EnrollInModule(ctx.Request.Context(), id, userID)
	if err != nil {
		h.respondServiceError(ctx, err, "Could not enroll in module")
		return
	}

	ctx.JSON(http.StatusOK, m)
}

func (h *ModulesHandler) ListEnrolled(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	mods, err := h.svc.GetEnrolledModules(ctx.Request.Context(), userID)
	if err != nil {
		h.respondServiceError(ctx, err, "Could not list enrolled modules")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"modules": mods})
}

func (h *ModulesHandler) EnrollmentCount(ctx *gin.Context) {
	id, ok := moduleIDParam(ctx)
	if !ok {
		return
	}

	n, err := h.svc.GetEnrollmentCount(ctx.Request.Context(), id)
	if err != nil {
		h.respondServiceError(ctx, err, "Could not count enrollments")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"enrolledUsers": n})
}

// moduleIDParam treats a malformed id like an unknown one.
func moduleIDParam(ctx *gin.Context) (string, bool) {
	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondNotFound(ctx, "Module not found")
		return "", false
	}
	return id, true
}

func (h *ModulesHandler) respondServiceError(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		RespondNotFound(ctx, "Module not found")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, services.ErrForbidden):
		RespondForbidden(ctx, "Not authorized to modify this module")
	default:
		RespondInternal(ctx, fallback, err)
	}
}
