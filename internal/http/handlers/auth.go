package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/learnhub/internal/domain/user"
	"github.com/geocoder89/learnhub/internal/services"
	"github.com/gin-gonic/gin"
)

// AuthService is satisfied by *services.AuthService.
type AuthService interface {
	Register(ctx context.Context, email, password string) (user.PublicUser, error)
	Login(ctx context.Context, email, password string) (services.LoginResult, error)
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.svc.Register(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateAccount) {
			RespondError(ctx, http.StatusBadRequest, "email_taken", "User already exists", nil)
			return
		}
		if errors.Is(err, services.ErrPasswordTooLong) {
			RespondBadRequest(ctx, "Password must be at most 72 bytes", nil)
			return
		}

		RespondInternal(ctx, "Could not create user", err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"user": u})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.svc.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			RespondError(ctx, http.StatusBadRequest, "invalid_credentials", "Invalid email or password", nil)
			return
		}

		RespondInternal(ctx, "Could not log in", err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}
