package handlers

import (
	"github.com/chronicle-audit/backend/internal/auth"
	"github.com/chronicle-audit/backend/internal/config"
	"github.com/chronicle-audit/backend/internal/http/dto"
	"github.com/chronicle-audit/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

// IssueToken exchanges a configured service key for an actor JWT. The admin
// role is only granted to actors listed in ADMIN_ACTOR_IDS.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	if !h.validKey(req.ServiceKey) {
		h.log.Warn("token request with unknown service key")
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid service key"})
	}

	var actorID uuid.UUID
	if req.ActorID != "" {
		id, err := uuid.Parse(req.ActorID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid actor id"})
		}
		actorID = id
	}

	role := req.Role
	switch role {
	case "":
		role = rbac.RoleService
	case rbac.RoleService, rbac.RoleViewer:
	case rbac.RoleAdmin:
		if !h.cfg.IsAdminActor(req.ActorID) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "actor is not an admin"})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unknown role"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, actorID, role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to sign token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.TokenResponse{Token: token, Role: role})
}

func (h *AuthHandler) validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, k := range h.cfg.ServiceKeys {
		if k == key {
			return true
		}
	}
	return false
}
