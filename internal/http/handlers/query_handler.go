package handlers

import (
	"errors"
	"strconv"

	"github.com/chronicle-audit/backend/internal/audit"
	"github.com/chronicle-audit/backend/internal/http/dto"
	"github.com/chronicle-audit/backend/internal/models"
	"github.com/chronicle-audit/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type QueryHandler struct {
	records *repositories.RecordRepo
	log     *zap.Logger
}

func NewQueryHandler(records *repositories.RecordRepo, log *zap.Logger) *QueryHandler {
	return &QueryHandler{records: records, log: log}
}

// ListByEntity returns an entity's history newest-first.
func (h *QueryHandler) ListByEntity(c *fiber.Ctx) error {
	key := models.EntityKey{
		Namespace:  c.Query("namespace"),
		EntityType: c.Query("entity_type"),
		InstanceID: c.Query("instance_id"),
	}
	if key.Namespace == "" || key.EntityType == "" || key.InstanceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "namespace, entity_type, and instance_id are required"})
	}

	limit, offset := pagination(c)
	recs, err := h.records.ListByEntity(c.Context(), key, limit, offset)
	if err != nil {
		h.log.Error("list by entity failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: recs})
}

// ListByActor returns records attributed to one actor, newest-first.
func (h *QueryHandler) ListByActor(c *fiber.Ctx) error {
	actorID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid actor id"})
	}

	limit, offset := pagination(c)
	recs, err := h.records.ListByActor(c.Context(), actorID, limit, offset)
	if err != nil {
		h.log.Error("list by actor failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: recs})
}

// GetRecord fetches one record with its decoded state maps and extras.
func (h *QueryHandler) GetRecord(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid record id"})
	}

	rec, err := h.records.GetRecord(c.Context(), id)
	if err != nil {
		var notFound *audit.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("get record failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: rec})
}

// GetExtras returns the stored extra rows of one record.
func (h *QueryHandler) GetExtras(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid record id"})
	}

	extras, err := h.records.ExtrasByRecord(c.Context(), id)
	if err != nil {
		h.log.Error("get extras failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: extras})
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit, offset = 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
