package handlers

import (
	"errors"

	"github.com/chronicle-audit/backend/internal/audit"
	"github.com/chronicle-audit/backend/internal/http/dto"
	"github.com/chronicle-audit/backend/internal/middleware"
	"github.com/chronicle-audit/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RecordHandler struct {
	recorder *audit.Recorder
	log      *zap.Logger
}

func NewRecordHandler(recorder *audit.Recorder, log *zap.Logger) *RecordHandler {
	return &RecordHandler{recorder: recorder, log: log}
}

// CreateRecord audits a single change. With the X-Audit-Sequence header set,
// the sequence middleware scopes squash tracking to this request; otherwise
// the record persists independently.
func (h *RecordHandler) CreateRecord(c *fiber.Ctx) error {
	var payload dto.RecordPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	req, err := buildRecordRequest(c, payload)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	rec, err := h.recorder.Record(c.UserContext(), req)
	if err != nil {
		return h.respondError(c, err)
	}
	if rec == nil {
		return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BatchResult{Discarded: true}})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: rec})
}

// CreateBatch audits several changes inside one squash sequence.
func (h *RecordHandler) CreateBatch(c *fiber.Ctx) error {
	var batch dto.BatchRequest
	if err := c.BodyParser(&batch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if len(batch.Records) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "records are required"})
	}

	ctx, end := audit.BeginSequence(c.UserContext())
	defer end()

	results := make([]dto.BatchResult, 0, len(batch.Records))
	for _, payload := range batch.Records {
		req, err := buildRecordRequest(c, payload)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}

		rec, err := h.recorder.Record(ctx, req)
		if err != nil {
			return h.respondError(c, err)
		}
		if rec == nil {
			results = append(results, dto.BatchResult{Discarded: true})
		} else {
			results = append(results, dto.BatchResult{RecordID: rec.ID.String()})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: results})
}

// AttachExtra manually attaches a (field, value) extra to a stored record.
func (h *RecordHandler) AttachExtra(c *fiber.Ctx) error {
	recordID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid record id"})
	}

	var req dto.AttachExtraRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if req.FieldName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "field_name is required"})
	}

	extra, err := h.recorder.AttachExtra(c.UserContext(), recordID, req.FieldName, req.FieldValue)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: extra})
}

func (h *RecordHandler) respondError(c *fiber.Ctx, err error) error {
	var (
		validationErr  *audit.ValidationError
		consistencyErr *audit.ConsistencyError
		notFoundErr    *audit.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &notFoundErr):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &consistencyErr):
		h.log.Error("audit consistency violation", zap.Error(err))
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("record operation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}

func buildRecordRequest(c *fiber.Ctx, payload dto.RecordPayload) (audit.RecordRequest, error) {
	action, ok := models.ParseAction(payload.Action)
	if !ok {
		return audit.RecordRequest{}, errors.New("action must be create, update or delete")
	}

	req := audit.RecordRequest{
		Action: action,
		Current: audit.Snapshot{
			Entity: models.EntityKey{
				Namespace:  payload.Current.Namespace,
				EntityType: payload.Current.EntityType,
				InstanceID: payload.Current.InstanceID,
			},
			State: models.StateBlob(payload.Current.State),
		},
		ExtraRefs: payload.ExtraRefs,
	}

	if payload.Previous != nil {
		req.Previous = &audit.Snapshot{
			Entity: models.EntityKey{
				Namespace:  payload.Previous.Namespace,
				EntityType: payload.Previous.EntityType,
				InstanceID: payload.Previous.InstanceID,
			},
			State: models.StateBlob(payload.Previous.State),
		}
	}

	for _, pair := range payload.ManualExtras {
		req.ManualExtras = append(req.ManualExtras, models.ExtraPair{Field: pair.Field, Value: pair.Value})
	}

	if actorID := middleware.GetActorID(c); actorID != uuid.Nil {
		req.ActorID = &actorID
	}
	return req, nil
}
