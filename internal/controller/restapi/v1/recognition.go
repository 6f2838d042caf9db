package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dkrasnov/receipt-gateway/internal/controller/restapi/response"
	"github.com/dkrasnov/receipt-gateway/pkg/types/errs"
)

// @Summary 	Fetch a recognition result
// @Tags 		recognitions
// @Produce 	json
// @Param 		id path string true "Recognition ID"
// @Success 	200 {object} response.Recognition
// @Failure 	404 {object} response.Error
// @Router 		/api/v1/recognitions/{id} [get]
func (r *V1) getRecognition(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	if id == "" {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	rec, err := r.recognitionsRepo.FindByID(ctx.UserContext(), id)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "recognition not found")
		}

		r.logger.Error(err, "restapi - v1 - getRecognition - r.recognitionsRepo.FindByID")
		return errorResponse(ctx, http.StatusInternalServerError, "storage problem")
	}

	resp := response.Recognition{
		ID:             rec.ID,
		ImageID:        rec.ImageID,
		Status:         string(rec.Status),
		RawText:        rec.RawText,
		Confidence:     rec.Confidence,
		Aligned:        rec.Aligned,
		QRData:         rec.QRData,
		ProcessingTime: rec.ProcessingTimeMs,
		Error:          rec.Error,
	}
	if rec.ResultType != nil {
		s := string(*rec.ResultType)
		resp.ResultType = &s
	}
	if rec.Engine != nil {
		s := string(*rec.Engine)
		resp.Engine = &s
	}
	if rec.QRFormat != nil {
		s := string(*rec.QRFormat)
		resp.QRFormat = &s
	}
	if rec.QRLocation != nil {
		resp.QRLocation = &response.QRLocation{
			X: rec.QRLocation.X, Y: rec.QRLocation.Y,
			Width: rec.QRLocation.Width, Height: rec.QRLocation.Height,
		}
	}
	if rec.CompletedAt != nil {
		s := rec.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}
