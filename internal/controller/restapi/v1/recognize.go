package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dkrasnov/receipt-gateway/internal/controller/restapi/response"
	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/dkrasnov/receipt-gateway/internal/ingest"
	"github.com/dkrasnov/receipt-gateway/pkg/types/errs"
)

// @Summary 	Submit an image for recognition
// @Description Accepts an image, enqueues it for alignment, QR decode, and OCR
// @Tags 		recognitions
// @Accept 		mpfd
// @Produce 	json
// @Param 		image 			  formData file   true  "Receipt image (jpeg/png/webp)"
// @Param 		sourceService 	  formData string false "Opaque provenance tag"
// @Param 		sourceReference   formData string false "Opaque provenance tag"
// @Param 		acceptedQrFormats formData string false "Comma-separated subset of fiscal,url,unknown"
// @Success 	202 {object} response.Recognize
// @Failure 	400 {object} response.Error
// @Failure 	500 {object} response.Error
// @Router 		/api/v1/recognize [post]
func (r *V1) recognize(ctx *fiber.Ctx) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "image is required")
	}

	fileReader, err := file.Open()
	if err != nil {
		r.logger.Error(err, "restapi - v1 - recognize - file.Open")
		return errorResponse(ctx, http.StatusInternalServerError, "problem reading upload")
	}
	defer fileReader.Close()

	var sourceService, sourceReference *string
	if v := ctx.FormValue("sourceService"); v != "" {
		sourceService = &v
	}
	if v := ctx.FormValue("sourceReference"); v != "" {
		sourceReference = &v
	}

	var acceptedQrFormats []entity.QRFormat
	if v := ctx.FormValue("acceptedQrFormats"); v != "" {
		for _, part := range strings.Split(v, ",") {
			acceptedQrFormats = append(acceptedQrFormats, entity.QRFormat(strings.TrimSpace(part)))
		}
	}

	result, err := r.ingest.UploadImage(ctx.UserContext(), fileReader, file.Header.Get("Content-Type"), file.Size, ingest.UploadOptions{
		SourceService:     sourceService,
		SourceReference:   sourceReference,
		AcceptedQRFormats: acceptedQrFormats,
	})
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			return errorResponse(ctx, http.StatusBadRequest, err.Error())
		}

		r.logger.Error(err, "restapi - v1 - recognize - r.ingest.UploadImage")
		return errorResponse(ctx, http.StatusInternalServerError, "failed to enqueue image")
	}

	return ctx.Status(http.StatusAccepted).JSON(response.Recognize{
		ImageID:       result.ImageID,
		RecognitionID: result.RecognitionID,
		Status:        string(result.Status),
	})
}
