package v1

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dkrasnov/receipt-gateway/internal/controller/restapi/response"
	"github.com/dkrasnov/receipt-gateway/internal/repo"
	"github.com/dkrasnov/receipt-gateway/pkg/types/errs"
)

// @Summary 	Presign a blob URL for an image variant
// @Tags 		images
// @Produce 	json
// @Param 		id 	 path  string true  "Image ID"
// @Param 		type query string false "original|processed" Default(original)
// @Success 	200 {object} response.Image
// @Failure 	404 {object} response.Error
// @Router 		/api/v1/images/{id} [get]
func (r *V1) getImage(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	if id == "" {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	variant := ctx.Query("type", "original")
	if variant != "original" && variant != "processed" {
		return errorResponse(ctx, http.StatusBadRequest, "type must be original or processed")
	}

	image, err := r.imagesRepo.FindByID(ctx.UserContext(), id)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "image not found")
		}

		r.logger.Error(err, "restapi - v1 - getImage - r.imagesRepo.FindByID")
		return errorResponse(ctx, http.StatusInternalServerError, "storage problem")
	}

	blobURL := image.OriginalURL
	if variant == "processed" {
		if image.ProcessedURL == nil {
			return errorResponse(ctx, http.StatusNotFound, "processed variant not available")
		}
		blobURL = *image.ProcessedURL
	}

	_, key, ok := repo.ParseBlobURL(blobURL)
	if !ok {
		r.logger.Error(nil, "restapi - v1 - getImage - malformed blob url, imageId=%s", id)
		return errorResponse(ctx, http.StatusInternalServerError, "storage problem")
	}

	url, err := r.blobStore.Presign(ctx.UserContext(), key, r.presignTTL)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - getImage - r.blobStore.Presign")
		return errorResponse(ctx, http.StatusInternalServerError, "storage problem")
	}

	return ctx.Status(http.StatusOK).JSON(response.Image{
		ImageID: id,
		Type:    variant,
		URL:     url,
	})
}
