package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/storage"
	"github.com/rs/zerolog"
)

// PutUpload 接收签名地址上传的图片
func (a *API) PutUpload(c *gin.Context) {
	if a.uploads == nil {
		respondError(c, http.StatusServiceUnavailable, "Uploads are not configured")
		return
	}

	key := c.Param("key")
	if err := a.uploads.Verify(key, c.Query("expires"), c.Query("signature")); err != nil {
		respondUploadError(c, err)
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, a.uploads.MaxBytes()+1)
	format, err := a.uploads.Save(c.Request.Context(), key, body)
	if err != nil {
		respondUploadError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Image uploaded successfully", gin.H{
		"key":     key,
		"format":  format,
		"fileUrl": a.uploads.URLPath() + "/" + key,
	})
}

func respondUploadError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrInvalidKey):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrBadSignature), errors.Is(err, storage.ErrExpired):
		respondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, storage.ErrTooLarge), errors.As(err, &tooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, storage.ErrTooLarge.Error())
	case errors.Is(err, storage.ErrNotImage):
		respondError(c, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, storage.ErrAlreadyUploaded):
		respondError(c, http.StatusConflict, err.Error())
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("upload failed")
		respondError(c, http.StatusInternalServerError, internalErrorMessage)
	}
}
