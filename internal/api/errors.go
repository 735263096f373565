package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pauljones0/dealboard/internal/auth"
	"github.com/pauljones0/dealboard/internal/media"
	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/payment"
)

var (
	errCSVRequired = errors.New("csv file or csv field is required")
	errCSVTooLarge = errors.New("csv exceeds 10 MiB")
)

var errStatus = []struct {
	err    error
	status int
}{
	{models.ErrMissingRequiredField, http.StatusBadRequest},
	{models.ErrInvalidNumeric, http.StatusBadRequest},
	{models.ErrInvalidDate, http.StatusBadRequest},
	{models.ErrDealNotFound, http.StatusNotFound},
	{models.ErrUserNotFound, http.StatusNotFound},
	{models.ErrDealExists, http.StatusConflict},
	{models.ErrUserExists, http.StatusConflict},
	{models.ErrFetch, http.StatusBadGateway},
	{models.ErrExtraction, http.StatusBadGateway},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidVerificationToken, http.StatusBadRequest},
	{auth.ErrAlreadyVerified, http.StatusConflict},
	{payment.ErrMissingProof, http.StatusBadRequest},
	{payment.ErrInvalidSignature, http.StatusPaymentRequired},
	{payment.ErrAlreadyClaimed, http.StatusConflict},
	{payment.ErrDisabled, http.StatusServiceUnavailable},
	{media.ErrNotImage, http.StatusBadRequest},
	{media.ErrImageTooLarge, http.StatusRequestEntityTooLarge},
}

// respondError maps domain errors to status codes. Anything unrecognised
// is logged and reported as a 500 without internals.
func respondError(c *gin.Context, err error) {
	for _, e := range errStatus {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": err.Error()})
			return
		}
	}
	slog.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
