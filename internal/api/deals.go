package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pauljones0/dealboard/internal/middleware"
	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/payment"
)

// Feed serves active deals, interleaved by category.
func (h *Handler) Feed(c *gin.Context) {
	deals, err := h.deals.Feed(c.Request.Context(), c.Query("city"), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals})
}

// GetDeal serves one active deal. Inactive deals are hidden from the public.
func (h *Handler) GetDeal(c *gin.Context) {
	deal, err := h.store.GetDeal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !deal.IsActive {
		respondError(c, models.ErrDealNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": deal})
}

// SubmitDeal stores a paid user submission for moderation. The body holds
// the deal fields plus a "payment" object with the checkout proof.
func (h *Handler) SubmitDeal(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	user, err := h.auth.GetUser(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !user.EmailVerified {
		c.JSON(http.StatusForbidden, gin.H{"error": "verify your email before submitting deals"})
		return
	}

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	proofValue := raw["payment"]
	delete(raw, "payment")

	var proof payment.Proof
	paid := h.payments != nil && h.payments.Enabled()
	if paid {
		if err := decodeProof(proofValue, &proof); err != nil {
			badRequest(c, "invalid payment proof")
			return
		}
		if err := h.payments.Claim(ctx, proof, userID); err != nil {
			respondError(c, err)
			return
		}
	}

	deal, err := h.deals.Submit(ctx, raw, userID)
	if err != nil {
		if paid {
			if rerr := h.payments.Release(ctx, proof); rerr != nil {
				slog.Error("Failed to release payment claim", "payment", proof.PaymentID, "error", rerr)
			}
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "deal submitted and pending approval", "deal": deal})
}

func decodeProof(v any, dst *payment.Proof) error {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// CreateOrder opens a checkout order for one submission fee.
func (h *Handler) CreateOrder(c *gin.Context) {
	if h.payments == nil || !h.payments.Enabled() {
		respondError(c, payment.ErrDisabled)
		return
	}
	receipt := "sub-" + strconv.FormatInt(time.Now().UnixMilli(), 36)
	order, err := h.payments.CreateOrder(c.Request.Context(), receipt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order, "keyId": h.payments.KeyID()})
}

// UploadImage stores the multipart "image" file and returns its public URL.
func (h *Handler) UploadImage(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image uploads are not configured"})
		return
	}
	fileHeader, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "cannot read image")
		return
	}
	defer file.Close()

	imageURL, err := h.uploader.Upload(c.Request.Context(), file, fileHeader.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imageUrl": imageURL})
}
