package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pauljones0/dealboard/internal/models"
)

const maxCSVBytes = 10 << 20

func (h *Handler) AdminListDeals(c *gin.Context) {
	filter := models.FeedFilter{
		City:       c.Query("city"),
		Category:   c.Query("category"),
		ActiveOnly: c.Query("active") == "true",
	}
	deals, err := h.store.ListDeals(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals})
}

func (h *Handler) AdminGetDeal(c *gin.Context) {
	deal, err := h.store.GetDeal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": deal})
}

func (h *Handler) AdminCreateDeal(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	deal, err := h.deals.Create(c.Request.Context(), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"deal": deal})
}

func (h *Handler) AdminUpdateDeal(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	deal, err := h.deals.Update(c.Request.Context(), c.Param("id"), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": deal})
}

func (h *Handler) AdminDeleteDeal(c *gin.Context) {
	if err := h.store.DeleteDeal(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AdminApproveDeal(c *gin.Context) {
	deal, err := h.deals.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": deal})
}

type importJSONRequest struct {
	Deals []map[string]any `json:"deals"`
	Items []map[string]any `json:"items"`
}

// ImportJSON accepts {"deals": [...]} or {"items": [...]}.
func (h *Handler) ImportJSON(c *gin.Context) {
	var req importJSONRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	items := req.Deals
	if items == nil {
		items = req.Items
	}
	if items == nil {
		badRequest(c, "deals or items array is required")
		return
	}

	res, err := h.deals.ImportJSON(c.Request.Context(), items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ImportCSV reads a multipart "file" upload (or a "csv" text field) and an
// optional "defaults" JSON object applied to blank cells.
func (h *Handler) ImportCSV(c *gin.Context) {
	text, err := csvText(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	defaults, err := parseDefaults(c.PostForm("defaults"))
	if err != nil {
		badRequest(c, "defaults must be a JSON object")
		return
	}

	res, err := h.deals.ImportCSV(c.Request.Context(), text, defaults)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func csvText(c *gin.Context) (string, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if text := c.PostForm("csv"); strings.TrimSpace(text) != "" {
			return text, nil
		}
		return "", errCSVRequired
	}
	file, err := fileHeader.Open()
	if err != nil {
		return "", errCSVRequired
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCSVBytes+1))
	if err != nil {
		return "", errCSVRequired
	}
	if len(data) > maxCSVBytes {
		return "", errCSVTooLarge
	}
	return string(data), nil
}

func parseDefaults(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var defaults map[string]any
	if err := json.Unmarshal([]byte(s), &defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}

type importURLsRequest struct {
	URLs     []string       `json:"urls" binding:"required,min=1"`
	Defaults map[string]any `json:"defaults"`
}

// ImportURLs extracts one deal per product page, in order.
func (h *Handler) ImportURLs(c *gin.Context) {
	var req importURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "urls array is required")
		return
	}
	res, err := h.deals.ExtractURLs(c.Request.Context(), req.URLs, req.Defaults)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type crawlRequest struct {
	URL      string         `json:"url" binding:"required,url"`
	Limit    int            `json:"limit" binding:"gte=0"`
	Defaults map[string]any `json:"defaults"`
}

// Crawl discovers product links on a listing page and imports each.
func (h *Handler) Crawl(c *gin.Context) {
	var req crawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "a listing url is required")
		return
	}
	res, err := h.deals.Crawl(c.Request.Context(), req.URL, req.Limit, req.Defaults)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
