package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ByLCY/adsmith/feed"
	"github.com/ByLCY/adsmith/fonts"
)

// FontLister lists the families available to text layers.
type FontLister interface {
	Families() ([]fonts.Family, error)
}

type handler struct {
	svc   *feed.Service
	fonts FontLister
}

type filtersRequest struct {
	Limit    int    `json:"limit" binding:"gte=0"`
	Sort     string `json:"sort" binding:"max=50"`
	Category string `json:"category" binding:"max=100"`
	Status   string `json:"status" binding:"max=50"`
}

type createFeedRequest struct {
	Name     string         `json:"name" binding:"required,max=200"`
	Platform string         `json:"platform" binding:"required,max=50"`
	Template *string        `json:"template" binding:"omitempty,uuid"`
	Filters  filtersRequest `json:"filters"`
}

type createTemplateRequest struct {
	Name     string          `json:"name" binding:"required,max=200"`
	Document json.RawMessage `json:"document" binding:"required"`
}

type previewRequest struct {
	ListingID *string        `json:"listing_id" binding:"omitempty,uuid"`
	Record    map[string]any `json:"record"`
}

type fontFamily struct {
	Name     string   `json:"name"`
	Variants []string `json:"variants"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) createFeed(c *gin.Context) {
	var req createFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}
	in := feed.CreateFeedInput{
		Name:     req.Name,
		Platform: req.Platform,
		Filters: feed.Filters{
			Limit:    req.Filters.Limit,
			Sort:     req.Filters.Sort,
			Category: req.Filters.Category,
			Status:   req.Filters.Status,
		},
	}
	if req.Template != nil {
		id := uuid.MustParse(*req.Template)
		in.TemplateID = &id
	}
	result, err := h.svc.CreateFeed(c.Request.Context(), organization(c), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, result)
}

func (h *handler) getFeed(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	result, err := h.svc.GetFeed(c.Request.Context(), organization(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

func (h *handler) listFeeds(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	if limit < 1 || limit > 100 || offset < 0 {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "limit must be 1-100 and offset non-negative")
		return
	}
	feeds, total, err := h.svc.ListFeeds(c.Request.Context(), organization(c), limit, offset)
	if err != nil {
		failErr(c, err)
		return
	}
	okList(c, feeds, Meta{Total: total, Limit: limit, Offset: offset})
}

func (h *handler) createTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}
	tpl, err := h.svc.CreateTemplate(c.Request.Context(), organization(c), req.Name, req.Document)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, tpl)
}

func (h *handler) getTemplate(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	tpl, err := h.svc.GetTemplate(c.Request.Context(), organization(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, tpl)
}

func (h *handler) previewTemplate(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}
	if req.ListingID == nil && req.Record == nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "listing_id or record is required")
		return
	}
	in := feed.PreviewInput{Record: req.Record}
	if req.ListingID != nil {
		listingID := uuid.MustParse(*req.ListingID)
		in.ListingID = &listingID
	}
	png, err := h.svc.Preview(c.Request.Context(), organization(c), id, in)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handler) listFonts(c *gin.Context) {
	families, err := h.fonts.Families()
	if err != nil {
		failErr(c, err)
		return
	}
	out := make([]fontFamily, 0, len(families))
	for _, f := range families {
		variants := make([]string, 0, len(f.Variants))
		for v := range f.Variants {
			variants = append(variants, string(v))
		}
		sort.Strings(variants)
		out = append(out, fontFamily{Name: f.Name, Variants: variants})
	}
	ok(c, http.StatusOK, out)
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
