package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/surerank/seo-analyzer/analyzer"
	"github.com/surerank/seo-analyzer/checks"
	"github.com/surerank/seo-analyzer/report"
	"github.com/surerank/seo-analyzer/seoerr"
	"github.com/surerank/seo-analyzer/stats"
	"github.com/surerank/seo-analyzer/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Meta keys a client may override through the API.
var editableMeta = map[string]bool{
	store.MetaPageTitle:       true,
	store.MetaPageDescription: true,
	store.MetaCanonicalURL:    true,
	store.MetaFocusKeyword:    true,
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Store     *store.Store
	Posts     *analyzer.PostAnalyzer
	Terms     *analyzer.TermAnalyzer
	Site      *analyzer.SiteService
	SiteCache *analyzer.SiteCache
	Stats     *stats.Storage
}

// Handler serves the API routes.
type Handler struct {
	deps Deps
}

// NewHandler creates the API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(err error) int {
	switch seoerr.KindOf(err) {
	case seoerr.KindInvalidInput:
		return http.StatusBadRequest
	case seoerr.KindNotFound:
		return http.StatusNotFound
	case seoerr.KindDisabled:
		return http.StatusConflict
	case seoerr.KindTransport, seoerr.KindEmptyResponse, seoerr.KindParseFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"status":  "error",
		"message": err.Error(),
	})
}

func entityID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, seoerr.New(seoerr.KindInvalidInput, "server.entityID", "invalid id %q", c.Param("id"))
	}
	return id, nil
}

// Health answers liveness probes.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Statistics returns the monthly counters and the site cache state.
func (h *Handler) Statistics(c *gin.Context) {
	body := gin.H{
		"current": stats.MonthlyStats{},
		"months":  []string{},
	}
	if h.deps.Stats != nil {
		body["current"] = h.deps.Stats.Current()
		body["months"] = h.deps.Stats.Months()
	}
	if h.deps.SiteCache != nil {
		body["site_cache"] = h.deps.SiteCache.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// PutPost creates or replaces the post at :id.
func (h *Handler) PutPost(c *gin.Context) {
	id, err := entityID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var post store.Post
	if err := c.ShouldBindJSON(&post); err != nil {
		respondError(c, seoerr.Wrap(seoerr.KindInvalidInput, "server.PutPost", err))
		return
	}
	post.ID = id
	if err := h.deps.Store.UpsertPost(c.Request.Context(), &post); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "post": post})
}

// PutTerm creates or replaces the term at :id.
func (h *Handler) PutTerm(c *gin.Context) {
	id, err := entityID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var term store.Term
	if err := c.ShouldBindJSON(&term); err != nil {
		respondError(c, seoerr.Wrap(seoerr.KindInvalidInput, "server.PutTerm", err))
		return
	}
	term.ID = id
	if err := h.deps.Store.UpsertTerm(c.Request.Context(), &term); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "term": term})
}

// PutMeta stores SEO overrides for an entity. Only the editable keys are accepted.
func (h *Handler) PutMeta(kind store.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "server.PutMeta"

		id, err := entityID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		var values map[string]string
		if err := c.ShouldBindJSON(&values); err != nil {
			respondError(c, seoerr.Wrap(seoerr.KindInvalidInput, op, err))
			return
		}
		for key := range values {
			if !editableMeta[key] {
				respondError(c, seoerr.New(seoerr.KindInvalidInput, op, "meta key %q cannot be set", key))
				return
			}
		}

		ctx := c.Request.Context()
		for key, value := range values {
			if err := h.deps.Store.SetMeta(ctx, kind, id, key, value); err != nil {
				respondError(c, err)
				return
			}
		}
		meta, err := h.deps.Store.AllMeta(ctx, kind, id)
		if err != nil {
			respondError(c, err)
			return
		}
		for key := range meta {
			if !editableMeta[key] {
				delete(meta, key)
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "meta": meta})
	}
}

// AnalyzePost runs the post checks and returns the findings of this run.
func (h *Handler) AnalyzePost(c *gin.Context) {
	id, err := entityID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	post, err := h.deps.Store.Post(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	rs, err := h.deps.Posts.RunChecks(c.Request.Context(), id, post)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "post_id": id, "checks": rs})
}

// AnalyzeTerm runs the term checks and returns the findings of this run.
func (h *Handler) AnalyzeTerm(c *gin.Context) {
	id, err := entityID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	term, err := h.deps.Store.Term(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	rs, err := h.deps.Terms.RunChecks(c.Request.Context(), id, term)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "term_id": id, "checks": rs})
}

// CheckPostLinks probes the links of a post and records the broken ones.
func (h *Handler) CheckPostLinks(c *gin.Context) {
	id, err := entityID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	post, err := h.deps.Store.Post(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	rs, err := h.deps.Posts.CheckLinks(c.Request.Context(), id, post)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "post_id": id, "checks": rs})
}

type siteRequest struct {
	URL   string `json:"url"`
	Fresh bool   `json:"fresh"`
}

// AnalyzeSite audits the posted URL, or the home page when the body is empty.
func (h *Handler) AnalyzeSite(c *gin.Context) {
	var req siteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(c, seoerr.Wrap(seoerr.KindInvalidInput, "server.AnalyzeSite", err))
			return
		}
	}
	rs, err := h.deps.Site.Analyze(c.Request.Context(), req.URL, req.Fresh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "checks": rs})
}

func (h *Handler) storedChecks(c *gin.Context, kind store.Kind) (int64, *checks.ResultSet, time.Time, error) {
	var id int64
	if kind != store.KindSite {
		var err error
		if id, err = entityID(c); err != nil {
			return 0, nil, time.Time{}, err
		}
	}
	rs, updated, err := h.deps.Store.Checks(c.Request.Context(), kind, id)
	return id, rs, updated, err
}

// GetChecks returns the stored, merged result set of an entity.
func (h *Handler) GetChecks(kind store.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, rs, updated, err := h.storedChecks(c, kind)
		if err != nil {
			respondError(c, err)
			return
		}
		body := gin.H{"status": "success", "checks": rs, "last_updated": nil}
		if !updated.IsZero() {
			body["last_updated"] = updated.Unix()
		}
		c.JSON(http.StatusOK, body)
	}
}

// Report downloads the stored result set of an entity as a workbook.
func (h *Handler) Report(kind store.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, rs, _, err := h.storedChecks(c, kind)
		if err != nil {
			respondError(c, err)
			return
		}
		if rs.Len() == 0 {
			respondError(c, seoerr.New(seoerr.KindNotFound, "server.Report", "no checks stored for %s %d", kind, id))
			return
		}

		title := fmt.Sprintf("SEO checks for %s %d", kind, id)
		filename := fmt.Sprintf("seo-%s-%d.xlsx", kind, id)
		if kind == store.KindSite {
			title = "SEO checks for the site"
			filename = "seo-site.xlsx"
		}

		var buf bytes.Buffer
		if err := report.WriteXLSX(&buf, title, rs); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	}
}
