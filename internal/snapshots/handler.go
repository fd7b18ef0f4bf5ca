package snapshots

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"biomrk-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the snapshot service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// snapshotQuery holds the query parameters shared by the snapshot routes.
type snapshotQuery struct {
	Version   string `form:"version" binding:"omitempty,number"`
	Format    string `form:"format" binding:"omitempty,oneof=tree flat"`
	Component string `form:"component" binding:"omitempty,max=128"`
}

// RegisterRoutes attaches snapshot routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/snapshots/:cancerCode", h.getSnapshot)
	rg.GET("/snapshots/:cancerCode/versions", h.listVersions)
	rg.GET("/snapshots/:cancerCode/config", h.getConfig)
	rg.GET("/snapshots/:cancerCode/dir_summary", h.getDirSummary)
	rg.GET("/snapshots/:cancerCode/top_genes", h.getTopGenes)
	rg.GET("/snapshots/:cancerCode/summary", h.getSummary)
	rg.GET("/snapshots/:cancerCode/pc_avg_exprs_pivot", h.getPivot)
}

func (h *Handler) getSnapshot(c *gin.Context) {
	snap, ok := h.load(c)
	if !ok {
		return
	}
	respond.Cached(c, snap)
}

func (h *Handler) listVersions(c *gin.Context) {
	code, err := NormalizeCancerCode(c.Param("cancerCode"))
	if err != nil {
		writeError(c, err)
		return
	}
	versions, err := h.Svc.Versions(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	if versions == nil {
		versions = []int64{}
	}
	resp := gin.H{
		"cancerCode": code,
		"versions":   versions,
	}
	if latest, err := SelectLatest(versions); err == nil {
		resp["latest"] = latest
	}
	respond.Cached(c, resp)
}

func (h *Handler) getConfig(c *gin.Context) {
	snap, q, ok := h.loadQuery(c)
	if !ok {
		return
	}
	if snap.Config == nil {
		respond.Cached(c, gin.H{})
		return
	}
	if q.Format == "flat" && snap.Config.IsStructured() {
		respond.Cached(c, Leaves(snap.Config.Value()))
		return
	}
	respond.Cached(c, snap.Config)
}

func (h *Handler) getDirSummary(c *gin.Context) {
	snap, ok := h.load(c)
	if !ok {
		return
	}
	if snap.DirSummary == nil {
		respond.Cached(c, gin.H{})
		return
	}
	respond.Cached(c, snap.DirSummary)
}

// getTopGenes always answers with a sequence.
func (h *Handler) getTopGenes(c *gin.Context) {
	snap, ok := h.load(c)
	if !ok {
		return
	}
	respond.Cached(c, topGenes(snap))
}

func (h *Handler) getSummary(c *gin.Context) {
	snap, ok := h.load(c)
	if !ok {
		return
	}
	if snap.DirSummary != nil {
		if v, found := snap.DirSummary.Lookup("summary"); found {
			respond.Cached(c, v)
			return
		}
	}
	respond.Cached(c, gin.H{})
}

func (h *Handler) getPivot(c *gin.Context) {
	snap, q, ok := h.loadQuery(c)
	if !ok {
		return
	}
	if q.Component == "" {
		respond.Cached(c, snap.PCAvgExprsPivot)
		return
	}
	table, found := snap.PCAvgExprsPivot.Table(q.Component)
	if !found {
		respond.Error(c, http.StatusNotFound, "not_found", "component not found", []map[string]string{
			{"field": "component", "issue": "unknown"},
		})
		return
	}
	respond.Cached(c, table)
}

func (h *Handler) load(c *gin.Context) (Snapshot, bool) {
	snap, _, ok := h.loadQuery(c)
	return snap, ok
}

// loadQuery validates the query and assembles the requested snapshot.
func (h *Handler) loadQuery(c *gin.Context) (Snapshot, snapshotQuery, bool) {
	code := c.Param("cancerCode")
	c.Set("cancerCode", code)

	var q snapshotQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeQueryError(c, err)
		return Snapshot{}, q, false
	}

	var (
		snap Snapshot
		err  error
	)
	if q.Version != "" {
		version, parseErr := strconv.ParseInt(q.Version, 10, 64)
		if parseErr != nil {
			writeQueryError(c, parseErr)
			return Snapshot{}, q, false
		}
		snap, err = h.Svc.AssembleVersion(c.Request.Context(), code, version)
	} else {
		snap, err = h.Svc.Assemble(c.Request.Context(), code)
	}
	if err != nil {
		writeError(c, err)
		return Snapshot{}, q, false
	}
	c.Set("logTimestamp", snap.LogTimestamp)
	return snap, q, true
}

// writeQueryError reports each failed query field. Errors that carry no field
// information can only come from version parsing.
func writeQueryError(c *gin.Context, err error) {
	details := []map[string]string{{"field": "version", "issue": "invalid"}}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details = details[:0]
		for _, fe := range verrs {
			details = append(details, map[string]string{
				"field": strings.ToLower(fe.Field()),
				"issue": fe.Tag(),
			})
		}
	}
	respond.Error(c, http.StatusBadRequest, "validation_error", "invalid query parameters", details)
}

func topGenes(snap Snapshot) []any {
	if snap.DirSummary == nil {
		return []any{}
	}
	v, found := snap.DirSummary.Lookup("top_genes")
	if !found {
		return []any{}
	}
	genes, ok := asSlice(v)
	if !ok {
		return []any{}
	}
	return genes
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidCancerCode):
		respond.Error(c, http.StatusBadRequest, "validation_error", "cancer code is invalid", nil)
	case errors.Is(err, ErrNoPartitionFound):
		respond.Error(c, http.StatusNotFound, "not_found", "no analysis found for cancer code", nil)
	case errors.Is(err, ErrMalformedRecord):
		respond.Error(c, http.StatusBadGateway, "malformed_record", "analysis record is malformed", nil)
	case errors.Is(err, ErrStorageUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "storage_unavailable", "analysis store is unavailable", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load analysis", nil)
	}
}
