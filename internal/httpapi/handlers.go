package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/giftkeep/giftkeep/internal/ledger"
	"github.com/giftkeep/giftkeep/internal/purchase"
)

// handleStatus reports per-collection row counts and store size. Read-only
// operational visibility; no administrative gate.
func (s *Server) handleStatus(c *gin.Context) {
	counts, size, err := s.store.Counts(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"collections": counts,
		"sizeBytes":   size,
	})
}

// handleExport streams a full snapshot document for download.
func (s *Server) handleExport(c *gin.Context) {
	p := currentPrincipal(c)
	snap, err := s.exporter.Export(c.Request.Context(), p.Subject)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body, err := snap.Marshal()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="giftkeep-snapshot.json"`)
	c.Data(http.StatusOK, "application/json", body)
}

// handleDownload serves the raw SQLite file. Guarded by the confirmation
// header in addition to the admin role.
func (s *Server) handleDownload(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="giftkeep.db"`)
	c.File(s.store.Path())
}

type restoreRequest struct {
	Proof    string          `json:"proof" validate:"required"`
	Snapshot json.RawMessage `json:"snapshot" validate:"required"`
}

// handleRestore applies a snapshot. The body carries the document plus a
// freshly supplied credential; the engine re-verifies it before touching
// anything.
func (s *Server) handleRestore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proof and snapshot are required"})
		return
	}

	p := currentPrincipal(c)
	res, err := s.engine.Restore(c.Request.Context(), req.Snapshot, req.Proof, p.Subject)
	if err != nil {
		s.writeError(c, err)
		return
	}
	restoresTotal.Inc()
	s.log.Info("restore committed",
		"actor", p.Subject, "tables", res.Tables, "rows", res.TotalRows,
		"type_errors", len(res.TypeErrors))
	c.JSON(http.StatusOK, res)
}

type switchRequest struct {
	Stopped *bool `json:"stopped" validate:"required"`
}

// handleSwitch activates or deactivates the emergency stop.
func (s *Server) handleSwitch(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stopped is required"})
		return
	}

	p := currentPrincipal(c)
	ctx := c.Request.Context()
	if *req.Stopped {
		res, err := s.sw.Activate(ctx, p.Subject)
		if err != nil {
			s.writeError(c, err)
			return
		}
		switchFlipsTotal.WithLabelValues("stop").Inc()
		s.log.Warn("emergency stop activated", "actor", p.Subject, "cancelled", res.CancelledCount)
		c.JSON(http.StatusOK, res)
		return
	}

	if err := s.sw.Deactivate(ctx, p.Subject); err != nil {
		s.writeError(c, err)
		return
	}
	switchFlipsTotal.WithLabelValues("resume").Inc()
	s.log.Info("emergency stop deactivated", "actor", p.Subject)
	c.JSON(http.StatusOK, gin.H{})
}

type createPurchaseRequest struct {
	RecommendationID string `json:"recommendationId" validate:"required"`
	OccasionID       string `json:"occasionId" validate:"required"`
	ApprovalID       string `json:"approvalId"`
}

// handleCreatePurchase is the HTTP face of the purchase gate. ApprovalID is
// deliberately NOT validated as required here: the gate itself must reject
// its absence so the invariant cannot be bypassed by a different adapter.
func (s *Server) handleCreatePurchase(c *gin.Context) {
	var req createPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recommendationId and occasionId are required"})
		return
	}

	p := currentPrincipal(c)
	created, err := s.gate.Create(c.Request.Context(), p.Subject, purchase.CreateParams{
		RecommendationID: req.RecommendationID,
		OccasionID:       req.OccasionID,
		ApprovalID:       req.ApprovalID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	purchasesCreatedTotal.Inc()
	c.JSON(http.StatusCreated, created)
}

// handleLedgerQuery exposes the read side of the ledger.
func (s *Server) handleLedgerQuery(c *gin.Context) {
	f := ledger.Filter{
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		Action:     c.Query("action"),
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}

	entries, err := s.ledger.Query(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
