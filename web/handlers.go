// ABOUTME: Gin handlers for users, organizations, sync, CRM passthrough, and webhooks
// ABOUTME: Maps store and sync errors onto HTTP status codes
package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/reconcile"
	"github.com/harperreed/crmsync/wealthbox"
	"github.com/harperreed/crmsync/webhook"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleListUsers(c *gin.Context) {
	q := db.UserQuery{
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", 10),
		Search: c.Query("search"),
	}
	if raw := c.Query("organization_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization_id"})
			return
		}
		q.OrganizationID = &id
	}

	page, err := db.FindUsers(c.Request.Context(), s.db, q)
	if err != nil {
		s.internalError(c, "failed to list users", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleListOrganizations(c *gin.Context) {
	orgs, err := db.ListOrganizations(c.Request.Context(), s.db)
	if err != nil {
		s.internalError(c, "failed to list organizations", err)
		return
	}
	c.JSON(http.StatusOK, orgs)
}

func (s *Server) handleOrganizationUsers(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	org, err := db.GetOrganization(c.Request.Context(), s.db, id)
	if err != nil {
		s.internalError(c, "failed to get organization", err)
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	users, err := db.FindUsersByOrganization(c.Request.Context(), s.db, id)
	if err != nil {
		s.internalError(c, "failed to list organization users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) handleOrganizationStats(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	stats, err := db.GetOrganizationStats(c.Request.Context(), s.db, id)
	if err != nil {
		s.internalError(c, "failed to get organization stats", err)
		return
	}
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleSyncUsers(c *gin.Context) {
	// A disconnecting client does not abort a sync already under way.
	report, err := s.sync.FullSync(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, reconcile.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A sync is already running"})
	case errors.Is(err, wealthbox.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":  "Invalid Wealthbox API credentials. Please check your API key.",
			"report": report,
		})
	case err != nil:
		s.logger.Error("sync failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "report": report})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Users synced successfully", "report": report})
	}
}

func (s *Server) handleTestConnection(c *gin.Context) {
	ok, err := s.sync.TestConnection(c.Request.Context())
	if err != nil {
		s.logger.Error("connection test failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"connected": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": ok})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.GetTask(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, wealthbox.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	case errors.Is(err, wealthbox.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Wealthbox API credentials"})
	case err != nil:
		s.logger.Error("failed to fetch task", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch task"})
	default:
		c.JSON(http.StatusOK, task)
	}
}

// handleWebhook verifies the signature over the raw body before anything is
// decoded or applied. Missing and wrong signatures get the same response.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if !s.verifier.Verify(body, c.GetHeader(webhook.SignatureHeader)) {
		s.logger.Warn("rejected webhook", "error", webhook.ErrInvalidSignature)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
		return
	}

	event, err := webhook.DecodeEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.sync.ApplyEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.internalError(c, "failed to process webhook", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Webhook processed successfully"})
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func pathUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
