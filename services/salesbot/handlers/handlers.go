// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the salesbot HTTP API: one turn per
// request, tenant-scoped sessions, and the user-profile projection.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/salespilot/services/salesbot/llm"
	"github.com/AleutianAI/salespilot/services/salesbot/middleware"
	"github.com/AleutianAI/salespilot/services/salesbot/session"
)

// resetCommand short-circuits the pipeline and reinitializes the
// session in place.
const resetCommand = "/reset"

const resetAnswer = "Контекст диалога сброшен. Начнём сначала — чем могу помочь?"

// Message is the user utterance inside a process request.
type Message struct {
	Text        string `json:"text" binding:"required"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// RequestContext carries optional per-request hints from the channel.
type RequestContext struct {
	TimeOfDay string            `json:"time_of_day"`
	Timezone  string            `json:"timezone"`
	Meta      map[string]string `json:"meta"`
}

// ProcessRequest is the body of POST /api/v1/process. user_id doubles
// as the tenant id for session isolation.
type ProcessRequest struct {
	RequestID string          `json:"request_id"`
	Channel   string          `json:"channel" binding:"required"`
	SessionID string          `json:"session_id" binding:"required"`
	UserID    string          `json:"user_id" binding:"required"`
	Message   Message         `json:"message" binding:"required"`
	Context   *RequestContext `json:"context"`
}

// ProcessMeta is the metadata block of a successful turn.
type ProcessMeta struct {
	Model        string `json:"model"`
	ProcessingMS int64  `json:"processing_ms"`
	KBUsed       bool   `json:"kb_used"`
}

// ProcessResponse is the success body of POST /api/v1/process.
type ProcessResponse struct {
	Answer string      `json:"answer"`
	Meta   ProcessMeta `json:"meta"`
}

// ProfileResponse is the body of GET /api/v1/users/:user_id/profile.
type ProfileResponse struct {
	UserID   string            `json:"user_id"`
	Profiles []session.Profile `json:"profiles"`
}

// ProfileReader is the slice of the SQL store the profile endpoint
// needs. May be nil when no external store is configured.
type ProfileReader interface {
	ProfilesByClient(ctx context.Context, clientID string) ([]session.Profile, error)
}

// Handlers bundles the API dependencies.
type Handlers struct {
	sessions *session.Manager
	profiles ProfileReader
	llm      *llm.Client
	version  string
	logger   *slog.Logger
}

// New wires the handler set. profiles may be nil; the profile endpoint
// then always reports not found.
func New(sessions *session.Manager, profiles ProfileReader, llmClient *llm.Client,
	version string, logger *slog.Logger) *Handlers {

	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		sessions: sessions,
		profiles: profiles,
		llm:      llmClient,
		version:  version,
		logger:   logger,
	}
}

// Health reports service liveness and the backing model.
func (h *Handlers) Health(c *gin.Context) {
	status := "ok"
	if !h.llm.HealthCheck(c.Request.Context()) {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "model": h.llm.ModelName()})
}

// Process serves one conversation turn.
func (h *Handlers) Process(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest,
			middleware.CodeBadRequest, err.Error())
		return
	}

	start := time.Now()
	opts := session.Options{ClientID: req.UserID}

	if req.Message.Text == resetCommand {
		if _, err := h.sessions.ResetSession(req.SessionID, req.UserID); err != nil {
			h.abortSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, ProcessResponse{
			Answer: resetAnswer,
			Meta: ProcessMeta{
				Model:        h.llm.ModelName(),
				ProcessingMS: time.Since(start).Milliseconds(),
			},
		})
		return
	}

	res, err := h.sessions.Process(c.Request.Context(), req.SessionID, opts, req.Message.Text)
	if err != nil {
		h.abortSessionError(c, err)
		return
	}

	h.logger.Info("turn served",
		"request_id", req.RequestID,
		"channel", req.Channel,
		"session_id", req.SessionID,
		"user_id", req.UserID,
		"intent", res.Intent,
		"state", res.State,
		"outcome", res.Outcome)

	c.JSON(http.StatusOK, ProcessResponse{
		Answer: res.Response,
		Meta: ProcessMeta{
			Model:        h.llm.ModelName(),
			ProcessingMS: time.Since(start).Milliseconds(),
			KBUsed:       res.KBUsed,
		},
	})
}

// UserProfile lists every stored profile for one tenant.
func (h *Handlers) UserProfile(c *gin.Context) {
	userID := c.Param("user_id")
	if h.profiles == nil {
		middleware.AbortWithError(c, http.StatusNotFound,
			middleware.CodeNotFound, "no profiles for user")
		return
	}
	profiles, err := h.profiles.ProfilesByClient(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("profile lookup failed", "user_id", userID, "error", err)
		middleware.AbortWithError(c, http.StatusInternalServerError,
			middleware.CodeInternal, "internal server error")
		return
	}
	if len(profiles) == 0 {
		middleware.AbortWithError(c, http.StatusNotFound,
			middleware.CodeNotFound, "no profiles for user")
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{UserID: userID, Profiles: profiles})
}

// abortSessionError maps manager errors onto the error envelope:
// validation problems are the caller's fault, everything else is ours.
func (h *Handlers) abortSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionIDRequired),
		errors.Is(err, session.ErrClientIDRequired),
		errors.Is(err, session.ErrUnknownFlow):
		middleware.AbortWithError(c, http.StatusBadRequest,
			middleware.CodeBadRequest, err.Error())
	default:
		h.logger.Error("session error", "error", err)
		middleware.AbortWithError(c, http.StatusInternalServerError,
			middleware.CodeInternal, "internal server error")
	}
}
