// Package http provides the HTTP API for scoutd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/config"
	"github.com/fyrsmithlabs/scoutd/internal/learning"
	"github.com/fyrsmithlabs/scoutd/internal/logging"
	"github.com/fyrsmithlabs/scoutd/internal/preference"
)

// Server exposes the learning and preference services over HTTP.
type Server struct {
	echo        *echo.Echo
	learning    *learning.Service
	preferences *preference.Service
	logger      *logging.Logger
	config      config.ServerConfig
}

// NewServer creates the HTTP server with routes registered.
func NewServer(learningSvc *learning.Service, preferenceSvc *preference.Service, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if learningSvc == nil {
		return nil, fmt.Errorf("learning service cannot be nil")
	}
	if preferenceSvc == nil {
		return nil, fmt.Errorf("preference service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Carry the request ID into the request context so every
			// downstream ctx-aware log line correlates.
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			duration := time.Since(start)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)

			return err
		}
	})

	s := &Server{
		echo:        e,
		learning:    learningSvc,
		preferences: preferenceSvc,
		logger:      logger,
		config:      cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/feedback", s.handleFeedback)
	v1.POST("/analyze", s.handleAnalyze)
	v1.GET("/sessions/:id/metrics", s.handleSessionMetrics)
	v1.POST("/sessions/:id/close", s.handleCloseSession)
	v1.GET("/users/:id/insights", s.handleInsights)
	v1.POST("/users/:id/outcomes", s.handleOutcome)
	v1.POST("/users/:id/behavior", s.handleBehavior)
	v1.DELETE("/users/:id/learning", s.handleResetUser)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleFeedback accepts reviewer feedback and returns what the
// session learned from it.
func (s *Server) handleFeedback(c echo.Context) error {
	var req learning.FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithUserID(logging.WithSessionID(c.Request().Context(), req.SessionID), req.UserID)
	result, err := s.learning.SubmitFeedback(ctx, &req)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleAnalyze applies the session's patterns to a baseline analysis.
func (s *Server) handleAnalyze(c echo.Context) error {
	var req learning.AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid analyze request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithUserID(logging.WithSessionID(c.Request().Context(), req.SessionID), req.UserID)
	result, err := s.learning.AnalyzeProfile(ctx, &req)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleSessionMetrics(c echo.Context) error {
	metrics, err := s.learning.SessionMetrics(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, metrics)
}

func (s *Server) handleCloseSession(c echo.Context) error {
	result, err := s.learning.CloseSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleInsights(c echo.Context) error {
	insights, err := s.preferences.Insights(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, insights)
}

// OutcomeRequest is the request body for POST /v1/users/:id/outcomes.
type OutcomeRequest struct {
	ProfileID string `json:"profile_id"`
}

// handleOutcome records a successful contact for the user.
func (s *Server) handleOutcome(c echo.Context) error {
	var req OutcomeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ProfileID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "profile_id field is required")
	}

	if err := s.preferences.RecordOutcome(c.Request().Context(), c.Param("id"), req.ProfileID); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// BehaviorRequest is the request body for POST /v1/users/:id/behavior.
type BehaviorRequest struct {
	Patterns     []*learning.SessionPattern `json:"patterns"`
	ForceRefresh bool                       `json:"force_refresh"`
}

// handleBehavior folds observed patterns into the user's profile
// outside the session-close path and returns the updated profile.
func (s *Server) handleBehavior(c echo.Context) error {
	var req BehaviorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Patterns) == 0 && !req.ForceRefresh {
		return echo.NewHTTPError(http.StatusBadRequest, "patterns or force_refresh is required")
	}

	ctx := logging.WithUserID(c.Request().Context(), c.Param("id"))
	profile, err := s.preferences.UpdateFromBehavior(ctx, c.Param("id"), req.Patterns, req.ForceRefresh)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// handleResetUser erases a user's learned state.
func (s *Server) handleResetUser(c echo.Context) error {
	if err := s.preferences.ResetUser(c.Request().Context(), c.Param("id")); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// mapError translates service errors to HTTP status codes.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, learning.ErrMalformedFeedback),
		errors.Is(err, learning.ErrEmptySessionID),
		errors.Is(err, learning.ErrEmptyUserID),
		errors.Is(err, learning.ErrEmptyProfileID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, learning.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
