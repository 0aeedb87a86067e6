// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/l3nkz/eteam/internal/control"
	"github.com/l3nkz/eteam/internal/service"
)

// Controller moves processes in and out of energy scheduling.
type Controller interface {
	Start(pid int) error
	Stop(pid int) error
}

// ControlAPI exposes the controller over HTTP
type ControlAPI struct {
	logger    *slog.Logger
	apiServer APIService
	ctl       Controller
}

// ControlResponse is the JSON reply of the control endpoints
type ControlResponse struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Reason string `json:"reason,omitempty"`
}

var (
	_ service.Service     = (*ControlAPI)(nil)
	_ service.Initializer = (*ControlAPI)(nil)
)

// NewControlAPI creates a new control API service
func NewControlAPI(apiServer APIService, ctl Controller, logger *slog.Logger) *ControlAPI {
	return &ControlAPI{
		logger:    logger.With("service", "control-api"),
		apiServer: apiServer,
		ctl:       ctl,
	}
}

func (c *ControlAPI) Name() string {
	return "control-api"
}

func (c *ControlAPI) Init() error {
	c.logger.Info("Initializing control endpoints")

	if err := c.apiServer.Register(
		"/api/v1/start",
		"Start",
		"Turn a process into an energy task",
		http.HandlerFunc(c.handleStart),
	); err != nil {
		return err
	}

	if err := c.apiServer.Register(
		"/api/v1/stop",
		"Stop",
		"Release a process from energy scheduling",
		http.HandlerFunc(c.handleStop),
	); err != nil {
		return err
	}

	return nil
}

func (c *ControlAPI) handleStart(w http.ResponseWriter, r *http.Request) {
	c.handle(w, r, c.ctl.Start, "started")
}

func (c *ControlAPI) handleStop(w http.ResponseWriter, r *http.Request) {
	c.handle(w, r, c.ctl.Stop, "stopped")
}

func (c *ControlAPI) handle(w http.ResponseWriter, r *http.Request, op func(int) error, verb string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pidArg := r.URL.Query().Get("pid")
	pid, err := strconv.Atoi(pidArg)
	if err != nil {
		c.writeJSONResponse(w, http.StatusBadRequest, ControlResponse{
			Status: "error",
			Reason: fmt.Sprintf("invalid pid %q", pidArg),
		})
		return
	}

	if err := op(pid); err != nil {
		c.logger.Warn("Control request failed", "pid", pid, "error", err)
		c.writeJSONResponse(w, statusOf(err), ControlResponse{
			Status: "error",
			PID:    pid,
			Reason: err.Error(),
		})
		return
	}

	c.logger.Info("Control request handled", "pid", pid, "status", verb)
	c.writeJSONResponse(w, http.StatusOK, ControlResponse{
		Status: verb,
		PID:    pid,
	})
}

// statusOf maps controller errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, control.ErrInvalidPID):
		return http.StatusBadRequest
	case errors.Is(err, control.ErrNoSuchProcess):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONResponse writes a JSON response with the given status code
func (c *ControlAPI) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Error("failed to encode JSON response", "error", err)
	}
}
