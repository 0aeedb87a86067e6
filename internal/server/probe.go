// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/l3nkz/eteam/internal/monitor"
	"github.com/l3nkz/eteam/internal/service"
)

type probe struct {
	api           APIService
	energyMonitor monitor.EnergyDataProvider
}

var (
	_ service.Service     = (*probe)(nil)
	_ service.Initializer = (*probe)(nil)
)

// NewProbe creates a new probe service that provides health check endpoints
func NewProbe(api APIService, energyMonitor monitor.EnergyDataProvider) *probe {
	return &probe{
		api:           api,
		energyMonitor: energyMonitor,
	}
}

func (p *probe) Name() string {
	return "probe"
}

func (p *probe) Init() error {
	return p.api.Register("/probe/", "probe", "Health check endpoints", p.handlers())
}

// handlers returns HTTP handlers for health check endpoints
func (p *probe) handlers() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/probe/readyz", p.readyzHandler)
	mux.HandleFunc("/probe/livez", p.livezHandler)

	return mux
}

// readyzHandler handles readiness probe requests. It returns 200 once
// the monitor can produce a snapshot.
func (p *probe) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, err := p.energyMonitor.Snapshot()
	if err != nil {
		p.respondWithError(w, "not ready", "monitor service not operational")
		return
	}

	p.respondWithSuccess(w, "ok")
}

// livezHandler handles liveness probe requests
func (p *probe) livezHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, err := p.energyMonitor.Snapshot()
	if err != nil {
		p.respondWithError(w, "not alive", "monitor service not operational")
		return
	}

	p.respondWithSuccess(w, "alive")
}

func (p *probe) respondWithSuccess(w http.ResponseWriter, status string) {
	response := map[string]string{
		"status": status,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (p *probe) respondWithError(w http.ResponseWriter, status, reason string) {
	response := map[string]string{
		"status": status,
		"reason": reason,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
