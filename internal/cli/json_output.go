// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - The --json envelope shared by all commands.
//
// In JSON mode stdout carries exactly one envelope; anything meant for a
// person goes to stderr.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/pocketchat/internal/health"
	"github.com/jeranaias/pocketchat/internal/model"
)

// JSONResponse is the envelope written by every command in JSON mode.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful envelope.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a failed envelope.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := Describe(err)
	return &JSONResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the envelope to w, indented.
func (r *JSONResponse) Print(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// String returns the envelope as indented JSON.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s"}`, err)
	}
	return string(data)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// VersionData is the payload of `version --json`.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// ModelsData is the payload of `models --json`.
type ModelsData struct {
	Server string            `json:"server"`
	Models []model.ModelInfo `json:"models"`
}

// HealthData is the payload of `health --json`.
type HealthData struct {
	Server  string               `json:"server,omitempty"`
	Summary *health.Summary      `json:"summary,omitempty"`
	Probes  []health.ProbeResult `json:"probes,omitempty"`
}

// AskData is the payload of `ask --json`.
type AskData struct {
	Model        string `json:"model"`
	Response     string `json:"response"`
	FinishReason string `json:"finish_reason,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// ConfigValue is the payload of `config get|set --json`.
type ConfigValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
