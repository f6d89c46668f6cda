// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo is one entry of the server's /v1/models listing.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Object is the OpenAI object type, normally "model"
	Object string `json:"object,omitempty"`

	// Created is the Unix time the model was registered, if reported
	Created int64 `json:"created,omitempty"`

	// OwnedBy names the publisher, if reported
	OwnedBy string `json:"owned_by,omitempty"`
}

// DisplayName returns the last path segment of the ID, without a file
// extension, which is how local servers usually name model files.
func (m ModelInfo) DisplayName() string {
	name := m.ID
	if i := strings.LastIndexAny(name, `/\`); i >= 0 && i < len(name)-1 {
		name = name[i+1:]
	}
	for _, ext := range []string{".gguf", ".bin", ".safetensors"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// CreatedAt returns Created as a time, or the zero time if unknown.
func (m ModelInfo) CreatedAt() time.Time {
	if m.Created <= 0 {
		return time.Time{}
	}
	return time.Unix(m.Created, 0)
}

// SortModels orders models by ID for stable display.
func SortModels(models []ModelInfo) {
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})
}

// FindModel returns the model with the given ID.
func FindModel(models []ModelInfo, id string) (ModelInfo, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}
