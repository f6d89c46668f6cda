// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog lists the models served by the chat server.
package catalog

import (
	"context"
	"encoding/json"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/client"
	"github.com/jeranaias/pocketchat/internal/model"
)

// ModelsPath is the model listing endpoint.
const ModelsPath = "/v1/models"

// Getter is the subset of *client.Client the service needs.
type Getter interface {
	Get(ctx context.Context, path string, opts ...client.RequestOption) (*client.Response, error)
}

// listResponse is the {object, data} envelope.
type listResponse struct {
	Object string             `json:"object"`
	Data   *[]model.ModelInfo `json:"data"`
}

// Service queries the model list.
type Service struct {
	getter Getter
}

// NewService creates a service over g.
func NewService(g Getter) *Service {
	return &Service{getter: g}
}

// GetModels returns every model the server reports, in server order.
func (s *Service) GetModels(ctx context.Context, opts ...client.RequestOption) ([]model.ModelInfo, error) {
	resp, err := s.getter.Get(ctx, ModelsPath, opts...)
	if err != nil {
		return nil, err
	}
	return decodeModels(resp.Data)
}

// GetModel returns the model with the given id.
func (s *Service) GetModel(ctx context.Context, id string) (*model.ModelInfo, error) {
	models, err := s.GetModels(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := model.FindModel(models, id)
	if !ok {
		return nil, apierr.ModelNotFound(id)
	}
	return &m, nil
}

// decodeModels unwraps the list envelope. A body without a data array is
// not a model list.
func decodeModels(data []byte) ([]model.ModelInfo, error) {
	var env listResponse
	if err := json.Unmarshal(data, &env); err != nil || env.Data == nil {
		return nil, apierr.Unknown("Invalid response format from models endpoint", err)
	}
	return *env.Data, nil
}
