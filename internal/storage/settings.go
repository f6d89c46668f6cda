// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "context"

// Settings are the user's persisted selections. The chat session reads only
// these two fields; everything else lives in the config file.
type Settings struct {
	ServerURL string `json:"serverUrl,omitempty"`
	Model     string `json:"model,omitempty"`
}

// UserProfile holds display preferences for the user.
type UserProfile struct {
	Name string `json:"name,omitempty"`
}

// LoadSettings returns the stored settings, or zero values if none.
func LoadSettings(ctx context.Context, s Store) (Settings, error) {
	var v Settings
	_, err := s.Get(ctx, KeySettings, &v)
	return v, err
}

// SaveSettings stores v.
func SaveSettings(ctx context.Context, s Store, v Settings) error {
	return s.Set(ctx, KeySettings, v)
}

// LoadUserProfile returns the stored profile, or zero values if none.
func LoadUserProfile(ctx context.Context, s Store) (UserProfile, error) {
	var v UserProfile
	_, err := s.Get(ctx, KeyUserProfile, &v)
	return v, err
}

// SaveUserProfile stores v.
func SaveUserProfile(ctx context.Context, s Store, v UserProfile) error {
	return s.Set(ctx, KeyUserProfile, v)
}
