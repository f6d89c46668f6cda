// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders saved chats as Markdown, JSON or standalone HTML.
//
// # Usage
//
//	exp, err := export.New(export.FormatHTML, export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.WriteFile(conv, exp, ".", "")
package export
