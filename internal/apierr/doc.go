// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apierr defines the error taxonomy shared by every network-facing
// operation in pocketchat.
//
// Every failure that crosses a package boundary is an *Error carrying one
// Kind. Lower layers classify as early as possible; upper layers match with
// errors.As or IsKind and never inspect message text.
//
// # Usage
//
//	resp, err := c.Get(ctx, "/v1/models")
//	if apierr.IsKind(err, apierr.KindCancelled) {
//		return nil // user gave up, nothing to report
//	}
//	if apierr.IsRetryable(err) {
//		// safe to try again later
//	}
package apierr
