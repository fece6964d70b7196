// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide (thread-safe, caches
// struct info). Fields are reported by their koanf, json or query tag so
// that configuration errors read "detection.dbscan.min_points must be at
// least 2" rather than Go field names.
//
// Custom tags:
//   - identifier: letters, digits, '_' and '-' only (feature-set names)
//
// Example usage:
//
//	type profilesQuery struct {
//	    Limit  int `query:"limit" validate:"min=1,max=1000"`
//	    Offset int `query:"offset" validate:"min=0"`
//	}
//
//	if err := validation.ValidateStruct(&q); err != nil {
//	    apiErr := err.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
package validation
