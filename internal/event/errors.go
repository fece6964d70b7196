// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package event

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingColumns is returned when the input header lacks required columns.
var ErrMissingColumns = errors.New("missing required columns")

// ErrNoHeader is returned for an input without a header row.
var ErrNoHeader = errors.New("input has no header row")

// MissingColumnsError names the columns absent from the header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumns, strings.Join(e.Columns, ", "))
}

// Unwrap allows errors.Is(err, ErrMissingColumns).
func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingColumns
}
