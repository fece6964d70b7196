// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package paths builds raw-data file locations from daily file names.
//
// Daily logs are named Month_Day_Year.csv and live under
//
//	<root>/<RSA_DATA|AUTH_DATA>/<Month>_<Year>/<Month>_<Day>_<Year>.csv
package paths

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidName is returned for names that are not Month_Day_Year[.csv].
var ErrInvalidName = errors.New("invalid file name, expected Month_Day_Year.csv")

// ErrInvalidKind is returned for unknown data kinds.
var ErrInvalidKind = errors.New("invalid data kind, expected rsa or auth")

// Kind selects the raw-data subtree.
type Kind string

const (
	KindRSA  Kind = "rsa"
	KindAuth Kind = "auth"
)

// Dir returns the subdirectory holding files of this kind.
func (k Kind) Dir() (string, error) {
	switch k {
	case KindRSA:
		return "RSA_DATA", nil
	case KindAuth:
		return "AUTH_DATA", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
}

// Month is any run of letters, so localized month names are accepted.
var namePattern = regexp.MustCompile(`^(\p{L}+)_(\d{1,2})_(\d{4})$`)

// Resolve returns the full path of the daily file name under root.
// The .csv suffix is optional and appended when missing.
func Resolve(root string, kind Kind, name string) (string, error) {
	dir, err := kind.Dir()
	if err != nil {
		return "", err
	}

	name = strings.TrimSpace(name)
	base := strings.TrimSuffix(name, ".csv")
	m := namePattern.FindStringSubmatch(base)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	day, err := strconv.Atoi(m[2])
	if err != nil || day < 1 || day > 31 {
		return "", fmt.Errorf("%w: day %q out of range", ErrInvalidName, m[2])
	}

	month, year := m[1], m[3]
	return filepath.Join(root, dir, month+"_"+year, base+".csv"), nil
}
