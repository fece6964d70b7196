// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package event

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tomtom215/authwatch/internal/config"
)

// ctxCheckInterval is how many rows are read between context checks.
const ctxCheckInterval = 1000

// RawRow holds the unparsed field values of one input line.
type RawRow struct {
	Line int

	UserID    string
	Username  string
	EventTime string
	Timezone  string
	IPAddress string
	EventType string
	SessionID string
	DeviceAge string
	RiskScore string

	DeviceID string
	Browser  string
	City     string
}

// Reader reads raw rows from a CSV log export.
type Reader struct {
	columns config.ColumnsConfig
}

// NewReader creates a Reader for the given column layout.
func NewReader(columns config.ColumnsConfig) *Reader {
	return &Reader{columns: columns}
}

// columnBinding ties a header name to the RawRow field it fills.
type columnBinding struct {
	header   string
	required bool
	set      func(*RawRow, string)
}

func (r *Reader) bindings() []columnBinding {
	c := r.columns
	return []columnBinding{
		{c.UserID, true, func(row *RawRow, v string) { row.UserID = v }},
		{c.Username, true, func(row *RawRow, v string) { row.Username = v }},
		{c.EventTime, true, func(row *RawRow, v string) { row.EventTime = v }},
		{c.Timezone, true, func(row *RawRow, v string) { row.Timezone = v }},
		{c.IPAddress, true, func(row *RawRow, v string) { row.IPAddress = v }},
		{c.EventType, true, func(row *RawRow, v string) { row.EventType = v }},
		{c.SessionID, true, func(row *RawRow, v string) { row.SessionID = v }},
		{c.DeviceAge, true, func(row *RawRow, v string) { row.DeviceAge = v }},
		{c.RiskScore, true, func(row *RawRow, v string) { row.RiskScore = v }},
		{c.DeviceID, false, func(row *RawRow, v string) { row.DeviceID = v }},
		{c.Browser, false, func(row *RawRow, v string) { row.Browser = v }},
		{c.City, false, func(row *RawRow, v string) { row.City = v }},
	}
}

// Read parses every data row of src. A header missing any required column
// fails with a *MissingColumnsError before any row is returned.
func (r *Reader) Read(ctx context.Context, src io.Reader) ([]RawRow, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	type boundColumn struct {
		pos int
		set func(*RawRow, string)
	}
	var (
		bound   []boundColumn
		missing []string
	)
	for _, b := range r.bindings() {
		if b.header == "" {
			continue
		}
		pos, ok := index[strings.ToUpper(b.header)]
		if !ok {
			if b.required {
				missing = append(missing, b.header)
			}
			continue
		}
		bound = append(bound, boundColumn{pos: pos, set: b.set})
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	var rows []RawRow
	for n := 1; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", n, err)
		}
		if isBlank(record) {
			continue
		}

		line, _ := cr.FieldPos(0)
		row := RawRow{Line: line}
		for _, col := range bound {
			if col.pos < len(record) {
				col.set(&row, strings.TrimSpace(record[col.pos]))
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
