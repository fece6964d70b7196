// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/authwatch/internal/detection"
	"github.com/tomtom215/authwatch/internal/logging"
)

// File name prefixes of the three reports.
const (
	PrefixProcessed = "processed_"
	PrefixAnomalies = "anomalies_"
	PrefixSummary   = "summary_"
)

// Paths holds the three report file paths of one run.
type Paths struct {
	Processed string `json:"processed"`
	Anomalies string `json:"anomalies"`
	Summary   string `json:"summary"`
}

// List returns the paths in a fixed order.
func (p Paths) List() []string {
	return []string{p.Processed, p.Anomalies, p.Summary}
}

// Stem returns the input file name without directory and extension.
func Stem(inputPath string) string {
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Writer produces CSV reports through an in-memory DuckDB database.
type Writer struct {
	dir string
}

// NewWriter creates a writer for outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{dir: outputDir}
}

// FinalPaths returns where the reports for stem are published.
func (w *Writer) FinalPaths(stem string) Paths {
	return Paths{
		Processed: filepath.Join(w.dir, PrefixProcessed+stem+".csv"),
		Anomalies: filepath.Join(w.dir, PrefixAnomalies+stem+".csv"),
		Summary:   filepath.Join(w.dir, PrefixSummary+stem+".csv"),
	}
}

func stagedPath(final string) string {
	return filepath.Join(filepath.Dir(final), "."+filepath.Base(final)+".partial")
}

// Staged is a set of written but unpublished reports.
type Staged struct {
	Final  Paths
	staged Paths
}

// Stage writes all three reports to hidden partial files next to their final
// location. Nothing is visible under the final names until Publish.
func (w *Writer) Stage(ctx context.Context, stem string, results []detection.Result, summaries []detection.Summary) (*Staged, error) {
	if err := os.MkdirAll(w.dir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for report output
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	final := w.FinalPaths(stem)
	st := &Staged{
		Final: final,
		staged: Paths{
			Processed: stagedPath(final.Processed),
			Anomalies: stagedPath(final.Anomalies),
			Summary:   stagedPath(final.Summary),
		},
	}
	if err := w.write(ctx, st, results, summaries); err != nil {
		st.Discard()
		return nil, err
	}

	logging.Ctx(ctx).Debug().
		Str("stem", stem).
		Int("rows", len(results)).
		Int("users", len(summaries)).
		Msg("Reports staged")
	return st, nil
}

func (w *Writer) write(ctx context.Context, st *Staged, results []detection.Result, summaries []detection.Summary) error {
	db, err := openMemory()
	if err != nil {
		return err
	}
	defer closeQuietly(db)

	if err := createSchema(ctx, db); err != nil {
		return err
	}
	if err := insertResults(ctx, db, results); err != nil {
		return err
	}
	if err := insertSummaries(ctx, db, summaries); err != nil {
		return err
	}

	exports := []struct {
		query string
		path  string
	}{
		{selectProcessed + " ORDER BY row_id", st.staged.Processed},
		{selectProcessed + " WHERE is_anomaly ORDER BY row_id", st.staged.Anomalies},
		{selectSummary + " ORDER BY position", st.staged.Summary},
	}
	for _, ex := range exports {
		if err := copyCSV(ctx, db, ex.query, ex.path); err != nil {
			return err
		}
	}
	return nil
}

// Publish renames the staged files to their final names.
func (s *Staged) Publish() error {
	staged, final := s.staged.List(), s.Final.List()
	for i := range staged {
		if err := os.Rename(staged[i], final[i]); err != nil {
			return fmt.Errorf("publish %s: %w", filepath.Base(final[i]), err)
		}
	}
	return nil
}

// Discard removes any staged files. Missing files are ignored.
func (s *Staged) Discard() {
	for _, p := range s.staged.List() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", p).Msg("Failed to remove staged report")
		}
	}
}

func openMemory() (*sql.DB, error) {
	// Disable auto-install/auto-load to prevent hangs in restricted network environments
	db, err := sql.Open("duckdb", ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return nil, fmt.Errorf("open report database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close report database")
	}
}

// copyCSV writes the query result to path with a header row.
func copyCSV(ctx context.Context, db *sql.DB, query, path string) error {
	stmt := fmt.Sprintf("COPY (%s) TO %s (HEADER, DELIMITER ',')", query, quoteLiteral(path))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	return nil
}

// quoteLiteral returns s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
