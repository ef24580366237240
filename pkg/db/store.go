package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/yumyai/metabin/pkg/model"
)

// Lineage columns stored on the contigs table, broadest to finest.
// The root rank is implied and not stored.
var lineageColumns = []string{
	"superkingdom", "phylum", "class", "order", "family", "genus", "species",
}

// BinStore reads the input tables (contigs with embedded k-mer coordinates,
// coverage, lineage; marker counts in long format) and persists the bin
// assignments of a run.
type BinStore struct {
	DB *sql.DB
}

// NewRunID issues an identifier for one persisted binning run.
func NewRunID() string {
	return "run-" + uuid.New().String()
}

// InitSchema creates the input and output tables if they do not exist.
func (s *BinStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contigs (
			contig TEXT PRIMARY KEY,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL DEFAULT 0,
			coverage REAL,
			superkingdom TEXT, phylum TEXT, class TEXT, "order" TEXT,
			family TEXT, genus TEXT, species TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS markers (
			contig TEXT NOT NULL,
			marker TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (contig, marker)
		)`,
		`CREATE TABLE IF NOT EXISTS bin_assignments (
			run_id TEXT NOT NULL,
			contig TEXT NOT NULL,
			cluster TEXT NOT NULL,
			completeness REAL,
			purity REAL,
			PRIMARY KEY (run_id, contig)
		)`,
	}

	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// LoadContigs reads the master contig table. Lineage is nil when every rank
// column of a row is null.
func (s *BinStore) LoadContigs(ctx context.Context) ([]*model.ContigRecord, error) {

	qstring := `
		SELECT contig, x, y, z, coverage,
		       superkingdom, phylum, class, "order", family, genus, species
		FROM contigs
		ORDER BY contig;
	`

	stm, err := s.DB.PrepareContext(ctx, qstring)
	if err != nil {
		return nil, err
	}
	defer stm.Close()

	rows, err := stm.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contigs []*model.ContigRecord

	for rows.Next() {
		var r model.ContigRecord
		var coverage sql.NullFloat64
		taxa := make([]sql.NullString, len(lineageColumns))

		if err := rows.Scan(
			&r.Contig, &r.X, &r.Y, &r.Z, &coverage,
			&taxa[0], &taxa[1], &taxa[2], &taxa[3], &taxa[4], &taxa[5], &taxa[6]); err != nil {
			return nil, fmt.Errorf("error scanning contig row: %w", err)
		}

		if coverage.Valid {
			cov := coverage.Float64
			r.Coverage = &cov
		}
		for i, t := range taxa {
			if t.Valid {
				if r.Lineage == nil {
					r.Lineage = make(map[string]string, len(lineageColumns))
				}
				r.Lineage[lineageColumns[i]] = t.String
			}
		}

		contigs = append(contigs, &r)
	}

	return contigs, rows.Err()
}

// LoadMarkers reads the marker table (long format) into the sparse wide shape
// the scorer consumes.
func (s *BinStore) LoadMarkers(ctx context.Context) (model.MarkerTable, error) {

	rows, err := s.DB.QueryContext(ctx, `SELECT contig, marker, count FROM markers;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markers := make(model.MarkerTable)

	for rows.Next() {
		var contig, marker string
		var count int
		if err := rows.Scan(&contig, &marker, &count); err != nil {
			return nil, fmt.Errorf("error scanning marker row: %w", err)
		}
		if _, ok := markers[contig]; !ok {
			markers[contig] = make(map[string]int)
		}
		markers[contig][marker] = count
	}

	return markers, rows.Err()
}

// SaveAssignments writes one row per contig for the given run. The whole run
// goes in a single transaction, either all contigs land or none do.
func (s *BinStore) SaveAssignments(ctx context.Context, runID string, contigs []*model.ContigRecord) error {

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stm, err := tx.PrepareContext(ctx, `
		INSERT INTO bin_assignments (run_id, contig, cluster, completeness, purity)
		VALUES (?, ?, ?, ?, ?);
	`)
	if err != nil {
		return err
	}
	defer stm.Close()

	for _, c := range contigs {
		var completeness, purity sql.NullFloat64
		if c.Completeness != nil {
			completeness = sql.NullFloat64{Float64: *c.Completeness, Valid: true}
		}
		if c.Purity != nil {
			purity = sql.NullFloat64{Float64: *c.Purity, Valid: true}
		}
		if _, err := stm.ExecContext(ctx, runID, c.Contig, c.Cluster, completeness, purity); err != nil {
			return fmt.Errorf("error saving assignment for %s: %w", c.Contig, err)
		}
	}

	return tx.Commit()
}
