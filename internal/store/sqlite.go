package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/xbrl-cli/internal/instance"
)

// ErrNotFound indicates the requested filing is not in the store.
var ErrNotFound = eris.New("store: filing not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS filings (
	id         TEXT PRIMARY KEY,
	location   TEXT NOT NULL UNIQUE,
	entity     TEXT NOT NULL,
	taxonomy   TEXT NOT NULL,
	fact_count INTEGER NOT NULL,
	parsed_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	filing_id  TEXT NOT NULL REFERENCES filings(id) ON DELETE CASCADE,
	concept    TEXT NOT NULL,
	entity     TEXT NOT NULL,
	period     TEXT NOT NULL,
	unit       TEXT,
	value      REAL,
	text_value TEXT,
	decimals   INTEGER,
	dimensions TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_filings_location ON filings(location);
CREATE INDEX IF NOT EXISTS idx_filings_entity ON filings(entity);
CREATE INDEX IF NOT EXISTS idx_facts_filing_id ON facts(filing_id);
CREATE INDEX IF NOT EXISTS idx_facts_concept ON facts(concept);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FilingFromInstance flattens a parsed instance into a Filing row and its
// fact rows, ready for SaveFiling.
func FilingFromInstance(inst *instance.Instance) (*Filing, []Fact) {
	filing := &Filing{
		ID:        uuid.New().String(),
		Location:  inst.Location,
		Taxonomy:  inst.Taxonomy.SchemaLocations(),
		FactCount: len(inst.Facts),
		ParsedAt:  time.Now().UTC(),
	}
	facts := make([]Fact, 0, len(inst.Facts))
	for _, f := range inst.Facts {
		if filing.Entity == "" {
			filing.Entity = f.Context.Entity
		}
		row := Fact{
			ID:         uuid.New().String(),
			FilingID:   filing.ID,
			Concept:    f.Concept.Name,
			Entity:     f.Context.Entity,
			Period:     f.Context.Period.String(),
			Dimensions: map[string]string{},
		}
		for _, seg := range f.Context.Segments {
			row.Dimensions[seg.Dimension.Name] = seg.Member.Name
		}
		if f.Kind == instance.FactNumeric {
			row.Unit = f.Unit.String()
			row.Value = f.Value
			row.Decimals = f.Decimals
		} else {
			row.Text = f.Text
		}
		facts = append(facts, row)
	}
	return filing, facts
}

// SaveFiling stores the filing and its facts in one transaction.
func (s *SQLiteStore) SaveFiling(ctx context.Context, filing *Filing, facts []Fact) error {
	taxonomyJSON, err := json.Marshal(filing.Taxonomy)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal taxonomy")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO filings (id, location, entity, taxonomy, fact_count, parsed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		filing.ID, filing.Location, filing.Entity, string(taxonomyJSON), filing.FactCount, filing.ParsedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert filing %s", filing.Location)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO facts (id, filing_id, concept, entity, period, unit, value, text_value, decimals, dimensions)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare fact insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, f := range facts {
		dimsJSON, err := json.Marshal(f.Dimensions)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal dimensions")
		}
		var unit sql.NullString
		if f.Unit != "" {
			unit = sql.NullString{String: f.Unit, Valid: true}
		}
		var text sql.NullString
		if f.Text != "" {
			text = sql.NullString{String: f.Text, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			f.ID, f.FilingID, f.Concept, f.Entity, f.Period,
			unit, nullFloat(f.Value), text, nullInt(f.Decimals), string(dimsJSON),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert fact %s", f.Concept)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) GetFiling(ctx context.Context, id string) (*Filing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, location, entity, taxonomy, fact_count, parsed_at FROM filings WHERE id = ?`, id)
	return scanFiling(row)
}

func (s *SQLiteStore) FindFilingByLocation(ctx context.Context, location string) (*Filing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, location, entity, taxonomy, fact_count, parsed_at FROM filings WHERE location = ?`, location)
	return scanFiling(row)
}

func (s *SQLiteStore) ListFacts(ctx context.Context, filter FactFilter) ([]Fact, error) {
	query := `SELECT id, filing_id, concept, entity, period, unit, value, text_value, decimals, dimensions
	          FROM facts WHERE 1=1`
	var args []any

	if filter.FilingID != "" {
		query += ` AND filing_id = ?`
		args = append(args, filter.FilingID)
	}
	if filter.Concept != "" {
		query += ` AND concept = ?`
		args = append(args, filter.Concept)
	}
	query += ` ORDER BY concept, period`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list facts")
	}
	defer rows.Close() //nolint:errcheck

	var facts []Fact
	for rows.Next() {
		var f Fact
		var unit, text, dimsJSON sql.NullString
		var value sql.NullFloat64
		var decimals sql.NullInt64
		if err := rows.Scan(&f.ID, &f.FilingID, &f.Concept, &f.Entity, &f.Period,
			&unit, &value, &text, &decimals, &dimsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		f.Unit = unit.String
		f.Text = text.String
		if value.Valid {
			v := value.Float64
			f.Value = &v
		}
		if decimals.Valid {
			d := int(decimals.Int64)
			f.Decimals = &d
		}
		if dimsJSON.Valid {
			if err := json.Unmarshal([]byte(dimsJSON.String), &f.Dimensions); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal dimensions")
			}
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: list facts iterate")
}

func (s *SQLiteStore) DeleteFiling(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM filings WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete filing %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

// helpers

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFiling(row scannable) (*Filing, error) {
	var f Filing
	var taxonomyJSON string

	err := row.Scan(&f.ID, &f.Location, &f.Entity, &taxonomyJSON, &f.FactCount, &f.ParsedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "scan")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan filing")
	}

	if err := json.Unmarshal([]byte(taxonomyJSON), &f.Taxonomy); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal taxonomy")
	}
	return &f, nil
}
