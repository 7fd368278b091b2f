package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ufmn/followup/internal/platform/table"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var datasetPattern = regexp.MustCompile(`^[a-z0-9_]+(/[a-z0-9_]+)?$`)

// PGLoader reads datasets from PostgreSQL. Dataset "ufmn/als_data" maps to
// table als_data in schema ufmn.
type PGLoader struct {
	db     Querier
	schema Schema
}

func NewPGLoader(db Querier, schema Schema) *PGLoader {
	return &PGLoader{db: db, schema: schema}
}

func (l *PGLoader) Load(ctx context.Context, dataset string) (*table.Table, error) {
	ident, err := datasetIdentifier(dataset)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.Query(ctx, "SELECT * FROM "+ident.Sanitize())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dataset, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, fd := range fields {
		header[i] = fd.Name
	}
	t, err := table.NewChecked(header...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dataset, err)
	}

	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dataset, err)
		}
		row := make([]table.Value, len(raw))
		for i, v := range raw {
			cell := fromPG(v)
			if k, ok := l.schema[header[i]]; ok {
				if cell, err = table.Convert(cell, k); err != nil {
					return nil, fmt.Errorf("load %s column %s: %w", dataset, header[i], err)
				}
			}
			row[i] = cell
		}
		if err := t.Append(row...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", dataset, err)
	}
	return t, nil
}

func datasetIdentifier(dataset string) (pgx.Identifier, error) {
	if !datasetPattern.MatchString(dataset) {
		return nil, fmt.Errorf("invalid dataset name %q", dataset)
	}
	return pgx.Identifier(strings.Split(dataset, "/")), nil
}

// fromPG maps a value decoded by pgx onto a table cell.
func fromPG(v any) table.Value {
	switch x := v.(type) {
	case nil:
		return table.Null()
	case int16:
		return table.Int(int64(x))
	case int32:
		return table.Int(int64(x))
	case int64:
		return table.Int(x)
	case float32:
		return table.Float(float64(x))
	case float64:
		return table.Float(x)
	case bool:
		return table.Bool(x)
	case string:
		return table.String(x)
	case time.Time:
		return table.Date(x)
	case [16]byte:
		return table.String(uuid.UUID(x).String())
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return table.Null()
		}
		return table.Float(f.Float64)
	}
	return table.String(fmt.Sprint(v))
}
