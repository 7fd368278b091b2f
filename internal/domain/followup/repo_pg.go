package followup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ufmn/followup/internal/platform/db"
	"github.com/ufmn/followup/internal/platform/table"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type repoPG struct {
	pool   *pgxpool.Pool
	schema string
}

// NewRepoPG stores runs in the followup_run and followup_visit tables of
// schema.
func NewRepoPG(pool *pgxpool.Pool, schema string) Repository {
	return &repoPG{pool: pool, schema: schema}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) table(name string) string {
	return pgx.Identifier{r.schema, name}.Sanitize()
}

const runCols = `id, source, started_at, finished_at, visits, patients,
	dropped_ids, dropped_dups, columns`

var visitCols = []string{"run_id", "seq", PatientIDColumn, VisitDateColumn, ColKingsC, ColMitosC, "data"}

func (r *repoPG) SaveRun(ctx context.Context, run *Run, visits *table.Table) error {
	if err := visits.Require(JoinKeys...); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	cols, err := json.Marshal(run.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}

	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO `+r.table("followup_run")+` (`+runCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			run.ID, run.Source, run.StartedAt, run.FinishedAt, run.Visits, run.Patients,
			run.DroppedMissingIDs, run.DroppedDuplicates, cols,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		rows, err := visitRows(run, visits)
		if err != nil {
			return err
		}
		if _, err := r.conn(ctx).CopyFrom(ctx,
			pgx.Identifier{r.schema, "followup_visit"}, visitCols, pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy visits: %w", err)
		}
		return nil
	})
}

// visitRows flattens visits into COPY rows. Every column, keys included,
// is kept in the JSON document so a stored run reloads losslessly.
func visitRows(run *Run, visits *table.Table) ([][]any, error) {
	rows := make([][]any, 0, visits.Len())
	for i := 0; i < visits.Len(); i++ {
		pid, ok := visits.Get(i, PatientIDColumn).Str()
		if !ok {
			return nil, fmt.Errorf("visit %d: patient id is not a string", i)
		}
		date, ok := visits.Get(i, VisitDateColumn).Time()
		if !ok {
			return nil, fmt.Errorf("visit %d: missing visit date", i)
		}
		data, err := json.Marshal(visits.Record(i))
		if err != nil {
			return nil, fmt.Errorf("encode visit %d: %w", i, err)
		}
		rows = append(rows, []any{
			run.ID, i, pid, date,
			smallint(visits.Get(i, ColKingsC)),
			smallint(visits.Get(i, ColMitosC)),
			data,
		})
	}
	return rows, nil
}

func smallint(v table.Value) any {
	n, ok := v.Int()
	if !ok {
		return nil
	}
	return int16(n)
}

func (r *repoPG) LatestRun(ctx context.Context) (*Run, *table.Table, error) {
	var run Run
	var cols []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+runCols+` FROM `+r.table("followup_run")+`
		ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.Source, &run.StartedAt, &run.FinishedAt, &run.Visits, &run.Patients,
		&run.DroppedMissingIDs, &run.DroppedDuplicates, &cols)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNoRun
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query latest run: %w", err)
	}
	if err := json.Unmarshal(cols, &run.Columns); err != nil {
		return nil, nil, fmt.Errorf("decode run columns: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT data FROM `+r.table("followup_visit")+`
		WHERE run_id = $1 ORDER BY seq`, run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, nil, fmt.Errorf("scan visit: %w", err)
		}
		docs = append(docs, data)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate visits: %w", err)
	}

	t, err := decodeVisits(&run, docs)
	if err != nil {
		return nil, nil, err
	}
	return &run, t, nil
}

// decodeVisits rebuilds a table from stored visit documents.
func decodeVisits(run *Run, docs [][]byte) (*table.Table, error) {
	names := make([]string, len(run.Columns))
	for i, c := range run.Columns {
		names[i] = c.Name
	}
	t, err := table.NewChecked(names...)
	if err != nil {
		return nil, fmt.Errorf("decode visits: %w", err)
	}
	kinds := run.Kinds()

	for n, doc := range docs {
		dec := json.NewDecoder(bytes.NewReader(doc))
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode visit %d: %w", n, err)
		}
		row := make([]table.Value, len(names))
		for i, name := range names {
			v, err := table.FromJSON(raw[name], kinds[name])
			if err != nil {
				return nil, fmt.Errorf("decode visit %d column %s: %w", n, name, err)
			}
			row[i] = v
		}
		if err := t.Append(row...); err != nil {
			return nil, err
		}
	}
	if err := t.SetKeys(JoinKeys...); err != nil {
		return nil, err
	}
	return t, nil
}
