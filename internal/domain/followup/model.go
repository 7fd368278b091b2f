package followup

import (
	"time"

	"github.com/google/uuid"

	"github.com/ufmn/followup/internal/platform/table"
)

// Run describes one execution of the pipeline.
type Run struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Source            string    `db:"source" json:"source"`
	StartedAt         time.Time `db:"started_at" json:"started_at"`
	FinishedAt        time.Time `db:"finished_at" json:"finished_at"`
	Visits            int       `db:"visits" json:"visits"`
	Patients          int       `db:"patients" json:"patients"`
	DroppedMissingIDs int       `db:"dropped_ids" json:"dropped_missing_ids"`
	DroppedDuplicates int       `db:"dropped_dups" json:"dropped_duplicates"`
	Columns           []Column  `db:"columns" json:"columns"`
}

// Column is a column of the fused table and the kind of its values.
type Column struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Kinds returns the column kinds, defaulting unknown names to string.
func (r *Run) Kinds() map[string]table.Kind {
	kinds := make(map[string]table.Kind, len(r.Columns))
	for _, c := range r.Columns {
		k, err := table.ParseKind(c.Kind)
		if err != nil {
			k = table.KindString
		}
		kinds[c.Name] = k
	}
	return kinds
}

// columnsOf lists t's columns in order. All-null columns take their kind
// from the follow-up schema.
func columnsOf(t *table.Table) []Column {
	observed := t.Kinds()
	schema := Schema()
	cols := make([]Column, 0, len(observed))
	for _, name := range t.Columns() {
		k := observed[name]
		if k == table.KindNull {
			if sk, ok := schema[name]; ok {
				k = sk
			} else {
				k = table.KindString
			}
		}
		cols = append(cols, Column{Name: name, Kind: k.String()})
	}
	return cols
}

// countPatients returns the number of distinct patient ids in t.
func countPatients(t *table.Table) int {
	groups, err := t.GroupBy(PatientIDColumn)
	if err != nil {
		return 0
	}
	return len(groups)
}
