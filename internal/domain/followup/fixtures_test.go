package followup

import (
	"testing"
	"time"

	"github.com/ufmn/followup/internal/platform/source"
	"github.com/ufmn/followup/internal/platform/table"
)

func day(d int) table.Value {
	return table.Date(date(d))
}

func date(d int) time.Time {
	return time.Date(2023, time.January, d, 0, 0, 0, 0, time.UTC)
}

func newTable(t *testing.T, cols []string, rows ...[]table.Value) *table.Table {
	t.Helper()
	tbl := table.New(cols...)
	for _, r := range rows {
		if err := tbl.Append(r...); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return tbl
}

func str(s string) table.Value { return table.String(s) }
func num(n int64) table.Value  { return table.Int(n) }
func flag(b bool) table.Value  { return table.Bool(b) }

var null = table.Null()

// stagingTable builds one visit per override for patient p1 on consecutive
// days. Every staging item defaults to 4 and both PEG flags to false.
func stagingTable(t *testing.T, overrides ...map[string]table.Value) *table.Table {
	t.Helper()
	tbl := table.New(append(append([]string{}, JoinKeys...), StagingInputs...)...)
	for i, o := range overrides {
		rec := map[string]table.Value{
			PatientIDColumn: str("p1"),
			VisitDateColumn: day(i + 1),
		}
		for _, c := range StagingInputs {
			rec[c] = num(4)
		}
		rec[ColPortadorPEG] = flag(false)
		rec[ColIndicacionPEG] = flag(false)
		for k, v := range o {
			rec[k] = v
		}
		if err := tbl.AppendMap(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return tbl
}

var (
	alsColumns = []string{
		PatientIDColumn, VisitDateColumn,
		ColLenguaje, ColSalivacion, ColDeglucion, ColEscritura,
		ColCortarSinPEG, ColCortarConPEG, ColVestido, ColCama,
		ColCaminar, ColSubirEscaleras,
	}
	nutrColumns = []string{PatientIDColumn, VisitDateColumn, ColPortadorPEG, ColIndicacionPEG}
	respColumns = []string{PatientIDColumn, VisitDateColumn, ColDisnea, ColOrtopnea, ColInsufResp, ColPortadorVMNI}
)

// followupSources returns three sources for two patients:
//
//	p1 day 1: reported by all three sources
//	p1 day 2: ALS only, cortar_con_peg 2
//	p2 day 3: ALS and respiratory, disnea 0
func followupSources(t *testing.T) source.MapLoader {
	t.Helper()
	als := newTable(t, alsColumns,
		[]table.Value{str("p1"), day(1), num(4), num(4), num(4), num(4), num(4), num(4), num(4), num(4), num(4), num(4)},
		[]table.Value{str("p1"), day(2), num(4), num(4), num(4), num(4), num(4), num(2), num(4), num(4), num(4), num(4)},
		[]table.Value{str("p2"), day(3), num(3), num(3), num(3), num(3), num(3), null, num(3), num(3), num(3), num(3)},
	)
	nutr := newTable(t, nutrColumns,
		[]table.Value{str("p1"), day(1), flag(true), flag(false)},
	)
	resp := newTable(t, respColumns,
		[]table.Value{str("p1"), day(1), num(4), num(4), num(4), flag(false)},
		[]table.Value{str("p2"), day(3), num(0), num(2), num(3), flag(true)},
	)
	return source.MapLoader{
		DatasetALS:         als,
		DatasetNutrition:   nutr,
		DatasetRespiratory: resp,
	}
}

func sourceTables(t *testing.T) []*table.Table {
	t.Helper()
	m := followupSources(t)
	return []*table.Table{m[DatasetALS], m[DatasetNutrition], m[DatasetRespiratory]}
}
