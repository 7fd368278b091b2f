package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufmn/followup/internal/platform/table"
)

var testSchema = Schema{
	"fecha_visita": table.KindDate,
	"lenguaje":     table.KindInt,
	"peso":         table.KindFloat,
	"portador_peg": table.KindBool,
}

const alsCSV = "\ufeffid_paciente,fecha_visita,lenguaje,peso,portador_peg\n" +
	"p1,2023-01-05,3,70.5,False\n" +
	"p1,2023-02-05,,NA,True\n" +
	"p2,05/03/2023,4,,\n"

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(alsCSV), testSchema)
	require.NoError(t, err)

	assert.Equal(t, []string{"id_paciente", "fecha_visita", "lenguaje", "peso", "portador_peg"}, tbl.Columns())
	require.Equal(t, 3, tbl.Len())

	assert.Equal(t, table.String("p1"), tbl.Get(0, "id_paciente"))
	assert.Equal(t, table.Int(3), tbl.Get(0, "lenguaje"))
	assert.Equal(t, table.Float(70.5), tbl.Get(0, "peso"))
	assert.Equal(t, table.Bool(false), tbl.Get(0, "portador_peg"))

	assert.True(t, tbl.Get(1, "lenguaje").IsNull())
	assert.True(t, tbl.Get(1, "peso").IsNull())

	d, ok := tbl.Get(2, "fecha_visita").Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC), d)
}

func TestReadCSV_ShortRecordsPadWithNull(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("a,b,c\n1,2\n"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.True(t, tbl.Get(0, "c").IsNull())
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), nil)
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,a\n1,2\n"), nil)
	assert.ErrorIs(t, err, table.ErrDuplicateColumn)

	_, err = ReadCSV(strings.NewReader("lenguaje\nthree\n"), testSchema)
	assert.Error(t, err)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(alsCSV), testSchema)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl, []string{"id_paciente", "lenguaje", "portador_peg"}))
	assert.Equal(t, "id_paciente,lenguaje,portador_peg\np1,3,False\np1,,True\np2,4,\n", buf.String())

	back, err := ReadCSV(&buf, testSchema)
	require.NoError(t, err)
	assert.Equal(t, tbl.Get(1, "portador_peg"), back.Get(1, "portador_peg"))

	assert.ErrorIs(t, WriteCSV(&buf, tbl, []string{"missing"}), table.ErrMissingColumn)
}

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema([]byte("columns:\n  fecha_visita: date\n  lenguaje: int\n  peso: float\n"))
	require.NoError(t, err)
	assert.Equal(t, table.KindDate, s["fecha_visita"])
	assert.Equal(t, table.KindInt, s["lenguaje"])
	assert.Equal(t, table.KindString, s.kind("unknown"))

	_, err = ParseSchema([]byte("columns:\n  x: complex\n"))
	assert.Error(t, err)

	merged := s.Merge(Schema{"lenguaje": table.KindFloat})
	assert.Equal(t, table.KindFloat, merged["lenguaje"])
	assert.Equal(t, table.KindInt, s["lenguaje"])
}

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("columns:\n  disnea: int\n"), 0o644))

	s, err := LoadSchemaFile(path)
	require.NoError(t, err)
	assert.Equal(t, table.KindInt, s["disnea"])

	_, err = LoadSchemaFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestExcel_RoundTrip(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(alsCSV), testSchema)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteExcel(&buf, tbl, nil, "Datos"))

	back, err := ReadExcel(&buf, ExcelOptions{Sheet: "Datos"}, testSchema)
	require.NoError(t, err)
	require.Equal(t, tbl.Len(), back.Len())
	assert.Equal(t, tbl.Columns(), back.Columns())
	for i := 0; i < tbl.Len(); i++ {
		for _, c := range tbl.Columns() {
			assert.True(t, tbl.Get(i, c).Equal(back.Get(i, c)), "row %d column %s", i, c)
		}
	}
}

func TestExcel_HeaderRow(t *testing.T) {
	src := table.New("titulo")
	require.NoError(t, src.Append(table.String("id_paciente")))
	require.NoError(t, src.Append(table.String("p9")))

	var buf bytes.Buffer
	require.NoError(t, WriteExcel(&buf, src, nil, ""))

	tbl, err := ReadExcel(bytes.NewReader(buf.Bytes()), ExcelOptions{HeaderRow: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id_paciente"}, tbl.Columns())
	assert.Equal(t, table.String("p9"), tbl.Get(0, "id_paciente"))

	_, err = ReadExcel(bytes.NewReader(buf.Bytes()), ExcelOptions{HeaderRow: 10}, nil)
	assert.Error(t, err)
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ufmn"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ufmn", "als_data.csv"), []byte(alsCSV), 0o644))

	nutr := table.New("id_paciente", "fecha_visita", "peso")
	require.NoError(t, nutr.Append(table.String("p1"), table.String("2023-01-05"), table.Float(71)))
	f, err := os.Create(filepath.Join(dir, "ufmn", "nutr_data.xlsx"))
	require.NoError(t, err)
	require.NoError(t, WriteExcel(f, nutr, nil, ""))
	require.NoError(t, f.Close())

	l := NewDirLoader(dir, testSchema)
	ctx := context.Background()

	als, err := l.Load(ctx, "ufmn/als_data")
	require.NoError(t, err)
	assert.Equal(t, 3, als.Len())

	got, err := l.Load(ctx, "ufmn/nutr_data")
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, table.Float(71), got.Get(0, "peso"))
	assert.Equal(t, table.KindDate, got.Get(0, "fecha_visita").Kind())

	_, err = l.Load(ctx, "ufmn/resp_data")
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	_, err = l.Load(ctx, "../etc/passwd")
	assert.Error(t, err)
}

func TestMapLoader_ReturnsCopies(t *testing.T) {
	orig := table.New("id_paciente")
	require.NoError(t, orig.Append(table.String("p1")))
	l := MapLoader{"ufmn/als_data": orig}

	got, err := l.Load(context.Background(), "ufmn/als_data")
	require.NoError(t, err)
	require.NoError(t, got.Set(0, "id_paciente", table.String("changed")))
	assert.Equal(t, table.String("p1"), orig.Get(0, "id_paciente"))

	_, err = l.Load(context.Background(), "ufmn/patients")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestDatasetIdentifier(t *testing.T) {
	id, err := datasetIdentifier("ufmn/als_data")
	require.NoError(t, err)
	assert.Equal(t, `"ufmn"."als_data"`, id.Sanitize())

	for _, bad := range []string{"", "ufmn/als-data", "a/b/c", "x; DROP TABLE y", "UFMN/x"} {
		_, err := datasetIdentifier(bad)
		assert.Error(t, err, bad)
	}
}

func TestFromPG(t *testing.T) {
	ts := time.Date(2023, 5, 1, 13, 30, 0, 0, time.UTC)
	var num pgtype.Numeric
	require.NoError(t, num.Scan("12.5"))

	tests := []struct {
		in   any
		want table.Value
	}{
		{nil, table.Null()},
		{int16(2), table.Int(2)},
		{int32(3), table.Int(3)},
		{int64(4), table.Int(4)},
		{float32(1.5), table.Float(1.5)},
		{2.25, table.Float(2.25)},
		{true, table.Bool(true)},
		{"x", table.String("x")},
		{ts, table.Date(ts)},
		{num, table.Float(12.5)},
		{pgtype.Numeric{}, table.Null()},
	}
	for _, tt := range tests {
		assert.True(t, tt.want.Equal(fromPG(tt.in)), "%#v", tt.in)
	}

	id := [16]byte{0x12, 0x34}
	assert.Equal(t, "12340000-0000-0000-0000-000000000000", fromPG(id).String())
}
