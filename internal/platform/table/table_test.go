package table

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) Value {
	return Date(time.Date(2023, time.January, d, 0, 0, 0, 0, time.UTC))
}

func TestValue_NullIsDistinctFromZero(t *testing.T) {
	assert.True(t, Null().IsNull())
	assert.False(t, Int(0).IsNull())
	assert.False(t, Bool(false).IsNull())
	assert.False(t, Null().Equal(Int(0)))
	assert.False(t, Null().Equal(Bool(false)))
	assert.True(t, Null().Equal(Null()))
}

func TestValue_Accessors(t *testing.T) {
	n, ok := Int(3).Int()
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	n, ok = Float(2.0).Int()
	assert.True(t, ok)
	assert.Equal(t, int64(2), n)

	_, ok = Float(2.5).Int()
	assert.False(t, ok)

	_, ok = Null().Int()
	assert.False(t, ok)

	b, ok := Bool(true).Bool()
	assert.True(t, ok)
	assert.True(t, b)

	assert.True(t, Float(nanValue()).IsNull())
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}

func TestValue_DateTruncatesToDay(t *testing.T) {
	v := Date(time.Date(2023, 3, 4, 15, 30, 0, 0, time.FixedZone("x", 3600)))
	assert.Equal(t, "2023-03-04", v.String())
	assert.True(t, v.Equal(Date(time.Date(2023, 3, 4, 0, 0, 0, 0, time.UTC))))
}

func TestValue_CompareNullsLast(t *testing.T) {
	assert.Equal(t, -1, Int(1).Compare(Int(2)))
	assert.Equal(t, 1, Null().Compare(Int(2)))
	assert.Equal(t, -1, Int(2).Compare(Null()))
	assert.Equal(t, 0, Null().Compare(Null()))
	assert.Equal(t, -1, day(1).Compare(day(2)))
	assert.Equal(t, 0, Int(2).Compare(Float(2)))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		want Value
	}{
		{"", KindInt, Null()},
		{"NaN", KindFloat, Null()},
		{"NA", KindBool, Null()},
		{"3", KindInt, Int(3)},
		{"3.0", KindInt, Int(3)},
		{"True", KindBool, Bool(true)},
		{"0", KindBool, Bool(false)},
		{"Sí", KindBool, Bool(true)},
		{"2023-01-05", KindDate, day(5)},
		{"05/01/2023", KindDate, day(5)},
		{"2023-01-05 10:00:00", KindDate, day(5)},
		{" abc ", KindString, String("abc")},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in, tt.kind)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "Parse(%q, %s) = %v, want %v", tt.in, tt.kind, got, tt.want)
	}

	_, err := Parse("abc", KindInt)
	assert.Error(t, err)
	_, err = Parse("maybe", KindBool)
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	v, err := Convert(Int(1), KindBool)
	require.NoError(t, err)
	assert.True(t, v.Equal(Bool(true)))

	v, err = Convert(String("4"), KindInt)
	require.NoError(t, err)
	assert.True(t, v.Equal(Int(4)))

	v, err = Convert(Null(), KindDate)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestValue_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(map[string]Value{
		"a": Int(2),
		"b": Null(),
		"c": Bool(false),
		"d": day(3),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2,"b":null,"c":false,"d":"2023-01-03"}`, string(out))
}

func TestNew_PanicsOnDuplicateColumn(t *testing.T) {
	assert.Panics(t, func() { New("a", "a") })
	_, err := NewChecked("a", "a")
	assert.ErrorIs(t, err, ErrDuplicateColumn)
}

func TestTable_AppendAndGet(t *testing.T) {
	tb := New("id", "x")
	require.NoError(t, tb.Append(String("p1"), Int(1)))
	require.NoError(t, tb.AppendMap(map[string]Value{"id": String("p2")}))

	assert.ErrorIs(t, tb.Append(String("p3")), ErrRowWidth)
	assert.ErrorIs(t, tb.AppendMap(map[string]Value{"nope": Int(1)}), ErrMissingColumn)

	assert.Equal(t, 2, tb.Len())
	assert.True(t, tb.Get(0, "x").Equal(Int(1)))
	assert.True(t, tb.Get(1, "x").IsNull())
	assert.True(t, tb.Get(0, "absent").IsNull())
	assert.ErrorIs(t, tb.Set(0, "absent", Int(1)), ErrMissingColumn)
}

func TestTable_RequireAndKeys(t *testing.T) {
	tb := New("id", "date")
	assert.NoError(t, tb.Require("id", "date"))
	assert.ErrorIs(t, tb.Require("id", "other"), ErrMissingColumn)
	assert.ErrorIs(t, tb.SetKeys("other"), ErrMissingColumn)
	require.NoError(t, tb.SetKeys("id", "date"))
	assert.Equal(t, []string{"id", "date"}, tb.Keys())
}

func TestTable_CloneIsDeep(t *testing.T) {
	tb := New("x")
	require.NoError(t, tb.Append(Int(1)))
	c := tb.Clone()
	require.NoError(t, c.Set(0, "x", Int(9)))
	c.AddColumn("y")

	assert.True(t, tb.Get(0, "x").Equal(Int(1)))
	assert.False(t, tb.Has("y"))
}

func TestTable_DeriveAndSelect(t *testing.T) {
	tb := New("a", "b")
	require.NoError(t, tb.Append(Int(1), Int(2)))
	require.NoError(t, tb.Append(Int(3), Null()))

	tb.Derive("sum", func(r Row) Value {
		a, ok1 := r.Get("a").Int()
		b, ok2 := r.Get("b").Int()
		if !ok1 || !ok2 {
			return Null()
		}
		return Int(a + b)
	})
	assert.True(t, tb.Get(0, "sum").Equal(Int(3)))
	assert.True(t, tb.Get(1, "sum").IsNull())

	sel, err := tb.Select("sum", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"sum", "a"}, sel.Columns())

	_, err = tb.Select("missing")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestTable_SortByStableNullsLast(t *testing.T) {
	tb := New("id", "d", "tag")
	require.NoError(t, tb.Append(String("b"), day(2), String("1")))
	require.NoError(t, tb.Append(String("a"), Null(), String("2")))
	require.NoError(t, tb.Append(String("a"), day(1), String("3")))
	require.NoError(t, tb.Append(String("a"), day(1), String("4")))

	require.NoError(t, tb.SortBy("id", "d"))

	var tags []string
	for i := 0; i < tb.Len(); i++ {
		tags = append(tags, tb.Get(i, "tag").String())
	}
	assert.Equal(t, []string{"3", "4", "2", "1"}, tags)
}

func TestTable_DropNullAndDuplicates(t *testing.T) {
	tb := New("id", "d", "x")
	require.NoError(t, tb.Append(String("a"), day(1), Int(1)))
	require.NoError(t, tb.Append(Null(), day(1), Int(2)))
	require.NoError(t, tb.Append(String("a"), day(1), Int(3)))
	require.NoError(t, tb.Append(String("a"), Null(), Int(4)))

	n, err := tb.DropNull("id", "d")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tb.DropDuplicates("id", "d")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, tb.Len())
	assert.True(t, tb.Get(0, "x").Equal(Int(1)))
}

func TestConcat(t *testing.T) {
	a := New("x")
	require.NoError(t, a.Append(Int(1)))
	b := New("x")
	require.NoError(t, b.Append(Int(2)))

	c, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = Concat(a, New("y"))
	assert.Error(t, err)
}

func TestGroupBy_FirstAppearanceOrderSkipsNullKeys(t *testing.T) {
	tb := New("id", "x")
	require.NoError(t, tb.Append(String("b"), Int(1)))
	require.NoError(t, tb.Append(String("a"), Int(2)))
	require.NoError(t, tb.Append(Null(), Int(3)))
	require.NoError(t, tb.Append(String("b"), Int(4)))

	groups, err := tb.GroupBy("id")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.True(t, groups[0].Key[0].Equal(String("b")))
	assert.Equal(t, []int{0, 3}, groups[0].Rows)
	assert.Equal(t, []int{1}, groups[1].Rows)
}

func TestFillForwardAndBackward(t *testing.T) {
	tb := New("id", "x")
	for _, v := range []Value{Null(), Int(1), Null(), Int(2), Null()} {
		require.NoError(t, tb.Append(String("a"), v))
	}
	rows := []int{0, 1, 2, 3, 4}

	ff := tb.Clone()
	ff.FillForward(rows, "x", "not-a-column")
	assert.True(t, ff.Get(0, "x").IsNull(), "leading null stays null")
	assert.True(t, ff.Get(2, "x").Equal(Int(1)))
	assert.True(t, ff.Get(4, "x").Equal(Int(2)))

	bf := tb.Clone()
	bf.FillBackward(rows, "x")
	assert.True(t, bf.Get(0, "x").Equal(Int(1)))
	assert.True(t, bf.Get(2, "x").Equal(Int(2)))
	assert.True(t, bf.Get(4, "x").IsNull(), "trailing null stays null")
}

func TestFillForwardBy_DoesNotLeakAcrossGroups(t *testing.T) {
	tb := New("id", "x")
	require.NoError(t, tb.Append(String("a"), Int(1)))
	require.NoError(t, tb.Append(String("b"), Null()))
	require.NoError(t, tb.Append(String("a"), Null()))

	require.NoError(t, tb.FillForwardBy([]string{"id"}, "x"))
	assert.True(t, tb.Get(1, "x").IsNull())
	assert.True(t, tb.Get(2, "x").Equal(Int(1)))

	require.NoError(t, tb.FillBackwardBy([]string{"id"}, "x"))
	assert.True(t, tb.Get(1, "x").IsNull())
}

func TestFromJSON(t *testing.T) {
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"n":3,"f":2.5,"b":true,"d":"2023-01-04","x":null}`), &decoded))

	v, err := FromJSON(decoded["n"], KindInt)
	require.NoError(t, err)
	assert.Equal(t, Int(3), v)

	v, err = FromJSON(decoded["f"], KindFloat)
	require.NoError(t, err)
	assert.Equal(t, Float(2.5), v)

	v, err = FromJSON(decoded["b"], KindBool)
	require.NoError(t, err)
	assert.Equal(t, Bool(true), v)

	v, err = FromJSON(decoded["d"], KindDate)
	require.NoError(t, err)
	assert.True(t, day(4).Equal(v))

	v, err = FromJSON(decoded["x"], KindInt)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = FromJSON([]any{1}, KindInt)
	assert.Error(t, err)
}

func TestTable_Kinds(t *testing.T) {
	tbl := New("id", "score", "empty")
	require.NoError(t, tbl.Append(String("p1"), Null(), Null()))
	require.NoError(t, tbl.Append(String("p2"), Int(3), Null()))

	assert.Equal(t, map[string]Kind{"id": KindString, "score": KindInt, "empty": KindNull}, tbl.Kinds())
}
