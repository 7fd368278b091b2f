package table

// Group is one partition of a table: the shared key values and the member
// row indices in table order.
type Group struct {
	Key  []Value
	Rows []int
}

// GroupBy partitions rows by the values in cols. Groups are returned in
// order of first appearance. Rows with a null in any key column belong to
// no group.
func (t *Table) GroupBy(cols ...string) ([]Group, error) {
	if err := t.Require(cols...); err != nil {
		return nil, err
	}
	var groups []Group
	pos := make(map[string]int)
	for i, r := range t.rows {
		if t.hasNull(r, cols) {
			continue
		}
		k := t.rowKey(r, cols)
		g, ok := pos[k]
		if !ok {
			key := make([]Value, len(cols))
			for j, c := range cols {
				key[j] = r[t.index[c]]
			}
			g = len(groups)
			pos[k] = g
			groups = append(groups, Group{Key: key})
		}
		groups[g].Rows = append(groups[g].Rows, i)
	}
	return groups, nil
}

func (t *Table) hasNull(r []Value, cols []string) bool {
	for _, c := range cols {
		if r[t.index[c]].IsNull() {
			return true
		}
	}
	return false
}

// FillForward scans rows in the given order and replaces each null in cols
// with the most recent non-null value seen earlier in the scan. Leading
// nulls stay null. Columns that do not exist are ignored.
func (t *Table) FillForward(rows []int, cols ...string) {
	t.fill(rows, cols, false)
}

// FillBackward is FillForward scanning from the last row to the first.
func (t *Table) FillBackward(rows []int, cols ...string) {
	t.fill(rows, cols, true)
}

func (t *Table) fill(rows []int, cols []string, backward bool) {
	for _, c := range cols {
		j, ok := t.index[c]
		if !ok {
			continue
		}
		last := Null()
		for n := range rows {
			i := rows[n]
			if backward {
				i = rows[len(rows)-1-n]
			}
			if v := t.rows[i][j]; !v.IsNull() {
				last = v
			} else {
				t.rows[i][j] = last
			}
		}
	}
}

// FillForwardBy forward-fills cols independently within each group of
// groupCols.
func (t *Table) FillForwardBy(groupCols []string, cols ...string) error {
	groups, err := t.GroupBy(groupCols...)
	if err != nil {
		return err
	}
	for _, g := range groups {
		t.FillForward(g.Rows, cols...)
	}
	return nil
}

// FillBackwardBy backward-fills cols independently within each group of
// groupCols.
func (t *Table) FillBackwardBy(groupCols []string, cols ...string) error {
	groups, err := t.GroupBy(groupCols...)
	if err != nil {
		return err
	}
	for _, g := range groups {
		t.FillBackward(g.Rows, cols...)
	}
	return nil
}
