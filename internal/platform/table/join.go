package table

import "fmt"

// Suffixes applied to non-key columns present on both sides of a join.
const (
	LeftSuffix  = "_x"
	RightSuffix = "_y"
)

// OuterJoin performs a full outer join on the given key columns. Every left
// row appears once per matching right row (or once with null right columns
// when unmatched); right rows matching no left row follow, in order. Rows
// with a null key value never match. The result is keyed by on.
func OuterJoin(left, right *Table, on ...string) (*Table, error) {
	return join(left, right, on, true)
}

// InnerJoin keeps only left/right row pairs whose keys match.
func InnerJoin(left, right *Table, on ...string) (*Table, error) {
	return join(left, right, on, false)
}

func join(left, right *Table, on []string, outer bool) (*Table, error) {
	if len(on) == 0 {
		return nil, fmt.Errorf("join: no key columns")
	}
	if err := left.Require(on...); err != nil {
		return nil, fmt.Errorf("join left: %w", err)
	}
	if err := right.Require(on...); err != nil {
		return nil, fmt.Errorf("join right: %w", err)
	}

	isKey := make(map[string]bool, len(on))
	for _, k := range on {
		isKey[k] = true
	}

	// Result layout: left columns in order, then right non-key columns.
	var cols []string
	var leftCols, rightCols []int
	for j, c := range left.columns {
		name := c
		if !isKey[c] && right.Has(c) {
			name = c + LeftSuffix
		}
		cols = append(cols, name)
		leftCols = append(leftCols, j)
	}
	for j, c := range right.columns {
		if isKey[c] {
			continue
		}
		name := c
		if left.Has(c) {
			name = c + RightSuffix
		}
		cols = append(cols, name)
		rightCols = append(rightCols, j)
	}

	out, err := NewChecked(cols...)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	out.keys = append([]string(nil), on...)

	matches := make(map[string][]int)
	for i, r := range right.rows {
		if right.hasNull(r, on) {
			continue
		}
		k := right.rowKey(r, on)
		matches[k] = append(matches[k], i)
	}

	emit := func(l, r []Value) {
		row := make([]Value, 0, len(cols))
		if l != nil {
			for _, j := range leftCols {
				row = append(row, l[j])
			}
		} else {
			for _, c := range left.columns {
				if isKey[c] {
					row = append(row, r[right.index[c]])
				} else {
					row = append(row, Null())
				}
			}
		}
		for _, j := range rightCols {
			if r != nil {
				row = append(row, r[j])
			} else {
				row = append(row, Null())
			}
		}
		out.rows = append(out.rows, row)
	}

	used := make([]bool, len(right.rows))
	for _, l := range left.rows {
		var hits []int
		if !left.hasNull(l, on) {
			hits = matches[left.rowKey(l, on)]
		}
		if len(hits) == 0 {
			if outer {
				emit(l, nil)
			}
			continue
		}
		for _, i := range hits {
			used[i] = true
			emit(l, right.rows[i])
		}
	}

	if outer {
		for i, r := range right.rows {
			if !used[i] {
				emit(nil, r)
			}
		}
	}
	return out, nil
}
