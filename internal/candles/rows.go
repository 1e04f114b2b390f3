package candles

import (
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Row is a JSON-friendly view of one table row. Undefined values are nil.
type Row map[string]any

// Rows renders every row of df, keeping column order irrelevant to callers.
func Rows(df dataframe.DataFrame) []Row {
	names := df.Names()
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = df.Col(n)
	}

	out := make([]Row, df.Nrow())
	for r := range out {
		row := make(Row, len(names))
		for i, n := range names {
			row[n] = cell(cols[i], r)
		}
		out[r] = row
	}
	return out
}

// LastRow renders the final row of df, or nil for an empty frame.
func LastRow(df dataframe.DataFrame) Row {
	n := df.Nrow()
	if n == 0 {
		return nil
	}
	rows := Rows(df.Subset([]int{n - 1}))
	return rows[0]
}

func cell(s series.Series, i int) any {
	e := s.Elem(i)
	if e.IsNA() {
		return nil
	}
	switch s.Type() {
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return nil
		}
		return v
	case series.Float:
		f := e.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case series.Bool:
		b, err := e.Bool()
		if err != nil {
			return nil
		}
		return b
	default:
		return e.String()
	}
}
