// Package spreadsheet is the demo payload pushed through the pipeline: a
// producer generates small random sheets and a consumer calculates them.
package spreadsheet

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	MinSize = 3
	MaxSize = 8
	// MaxCellValue is the exclusive upper bound of generated cell values.
	MaxCellValue = 100
)

// Sheet is a numbered grid of cell values.
type Sheet struct {
	ID    int
	Cells *mat.Dense
}

func (s Sheet) Dims() (rows, cols int) {
	return s.Cells.Dims()
}

// Calculated holds a sheet with its totals.
type Calculated struct {
	Sheet
	RowTotals []float64
	ColTotals []float64
	Total     float64
}

// Generator produces sheets with sequential IDs. It is safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	nextID int
}

// NewGenerator seeds a generator; the same seed yields the same sheet contents
// when sheets are drawn from one goroutine.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns a sheet of MinSize..MaxSize rows and columns of random values.
func (g *Generator) Next() Sheet {
	g.mu.Lock()
	defer g.mu.Unlock()

	rows := MinSize + g.rng.IntN(MaxSize-MinSize+1)
	cols := MinSize + g.rng.IntN(MaxSize-MinSize+1)
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(g.rng.IntN(MaxCellValue))
	}

	id := g.nextID
	g.nextID++
	return Sheet{ID: id, Cells: mat.NewDense(rows, cols, data)}
}

// Calculate sums every row, every column and the whole sheet.
func Calculate(s Sheet) Calculated {
	rows, cols := s.Dims()
	out := Calculated{
		Sheet:     s,
		RowTotals: make([]float64, rows),
		ColTotals: make([]float64, cols),
	}
	for i := 0; i < rows; i++ {
		out.RowTotals[i] = floats.Sum(s.Cells.RawRowView(i))
	}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, s.Cells)
		out.ColTotals[j] = floats.Sum(col)
	}
	out.Total = floats.Sum(out.RowTotals)
	return out
}

// Format renders the sheet as a text table; row totals go in the last column
// and column totals in the last row.
func (c Calculated) Format() string {
	var b strings.Builder
	rows, cols := c.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			fmt.Fprintf(&b, "%5.0f", c.Cells.At(i, j))
		}
		fmt.Fprintf(&b, " |%6.0f\n", c.RowTotals[i])
	}
	b.WriteString(strings.Repeat("-", cols*5+8))
	b.WriteByte('\n')
	for j := 0; j < cols; j++ {
		fmt.Fprintf(&b, "%5.0f", c.ColTotals[j])
	}
	fmt.Fprintf(&b, " |%6.0f", c.Total)
	return b.String()
}

// Format renders the raw sheet values.
func (s Sheet) Format() string {
	return fmt.Sprintf("%v", mat.Formatted(s.Cells, mat.Squeeze()))
}
