// internal/browser/dom/tables.go
package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Cell is one td or th. A spanning cell appears at every grid position it covers.
type Cell struct {
	Node    *html.Node
	Text    string
	Header  bool
	RowSpan int
	ColSpan int
	// Tables are the tables directly inside this cell.
	Tables []*Table
}

// Table is a table element laid out on a row/column grid.
type Table struct {
	Node    *html.Node
	ID      string
	Summary string
	// Parent is the table containing this one, if nested.
	Parent *Table
	grid   [][]*Cell
	cells  []*Cell
}

func newTable(n *html.Node) *Table {
	t := &Table{Node: n, ID: Attr(n, "id"), Summary: Attr(n, "summary")}
	t.layout()
	return t
}

// rows returns the tr elements of t, skipping any that belong to nested tables.
func (t *Table) rows() []*html.Node {
	var rows []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch Tag(c) {
			case "tr":
				rows = append(rows, c)
			case "thead", "tbody", "tfoot":
				visit(c)
			}
		}
	}
	visit(t.Node)
	return rows
}

// Largest spans a cell may claim, as in the HTML table model.
const (
	maxColSpan = 1000
	maxRowSpan = 65534
)

func spanAttr(n *html.Node, name string, limit int) int {
	v, err := strconv.Atoi(strings.TrimSpace(Attr(n, name)))
	if err != nil || v < 1 {
		return 1
	}
	return min(v, limit)
}

// layout places each cell on the grid following the HTML table model: a cell
// takes the first column in its row not already claimed by a rowspan from above.
func (t *Table) layout() {
	rows := t.rows()
	grid := make([][]*Cell, len(rows))

	for r, tr := range rows {
		col := 0
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			tag := Tag(c)
			if tag != "td" && tag != "th" {
				continue
			}
			cell := &Cell{
				Node:    c,
				Text:    Text(c),
				Header:  tag == "th",
				RowSpan: spanAttr(c, "rowspan", maxRowSpan),
				ColSpan: spanAttr(c, "colspan", maxColSpan),
			}
			t.cells = append(t.cells, cell)

			for col < len(grid[r]) && grid[r][col] != nil {
				col++
			}
			lastRow := r + cell.RowSpan
			if lastRow > len(rows) {
				lastRow = len(rows)
			}
			for rr := r; rr < lastRow; rr++ {
				for cc := col; cc < col+cell.ColSpan; cc++ {
					for len(grid[rr]) <= cc {
						grid[rr] = append(grid[rr], nil)
					}
					grid[rr][cc] = cell
				}
			}
			col += cell.ColSpan
		}
	}
	t.grid = grid
}

// linkNestedTables attaches every table to the cell that directly contains it.
func linkNestedTables(tables []*Table) {
	byNode := make(map[*html.Node]*Table, len(tables))
	for _, t := range tables {
		byNode[t.Node] = t
	}
	for _, outer := range tables {
		for _, cell := range outer.cells {
			Walk(cell.Node, func(n *html.Node) bool {
				if Tag(n) != "table" {
					return true
				}
				if inner, ok := byNode[n]; ok {
					cell.Tables = append(cell.Tables, inner)
					inner.Parent = outer
				}
				return false
			})
		}
	}
}

// RowCount is the number of rows.
func (t *Table) RowCount() int { return len(t.grid) }

// ColumnCount is the width of the widest row.
func (t *Table) ColumnCount() int {
	width := 0
	for _, row := range t.grid {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// CellAt returns the cell covering (row, col), or nil.
func (t *Table) CellAt(row, col int) *Cell {
	if row < 0 || row >= len(t.grid) || col < 0 || col >= len(t.grid[row]) {
		return nil
	}
	return t.grid[row][col]
}

// TextAt returns the text visible at (row, col), or "".
func (t *Table) TextAt(row, col int) string {
	if c := t.CellAt(row, col); c != nil {
		return c.Text
	}
	return ""
}

// AsText renders the grid as a rectangular matrix of cell text.
func (t *Table) AsText() [][]string {
	width := t.ColumnCount()
	out := make([][]string, len(t.grid))
	for r := range t.grid {
		out[r] = make([]string, width)
		for c := 0; c < width; c++ {
			out[r][c] = t.TextAt(r, c)
		}
	}
	return out
}

// Cells returns each distinct cell once, in source order.
func (t *Table) Cells() []*Cell { return t.cells }

// Tables returns every table in document order, nested ones included.
func (d *Document) Tables() []*Table { return d.tables }

// TopLevelTables returns the tables not nested in another table.
func (d *Document) TopLevelTables() []*Table {
	var out []*Table
	for _, t := range d.tables {
		if t.Parent == nil {
			out = append(out, t)
		}
	}
	return out
}

// TableWithID returns the table with the given id, searching nested tables too.
func (d *Document) TableWithID(id string) *Table {
	for _, t := range d.tables {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TableWithSummary returns the first table whose summary matches, ignoring case.
func (d *Document) TableWithSummary(summary string) *Table {
	for _, t := range d.tables {
		if strings.EqualFold(t.Summary, summary) {
			return t
		}
	}
	return nil
}

// TableStartingWith returns the first table whose top-left cell text starts with text.
func (d *Document) TableStartingWith(text string) *Table {
	for _, t := range d.tables {
		if t.RowCount() > 0 && strings.HasPrefix(t.TextAt(0, 0), text) {
			return t
		}
	}
	return nil
}
