package docpipe

// PDF pages carry no table structure, so tables are recovered from layout:
// a line is split into cells wherever the horizontal gap between two runs
// exceeds cellGap font sizes, and a table is a maximal block of at least
// two consecutive lines that each have at least two cells. Rows keep the
// number of cells found on their line.

const cellGap = 1.5

// lineCells splits a line into cells at wide gaps.
func lineCells(l textLine) []string {
	var cells []string
	var cur []textRun
	flush := func() {
		if len(cur) == 0 {
			return
		}
		if s := lineText(textLine{y: l.y, runs: cur}); s != "" {
			cells = append(cells, s)
		}
		cur = nil
	}
	for i, r := range l.runs {
		if i > 0 {
			prev := l.runs[i-1]
			if r.x-(prev.x+prev.width) > cellGap*r.size {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return cells
}

// detectTables finds tables in the lines of one page.
func detectTables(lines []textLine) []Table {
	var (
		tables []Table
		block  Table
	)
	end := func() {
		if len(block) >= 2 {
			tables = append(tables, block)
		}
		block = nil
	}
	for _, l := range lines {
		cells := lineCells(l)
		if len(cells) >= 2 {
			block = append(block, cells)
			continue
		}
		end()
	}
	end()
	return tables
}

// pageTables detects tables in the content stream of one page.
func pageTables(data []byte) ([]Table, error) {
	runs, err := scanTextRuns(data)
	if err != nil {
		return nil, err
	}
	return detectTables(groupLines(runs)), nil
}
