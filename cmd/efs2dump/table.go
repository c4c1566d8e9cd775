package main

import (
	"errors"
	"os"

	"github.com/sisatech/tablewriter"
)

// plainTable prints a borderless, left-aligned grid. vals[0] is a
// header row that is accepted for shape but not printed.
func plainTable(vals [][]string) {
	if len(vals) == 0 {
		panic(errors.New("no rows provided"))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	for i := 1; i < len(vals); i++ {
		table.Append(vals[i])
	}

	table.Render()
}
