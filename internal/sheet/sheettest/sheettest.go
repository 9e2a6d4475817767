// Package sheettest builds SNIIM-shaped workbooks for tests.
package sheettest

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Block returns the rows of one price table dated by datePhrase
// (e.g. "30 de julio de 2025"), using the given rows as data rows.
// Each data row is {state, city, p1, p2, p3, p4}.
func Block(datePhrase string, data ...[]string) [][]string {
	rows := [][]string{
		{"Precio promedio al consumidor por litro"},
		{"", "Miércoles " + datePhrase},
		{"", "", "Pasteurizada", "", "Ultrapasteurizada", ""},
		{"Estado", "Ciudad", "self-service", "store", "self-service", "store"},
	}
	rows = append(rows, data...)
	rows = append(rows,
		[]string{"Promedio nacional", "", "25.00", "24.00", "27.00", "26.00"},
		[]string{"Fuente: SNIIM"},
	)
	return rows
}

// Workbook encodes rows as the first sheet of an xlsx document.
func Workbook(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, v := range row {
			if v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("setting %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
