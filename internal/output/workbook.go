// Package output renders run results: the commentary workbook and the
// operator run log.
package output

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/validate"
)

// PortfolioSheet is one portfolio's worth of merged rows, rendered as one
// worksheet.
type PortfolioSheet struct {
	Portcode string
	Rows     []model.MergedRow
}

var workbookHeaders = []string{
	"Ticker",
	"Security Name",
	"Rank",
	"Contributor/Detractor",
	"Contribution To Return",
	"Port. Ending Weight",
	"Commentary",
	"Sources",
}

var columnWidths = []float64{12, 30, 8, 18, 20, 18, 60, 40}

// WorkbookFilename returns the timestamped output filename.
func WorkbookFilename(now time.Time) string {
	return fmt.Sprintf("ContributorDetractorCommentary_%s.xlsx", now.Format("2006-01-02_1504"))
}

// WriteWorkbook renders one sheet per portfolio and saves the workbook.
// Sheet order and row order follow the input.
func WriteWorkbook(path string, sheets []PortfolioSheet) error {
	f := xlsx.NewFile()

	headerStyle := xlsx.NewStyle()
	headerStyle.Font.Bold = true
	headerStyle.ApplyFont = true

	errorStyle := xlsx.NewStyle()
	errorStyle.Font.Color = "FFFF0000"
	errorStyle.ApplyFont = true

	for _, ps := range sheets {
		name := ps.Portcode
		if len(name) > 31 { // Excel sheet name limit
			name = name[:31]
		}
		sheet, err := f.AddSheet(name)
		if err != nil {
			return eris.Wrapf(err, "output: add sheet %s", name)
		}

		header := sheet.AddRow()
		for _, h := range workbookHeaders {
			cell := header.AddCell()
			cell.Value = h
			cell.SetStyle(headerStyle)
		}
		for c, w := range columnWidths {
			sheet.SetColWidth(c, c, w)
		}

		for _, mr := range ps.Rows {
			row := sheet.AddRow()
			row.AddCell().Value = mr.Security.Ticker
			row.AddCell().Value = mr.Security.SecurityName

			rank := row.AddCell()
			if mr.Rank > 0 {
				rank.SetInt(mr.Rank)
			}

			row.AddCell().Value = string(mr.Type)
			row.AddCell().SetFloatWithFormat(mr.Security.ContributionToReturn, "0.0000")
			row.AddCell().SetFloatWithFormat(mr.Security.PortEndingWeight, "0.00")

			commentary := row.AddCell()
			commentary.Value = mr.Commentary.Text
			if mr.Commentary.Failed {
				commentary.SetStyle(errorStyle)
			}

			row.AddCell().Value = validate.FormatSources(mr.Commentary.Citations)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "output: save workbook %s", path)
	}
	return nil
}
