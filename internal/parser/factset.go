// Package parser reads FactSet contribution workbooks into portfolio data.
//
// Workbook layout: sheet "ContributionMasterRisk" carries the period string
// in row 6, column headers in row 7, and data from row 10 until the first
// blank ticker. Optional attribution sheets are parsed for prompt context.
package parser

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/commentary-cli/internal/model"
)

const (
	contributionSheet = "ContributionMasterRisk"
	sectorSheet       = "AttributionbySector"
	countrySheet      = "AttributionbyCountryMasterRisk"

	periodRow = 5 // spreadsheet row 6
	headerRow = 6 // spreadsheet row 7
	dataRow   = 9 // spreadsheet row 10
)

// ParseFile parses one portfolio workbook from disk.
func ParseFile(path string) (*model.PortfolioData, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "parser: open %s", path)
	}
	p, err := Parse(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	p.SourceFile = path
	return p, nil
}

// Parse extracts portfolio data from an already-opened workbook. The
// portcode comes from the filename: everything before the first underscore.
func Parse(f *xlsx.File, filename string) (*model.PortfolioData, error) {
	sheet, ok := f.Sheet[contributionSheet]
	if !ok {
		return nil, eris.Errorf("parser: required sheet %q not found in %s", contributionSheet, filename)
	}

	period := cellString(sheet, periodRow, 0)
	if period == "" {
		return nil, eris.Errorf("parser: period not found in row 6 of %s", filename)
	}

	cols, err := mapColumns(sheet, filename)
	if err != nil {
		return nil, err
	}

	var securities []model.SecurityRow
	for r := dataRow; r < len(sheet.Rows); r++ {
		ticker := cellString(sheet, r, cols.ticker)
		if ticker == "" {
			break // end of table
		}
		securities = append(securities, model.SecurityRow{
			Ticker:               ticker,
			SecurityName:         cellString(sheet, r, cols.name),
			PortEndingWeight:     cellFloat(sheet, r, cols.weight),
			ContributionToReturn: cellFloat(sheet, r, cols.contribution),
			GICS:                 gicsOrNA(cellString(sheet, r, cols.gics)),
		})
	}

	p := &model.PortfolioData{
		Portcode:   PortcodeFromFilename(filename),
		Period:     period,
		Securities: securities,
		SourceFile: filename,
	}

	p.SectorAttribution = parseAttribution(f, sectorSheet, "Sector", filename, &p.Warnings)
	p.CountryAttribution = parseAttribution(f, countrySheet, "Country", filename, &p.Warnings)

	return p, nil
}

// PortcodeFromFilename extracts the portfolio code from a workbook filename
// shaped PORTCODE_*_MMDDYYYY.xlsx.
func PortcodeFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}

type columns struct {
	ticker, name, weight, contribution, gics int
}

func mapColumns(sheet *xlsx.Sheet, filename string) (columns, error) {
	cols := columns{ticker: -1, name: -1, weight: -1, contribution: -1, gics: -1}

	width := 0
	if headerRow < len(sheet.Rows) {
		width = len(sheet.Rows[headerRow].Cells)
	}
	for c := 0; c < width; c++ {
		switch strings.ToLower(cellString(sheet, headerRow, c)) {
		case "ticker":
			cols.ticker = c
		case "security name":
			cols.name = c
		case "port. ending weight":
			cols.weight = c
		case "contribution to return":
			cols.contribution = c
		case "gics":
			cols.gics = c
		}
	}

	var missing []string
	if cols.ticker < 0 {
		missing = append(missing, "Ticker")
	}
	if cols.weight < 0 {
		missing = append(missing, "Port. Ending Weight")
	}
	if cols.contribution < 0 {
		missing = append(missing, "Contribution To Return")
	}
	if cols.gics < 0 {
		missing = append(missing, "GICS")
	}
	if len(missing) > 0 {
		return cols, eris.Errorf("parser: missing required columns in %s: %s", filename, strings.Join(missing, ", "))
	}

	// The Security Name header is often blank; the column sits left of Ticker.
	if cols.name < 0 && cols.ticker > 0 {
		cols.name = cols.ticker - 1
	}

	return cols, nil
}

func parseAttribution(f *xlsx.File, sheetName, categoryHeader, filename string, warnings *[]string) *model.AttributionTable {
	sheet, ok := f.Sheet[sheetName]
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("%s: missing attribution tab %q", filename, sheetName))
		return nil
	}

	var headers []string
	if headerRow < len(sheet.Rows) {
		for c := 1; c < len(sheet.Rows[headerRow].Cells); c++ {
			if h := cellString(sheet, headerRow, c); h != "" {
				headers = append(headers, h)
			}
		}
	}
	if len(headers) == 0 {
		*warnings = append(*warnings, fmt.Sprintf("%s [%s]: missing metric headers in row 7; attribution skipped", filename, sheetName))
		return nil
	}

	table := &model.AttributionTable{
		SheetName:      sheetName,
		CategoryHeader: categoryHeader,
		MetricHeaders:  headers,
	}

	seenData := false
	blanks := 0
	for r := headerRow + 1; r < len(sheet.Rows); r++ {
		category := cellString(sheet, r, 0)
		if category == "" {
			if seenData {
				blanks++
				// A couple of blank rows may precede the Total line.
				if blanks >= 3 {
					break
				}
			}
			continue
		}
		seenData = true
		blanks = 0

		row := model.AttributionRow{Category: category, Metrics: make(map[string]float64, len(headers))}
		for i, h := range headers {
			row.Metrics[h] = cellFloat(sheet, r, i+1)
		}

		if strings.EqualFold(category, "total") {
			row := row
			table.Total = &row
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	if table.Total == nil {
		*warnings = append(*warnings, fmt.Sprintf("%s [%s]: total row not found", filename, sheetName))
	}
	if !table.HasData() {
		*warnings = append(*warnings, fmt.Sprintf("%s [%s]: no attribution rows found", filename, sheetName))
		return nil
	}

	return table
}

func gicsOrNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}

func cellString(sheet *xlsx.Sheet, r, c int) string {
	if r < 0 || r >= len(sheet.Rows) || c < 0 {
		return ""
	}
	row := sheet.Rows[r]
	if c >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[c].String())
}

func cellFloat(sheet *xlsx.Sheet, r, c int) float64 {
	raw := cellString(sheet, r, c)
	if raw == "" {
		return 0
	}
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
