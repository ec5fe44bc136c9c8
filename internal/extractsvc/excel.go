package extractsvc

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

// extractExcel "markdownifies" each sheet the way the teacher's parser did,
// but now tracks one section per sheet so §4.6's structured path can anchor
// chunk context to "Sheet: X" instead of losing the sheet boundary.
func extractExcel(filePath string) (Result, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to open Excel file", false)
	}
	defer f.Close()

	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return Result{}, domainerr.NewExtraction(nil, "extract", "no sheets found in Excel file", false)
	}

	var builder strings.Builder
	var sections []domainaction.SectionInfo

	for sheetIdx, sheetName := range sheetList {
		if sheetIdx > 0 {
			builder.WriteString("\n\n")
		}
		start := builder.Len()
		builder.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))

		rows, rerr := f.GetRows(sheetName)
		if rerr != nil {
			builder.WriteString(fmt.Sprintf("(Unable to read sheet %s: %v)\n", sheetName, rerr))
			sections = append(sections, domainaction.SectionInfo{Title: sheetName, Level: 1, StartChar: start, EndChar: builder.Len()})
			continue
		}
		if len(rows) > 0 {
			writeSheetRows(&builder, rows)
		}
		sections = append(sections, domainaction.SectionInfo{Title: sheetName, Level: 1, StartChar: start, EndChar: builder.Len()})
	}

	result := strings.TrimSpace(builder.String())
	if result == "" {
		return Result{}, domainerr.NewExtraction(nil, "extract", "no content extracted from Excel file", false)
	}
	for i := range sections {
		if sections[i].EndChar > len(result) {
			sections[i].EndChar = len(result)
		}
	}

	return Result{
		Text:   result,
		Method: "structured",
		Structure: &domainaction.DocumentStructure{
			Sections:  sections,
			Tables:    len(sheetList),
			WordCount: wordCount(result),
		},
	}, nil
}

func writeSheetRows(builder *strings.Builder, rows [][]string) {
	headers := rows[0]
	if len(headers) == 0 {
		return
	}
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]
		var parts []string
		for colIdx, header := range headers {
			if colIdx >= len(row) || row[colIdx] == "" {
				continue
			}
			value := strings.TrimSpace(row[colIdx])
			if value == "" {
				continue
			}
			headerName := strings.TrimSpace(header)
			if headerName == "" {
				headerName = fmt.Sprintf("Column %d", colIdx+1)
			}
			parts = append(parts, fmt.Sprintf("%s: %s", headerName, value))
		}
		if len(parts) > 0 {
			builder.WriteString(fmt.Sprintf("Row %d: %s\n", rowIdx+1, strings.Join(parts, ", ")))
		}
	}
}
