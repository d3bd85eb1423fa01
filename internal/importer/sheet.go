package importer

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// readSheet reads trigger/response pairs from the first sheet. The header
// row locates the two columns; rows with either cell blank become nil.
func readSheet(path string) ([]*pair, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &FormatError{Source: path, Msg: err.Error()}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Source: path, Msg: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &FormatError{Source: path, Msg: err.Error()}
	}
	if len(rows) == 0 {
		return nil, &FormatError{Source: path, Msg: "sheet " + sheets[0] + " is empty"}
	}

	trig, resp := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "trigger":
			trig = i
		case "response":
			resp = i
		}
	}
	if trig < 0 || resp < 0 {
		return nil, &FormatError{Source: path, Msg: "header row needs trigger and response columns"}
	}

	pairs := make([]*pair, 0, len(rows)-1)
	for _, row := range rows[1:] {
		t, r := cell(row, trig), cell(row, resp)
		if t == "" && r == "" {
			continue
		}
		if t == "" || r == "" {
			pairs = append(pairs, nil)
			continue
		}
		pairs = append(pairs, &pair{Trigger: t, Response: r})
	}
	return pairs, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
