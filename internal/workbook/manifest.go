package workbook

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"meeting-insights-go/internal/types"
)

// ManifestRow is one recording listed in an import workbook.
type ManifestRow struct {
	Row      int
	OwnerID  string
	Title    string
	Category string
	File     string
}

// LoadManifest reads the first sheet of an import workbook. Columns are
// found by header heuristics; relative file paths resolve against baseDir
// (the workbook's directory when empty). Rows without a file are skipped.
// defaultOwner fills rows that have no owner column or an empty cell.
func LoadManifest(path, baseDir, defaultOwner string) ([]ManifestRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}
	if baseDir == "" {
		baseDir = filepath.Dir(path)
	}

	ownerIdx, titleIdx, categoryIdx, fileIdx := -1, -1, -1, -1
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "owner") || strings.Contains(l, "user"):
			if ownerIdx == -1 {
				ownerIdx = i
			}
		case strings.Contains(l, "title") || strings.Contains(l, "name") && !strings.Contains(l, "file"):
			if titleIdx == -1 {
				titleIdx = i
			}
		case strings.Contains(l, "category") || strings.Contains(l, "type"):
			if categoryIdx == -1 {
				categoryIdx = i
			}
		case strings.Contains(l, "file") || strings.Contains(l, "audio") || strings.Contains(l, "record") || strings.Contains(l, "path"):
			if fileIdx == -1 {
				fileIdx = i
			}
		}
	}
	if fileIdx == -1 {
		return nil, fmt.Errorf("no audio file column in header %q", rows[0])
	}

	cell := func(r []string, idx int) string {
		if idx >= 0 && idx < len(r) {
			return strings.TrimSpace(r[idx])
		}
		return ""
	}

	var out []ManifestRow
	for i, r := range rows {
		if i == 0 {
			continue
		}
		file := cell(r, fileIdx)
		if file == "" {
			continue
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(baseDir, file)
		}
		row := ManifestRow{
			Row:      i + 1,
			OwnerID:  cell(r, ownerIdx),
			Title:    cell(r, titleIdx),
			Category: strings.ToUpper(cell(r, categoryIdx)),
			File:     file,
		}
		if row.OwnerID == "" {
			row.OwnerID = defaultOwner
		}
		if row.Title == "" {
			row.Title = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		}
		if row.Category == "" {
			row.Category = types.DefaultCategory
		}
		out = append(out, row)
	}
	return out, nil
}
