package ingest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/intellidevice/engine/engine/domain"
)

// columnAliases maps header cells (Chinese or English) onto submission
// fields. Matching is case-insensitive after whitespace trimming.
var columnAliases = map[string]string{
	"hospital_id":       "hospital_id",
	"医疗机构":              "hospital_id",
	"医院编号":              "hospital_id",
	"device_name":       "device_name",
	"器械名称":              "device_name",
	"设备名称":              "device_name",
	"manufacturer":      "manufacturer",
	"生产企业":              "manufacturer",
	"厂家":                "manufacturer",
	"model":             "model",
	"型号":                "model",
	"规格型号":              "model",
	"lot_sn":            "lot_sn",
	"批号":                "lot_sn",
	"序列号":               "lot_sn",
	"event_datetime":    "event_datetime",
	"事件日期":              "event_datetime",
	"发生时间":              "event_datetime",
	"event_description": "event_description",
	"事件描述":              "event_description",
	"伤害表现":              "event_description",
	"injury_severity":   "injury_severity",
	"伤害程度":              "injury_severity",
	"action_taken":      "action_taken",
	"处置措施":              "action_taken",
}

// severityAliases maps spreadsheet severity cells to the closed set.
var severityAliases = map[string]domain.Severity{
	"death":    domain.SeverityDeath,
	"死亡":       domain.SeverityDeath,
	"severe":   domain.SeveritySevere,
	"严重":       domain.SeveritySevere,
	"严重伤害":     domain.SeveritySevere,
	"moderate": domain.SeverityModerate,
	"中度":       domain.SeverityModerate,
	"中度伤害":     domain.SeverityModerate,
	"mild":     domain.SeverityMild,
	"轻度":       domain.SeverityMild,
	"轻度伤害":     domain.SeverityMild,
	"none":     domain.SeverityNone,
	"无":        domain.SeverityNone,
	"无伤害":      domain.SeverityNone,
}

// dateLayouts tried in order when parsing event dates from cells.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01-02-06", // excelize default short date
}

// ReadWorkbook parses report submissions from the first sheet of an xlsx
// workbook. The first row is the header; unknown columns are ignored, and
// rows missing every known column are skipped.
func ReadWorkbook(r io.Reader) ([]domain.ReportIn, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ingest: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("ingest: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("ingest: read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("ingest: sheet %s has no data rows", sheets[0])
	}

	cols := make(map[int]string)
	for i, cell := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(cell))
		if field, ok := columnAliases[key]; ok {
			cols[i] = field
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("ingest: no recognized columns in header row")
	}

	var out []domain.ReportIn
	for _, row := range rows[1:] {
		in, ok := rowToReport(cols, row)
		if ok {
			out = append(out, in)
		}
	}
	return out, nil
}

func rowToReport(cols map[int]string, row []string) (domain.ReportIn, bool) {
	var in domain.ReportIn
	filled := false
	for i, cell := range row {
		field, ok := cols[i]
		if !ok {
			continue
		}
		val := strings.TrimSpace(cell)
		if val == "" {
			continue
		}
		filled = true
		switch field {
		case "hospital_id":
			in.HospitalID = val
		case "device_name":
			in.DeviceName = val
		case "manufacturer":
			in.Manufacturer = val
		case "model":
			in.Model = val
		case "lot_sn":
			in.LotSN = val
		case "event_datetime":
			if t, ok := parseDate(val); ok {
				in.EventDatetime = &t
			}
		case "event_description":
			in.Description = val
		case "injury_severity":
			if sev, ok := severityAliases[strings.ToLower(val)]; ok {
				in.Severity = sev
			}
		case "action_taken":
			in.ActionTaken = val
		}
	}
	return in, filled
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
