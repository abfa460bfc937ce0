package ingest

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/intellidevice/engine/engine/domain"
)

func workbookBytes(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestReadWorkbookChineseHeaders(t *testing.T) {
	buf := workbookBytes(t, [][]any{
		{"医疗机构", "器械名称", "生产企业", "型号", "事件日期", "事件描述", "伤害程度", "处置措施"},
		{"H001", "心电监护仪", "迈瑞", "uMEC12", "2025-03-01", "设备黑屏，无法监护", "严重伤害", "停用设备"},
		{"H002", "输液泵", "", "", "", "流速异常", "无伤害", ""},
	})

	reports, err := ReadWorkbook(buf)
	if err != nil {
		t.Fatalf("ReadWorkbook: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}

	first := reports[0]
	if first.HospitalID != "H001" || first.DeviceName != "心电监护仪" || first.Model != "uMEC12" {
		t.Errorf("unexpected first row: %+v", first)
	}
	if first.Severity != domain.SeveritySevere {
		t.Errorf("severity = %q, want severe", first.Severity)
	}
	if first.EventDatetime == nil || first.EventDatetime.Year() != 2025 {
		t.Errorf("event date = %v", first.EventDatetime)
	}
	if reports[1].Severity != domain.SeverityNone {
		t.Errorf("second severity = %q", reports[1].Severity)
	}
}

func TestReadWorkbookEnglishHeadersAndBlankRows(t *testing.T) {
	buf := workbookBytes(t, [][]any{
		{"hospital_id", "device_name", "event_description", "injury_severity"},
		{"H003", "呼吸机", "报警失效", "mild"},
		{"", "", "", ""},
	})

	reports, err := ReadWorkbook(buf)
	if err != nil {
		t.Fatalf("ReadWorkbook: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("blank rows should be skipped, got %d reports", len(reports))
	}
	if reports[0].Severity != domain.SeverityMild {
		t.Errorf("severity = %q", reports[0].Severity)
	}
}

func TestReadWorkbookRejectsUnknownHeaders(t *testing.T) {
	buf := workbookBytes(t, [][]any{
		{"foo", "bar"},
		{"1", "2"},
	})
	if _, err := ReadWorkbook(buf); err == nil {
		t.Fatal("want error for unrecognized header row")
	}
}

func TestReadWorkbookRejectsEmptySheet(t *testing.T) {
	buf := workbookBytes(t, [][]any{
		{"hospital_id", "device_name"},
	})
	if _, err := ReadWorkbook(buf); err == nil {
		t.Fatal("want error when only a header row exists")
	}
}
