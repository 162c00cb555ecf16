package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// BuildAuditReportExcel renders a drift audit report as a spreadsheet for
// offline review. The caller owns closing the returned file.
func BuildAuditReportExcel(report *AuditReport) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Drift Audit"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	f.SetCellValue(sheetName, "A1", "Kind")
	f.SetCellValue(sheetName, "B1", "ID")
	f.SetCellValue(sheetName, "C1", "Field")
	f.SetCellValue(sheetName, "D1", "Persisted")
	f.SetCellValue(sheetName, "E1", "Recomputed")
	f.SetCellValue(sheetName, "F1", "Delta")
	f.SetCellValue(sheetName, "G1", "Hint")
	f.SetCellValue(sheetName, "H1", "Repaired")
	f.SetCellValue(sheetName, "I1", "Anomalies")

	for i, finding := range report.Findings {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, finding.Kind)
		f.SetCellValue(sheetName, "B"+row, finding.ID)
		f.SetCellValue(sheetName, "C"+row, finding.Field)
		f.SetCellValue(sheetName, "D"+row, finding.Persisted.StringFixed(2))
		f.SetCellValue(sheetName, "E"+row, finding.Recomputed.StringFixed(2))
		f.SetCellValue(sheetName, "F"+row, finding.Delta.StringFixed(2))
		f.SetCellValue(sheetName, "G"+row, finding.Hint)
		f.SetCellValue(sheetName, "H"+row, finding.Repaired)
		if len(finding.Anomalies) > 0 {
			b, _ := json.Marshal(finding.Anomalies)
			f.SetCellValue(sheetName, "I"+row, string(b))
		}
	}

	summary := fmt.Sprintf("checked %d invoices, %d customers at %s",
		report.InvoicesChecked, report.CustomersChecked, report.RunAt.Format("2006-01-02 15:04:05"))
	f.SetCellValue(sheetName, "A"+fmt.Sprint(len(report.Findings)+3), summary)

	return f, nil
}
