package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sitesync/internal/models"

	"github.com/xuri/excelize/v2"
)

// FailedMutations writes an xlsx report of permanently dropped mutations so
// site managers can re-enter the lost edits by hand. Returns the file path.
func FailedMutations(letters []models.DeadLetter, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Failed mutations"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Mutation ID", "Method", "Target URL", "Reason", "Attempts", "Failed at"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for row, d := range letters {
		values := []any{d.MutationID, d.Method, d.TargetURL, d.Reason, d.Attempts, d.FailedAt.Format(time.RFC3339)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 45)
	_ = f.SetColWidth(sheetName, "B", "B", 10)
	_ = f.SetColWidth(sheetName, "C", "D", 40)
	_ = f.SetColWidth(sheetName, "E", "F", 22)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("failed_mutations_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return filePath, nil
}
