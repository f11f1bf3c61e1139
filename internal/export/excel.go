package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mavuno/demand-engine/internal/model"
)

// StatementGenerator renders a pool statement workbook: a summary sheet and a
// contribution detail sheet.
type StatementGenerator struct{}

func NewStatementGenerator() *StatementGenerator {
	return &StatementGenerator{}
}

func (g *StatementGenerator) Generate(statement model.PoolStatement) ([]byte, error) {
	file := excelize.NewFile()

	summarySheet := "Summary"
	file.SetSheetName("Sheet1", summarySheet)
	if err := g.writeSummary(file, summarySheet, statement); err != nil {
		return nil, err
	}

	detailSheet := "Contributions"
	file.NewSheet(detailSheet)
	if err := g.writeContributions(file, detailSheet, statement); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *StatementGenerator) writeSummary(file *excelize.File, sheet string, statement model.PoolStatement) error {
	pool := statement.Pool

	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Pool")
	set("B1", pool.ID.String())
	set("A2", "Resource")
	set("B2", pool.ResourceKind)
	set("A3", "State")
	set("B3", string(pool.State))
	set("A4", "Target quantity")
	set("B4", formatQuantity(pool.TargetQuantity))
	set("A5", "Current quantity")
	set("B5", formatQuantity(pool.CurrentQuantity))
	set("A6", "Delivery location")
	set("B6", pool.DeliveryLocation)
	set("A7", "Deliver by")
	set("B7", formatDate(pool.DeliverBy))
	set("A8", "Threshold crossed at")
	set("B8", formatOptionalTime(pool.ThresholdCrossedAt))
	set("A9", "Final unit price")
	set("B9", formatOptionalPrice(pool.FinalUnitPrice))
	set("A10", "Active contributions")
	set("B10", countActive(statement.Contributions))

	_ = file.SetColWidth(sheet, "A", "A", 24)
	_ = file.SetColWidth(sheet, "B", "B", 40)
	return nil
}

func (g *StatementGenerator) writeContributions(file *excelize.File, sheet string, statement model.PoolStatement) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	headers := []string{"Submitted at", "Participant", "Quantity", "Status"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(cell, header)
	}

	for i, contribution := range statement.Contributions {
		row := i + 2
		set(fmt.Sprintf("A%d", row), formatDateTime(contribution.SubmittedAt))
		set(fmt.Sprintf("B%d", row), contribution.ParticipantID.String())
		set(fmt.Sprintf("C%d", row), formatQuantity(contribution.Quantity))
		set(fmt.Sprintf("D%d", row), string(contribution.Status))
	}

	_ = file.SetColWidth(sheet, "A", "A", 20)
	_ = file.SetColWidth(sheet, "B", "B", 40)
	_ = file.SetColWidth(sheet, "C", "D", 14)
	return nil
}

func countActive(contributions []model.Contribution) int {
	count := 0
	for _, c := range contributions {
		if c.Status == model.ContributionStatusActive {
			count++
		}
	}
	return count
}

func formatQuantity(value float64) string {
	return fmt.Sprintf("%.3f", value)
}

func formatOptionalPrice(value *float64) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *value)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDateTime(*t)
}
