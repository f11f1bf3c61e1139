package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/mavuno/demand-engine/internal/model"
)

// AwardNoteGenerator renders the award confirmation for an awarded auction:
// the posted demand, the accepted bid, and the rejected competition.
type AwardNoteGenerator struct {
	fontName string
}

func NewAwardNoteGenerator() *AwardNoteGenerator {
	return &AwardNoteGenerator{fontName: "Helvetica"}
}

func (g *AwardNoteGenerator) Generate(note model.AwardNote) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, "Reverse Auction Award Confirmation", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Auction %s", note.Auction.ID), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Posted %s", formatDate(note.Auction.CreatedAt)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Posted demand", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Commodity: %s", note.Auction.Commodity), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Quantity: %s units", formatQuantity(note.Auction.Quantity)), "", 1, "L", false, 0, "")
	if note.Auction.QualitySpec != "" {
		pdf.MultiCell(0, 6, fmt.Sprintf("Quality: %s", note.Auction.QualitySpec), "", "L", false)
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Deliver by: %s", formatDate(note.Auction.DeliverBy)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Accepted bid", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)

	headers := []string{"Bidder", "Price / unit", "Submitted", "Status"}
	colWidths := []float64{70, 35, 45, 30}
	g.drawTableRow(pdf, headers, colWidths, true)
	g.drawTableRow(pdf, bidRow(note.WinningBid), colWidths, false)

	if len(note.RejectedBids) > 0 {
		pdf.Ln(2)
		pdf.SetFont(g.fontName, "B", 12)
		pdf.CellFormat(0, 8, "Rejected bids", "", 1, "L", false, 0, "")
		pdf.SetFont(g.fontName, "", 10)
		g.drawTableRow(pdf, headers, colWidths, true)
		for _, bid := range note.RejectedBids {
			g.drawTableRow(pdf, bidRow(bid), colWidths, false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *AwardNoteGenerator) drawTableRow(pdf *gofpdf.Fpdf, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(g.fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i == 1 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func bidRow(bid model.Bid) []string {
	return []string{
		bid.BidderID.String(),
		fmt.Sprintf("%.2f", bid.Price),
		formatDateTime(bid.SubmittedAt),
		string(bid.Status),
	}
}
