package itinerary

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"dispatch_tracker/internal/planning"
)

// QRPayload is what the printed code resolves to.
func QRPayload(tripID uint) string {
	return fmt.Sprintf("trip:%d", tripID)
}

// PDF renders a one-document printable itinerary for snap.
func PDF(snap planning.Snapshot) ([]byte, error) {
	trip := snap.Trip

	qrPNG, err := qrcode.Encode(QRPayload(trip.ID), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("itinerary: qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Trip Assignment: "+trip.Name, true)
	pdf.AddPage()

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 165, 10, 30, 30, false, imageOpts, 0, "")

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Trip Assignment: "+trip.Name)
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 7, "Vehicle: "+trip.VehiclePlate)
	pdf.Ln(7)
	pdf.Cell(0, 7, "Driver: "+trip.DriverName)
	pdf.Ln(7)
	if !trip.PlannedStart.IsZero() {
		pdf.Cell(0, 7, "Start: "+trip.PlannedStart.Format("2006-01-02 15:04"))
		pdf.Ln(7)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Stops")
	pdf.Ln(9)
	for _, e := range snap.Entries {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 6, StopLine(e))
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 10)
		if e.Stop.Address != "" {
			pdf.Cell(0, 5, "   Address: "+e.Stop.Address)
			pdf.Ln(5)
		}
		if e.Notes != "" {
			pdf.MultiCell(0, 5, "   Notes: "+e.Notes, "", "L", false)
		}
		pdf.Ln(2)
	}
	if trip.Notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 5, "Trip Notes: "+trip.Notes, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("itinerary: pdf: %w", err)
	}
	return buf.Bytes(), nil
}
