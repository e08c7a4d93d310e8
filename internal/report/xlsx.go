// Package report renders detection listings into evidence manifests.
package report

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/terralens/audit-cli/internal/model"
)

var manifestHeader = []string{
	"Detection ID", "Detected At", "Latitude", "Longitude", "Status",
	"Severity", "Zone", "Law", "Section", "Confidence", "Evidence Hash", "Ledger Tx",
}

// WriteManifest saves the detections as an XLSX evidence manifest.
func WriteManifest(dets []model.Detection, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Detections")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range manifestHeader {
		header.AddCell().SetString(h)
	}

	for _, d := range dets {
		row := sheet.AddRow()
		row.AddCell().SetString(d.ID)
		row.AddCell().SetString(d.DetectedAt.UTC().Format(time.RFC3339))
		row.AddCell().SetString(fmt.Sprintf("%.6f", d.Lat))
		row.AddCell().SetString(fmt.Sprintf("%.6f", d.Lng))
		row.AddCell().SetString(string(d.Status))
		row.AddCell().SetString(string(d.Verdict.Severity))
		row.AddCell().SetString(d.Verdict.Zone)
		row.AddCell().SetString(d.Verdict.Law)
		row.AddCell().SetString(d.Verdict.Section)
		row.AddCell().SetString(fmt.Sprintf("%.2f", d.Confidence))
		row.AddCell().SetString(d.Evidence.Hash)
		row.AddCell().SetString(d.TxHash)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
