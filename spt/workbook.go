package spt

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names
const (
	SheetMSD = "MSD"
	SheetFit = "Fit"
)

// WriteMSDWorkbook writes the MSD table and the diffusion fit to an xlsx
// workbook. The MSD sheet mirrors the MSD CSV with an extra column holding the
// track-averaged value. A nil fit leaves the Fit sheet with its labels only.
func WriteMSDWorkbook(path string, table MSDTable, avg []MSDPoint, fit *DiffusionFit, maxLag int) (string, error) {
	if maxLag <= 0 {
		maxLag = DefaultMaxMSDLag
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetMSD); err != nil {
		return "", fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetFit); err != nil {
		return "", fmt.Errorf("adding sheet: %w", err)
	}

	ids := table.TrackIDs()
	header := []interface{}{"dT"}
	for _, id := range ids {
		header = append(header, fmt.Sprintf("track%d", id))
	}
	header = append(header, "average")
	if err := f.SetSheetRow(SheetMSD, "A1", &header); err != nil {
		return "", fmt.Errorf("writing MSD header: %w", err)
	}

	averages := make(map[int]float64, len(avg))
	for _, p := range avg {
		averages[p.Lag] = p.MSD
	}

	for lag := 1; lag <= maxLag; lag++ {
		row := []interface{}{lag}
		for _, id := range ids {
			if v, ok := table[id][lag]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		if v, ok := averages[lag]; ok {
			row = append(row, v)
		} else {
			row = append(row, nil)
		}
		cell, err := excelize.CoordinatesToCellName(1, lag+1)
		if err != nil {
			return "", fmt.Errorf("addressing lag %d: %w", lag, err)
		}
		if err := f.SetSheetRow(SheetMSD, cell, &row); err != nil {
			return "", fmt.Errorf("writing lag %d: %w", lag, err)
		}
	}

	labels := []string{"slope", "intercept", "r_squared", "frame_rate", "lags"}
	for i, label := range labels {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetCellValue(SheetFit, cell, label); err != nil {
			return "", fmt.Errorf("writing fit labels: %w", err)
		}
	}
	if fit != nil {
		values := []interface{}{fit.Slope, fit.Intercept, fit.RSquared, fit.FrameRate, fit.Points}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(2, i+1)
			if err := f.SetCellValue(SheetFit, cell, v); err != nil {
				return "", fmt.Errorf("writing fit values: %w", err)
			}
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &WriteError{Path: path, Op: "create directory", Err: err}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return "", &WriteError{Path: path, Op: "save workbook", Err: err}
	}
	return fmt.Sprintf("Wrote MSD workbook to %s", path), nil
}
