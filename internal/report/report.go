// Package report writes suite reports to disk. The format follows the file
// extension: .json or .xlsx.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gotrs-io/mailflow/internal/scenario"
)

const (
	scenarioSheet = "Scenarios"
	notesSheet    = "Notes"
	timeLayout    = "2006-01-02 15:04:05"
)

// Write stores r at path, creating parent directories as needed.
func Write(path string, r *scenario.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return writeJSON(path, r)
	case ".xlsx":
		return writeXLSX(path, r)
	default:
		return fmt.Errorf("unsupported report format %q", ext)
	}
}

type jsonReport struct {
	*scenario.Report
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func writeJSON(path string, r *scenario.Report) error {
	data, err := json.MarshalIndent(jsonReport{
		Report:  r,
		Passed:  r.Count(scenario.Passed),
		Failed:  r.Count(scenario.Failed),
		Skipped: r.Count(scenario.Skipped),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeXLSX(path string, r *scenario.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", scenarioSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	header := []any{"Run", "Scenario", "Status", "Outcome", "Started", "Duration (s)", "Error"}
	if err := f.SetSheetRow(scenarioSheet, "A1", &header); err != nil {
		return err
	}
	for i, res := range r.Results {
		row := []any{
			r.RunID,
			res.Scenario,
			string(res.Status),
			res.Outcome,
			res.Started.Format(timeLayout),
			res.Duration.Seconds(),
			res.Error,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(scenarioSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(scenarioSheet, "A1", "G1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(scenarioSheet, "A", "B", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(scenarioSheet, "G", "G", 80); err != nil {
		return err
	}

	if _, err := f.NewSheet(notesSheet); err != nil {
		return err
	}
	noteHeader := []any{"Scenario", "Key", "Value"}
	if err := f.SetSheetRow(notesSheet, "A1", &noteHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(notesSheet, "A1", "C1", bold); err != nil {
		return err
	}
	line := 2
	for _, res := range r.Results {
		for _, n := range res.Notes {
			row := []any{res.Scenario, n.Key, n.Value}
			if err := f.SetSheetRow(notesSheet, fmt.Sprintf("A%d", line), &row); err != nil {
				return err
			}
			line++
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
