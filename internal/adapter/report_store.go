package adapter

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
	m "gooze.dev/pkg/mutexec/internal/model"
)

const reportFileName = "report.yaml"

// ReportStore persists mutation testing reports.
type ReportStore interface {
	SaveReport(dir m.Path, report m.Report) error
	LoadReport(dir m.Path) (m.Report, error)
}

// LocalReportStore keeps the latest report as report.yaml in a directory.
type LocalReportStore struct {
	fsAdapter SourceFSAdapter
}

// NewReportStore constructs a LocalReportStore.
func NewReportStore(fsAdapter SourceFSAdapter) *LocalReportStore {
	return &LocalReportStore{fsAdapter: fsAdapter}
}

// SaveReport writes report into dir, creating it when needed.
func (s *LocalReportStore) SaveReport(dir m.Path, report m.Report) error {
	if err := os.MkdirAll(string(dir), 0o750); err != nil {
		slog.Error("Failed to create reports dir", "dir", dir, "error", err)
		return fmt.Errorf("failed to create reports dir: %w", err)
	}

	content, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	path := s.fsAdapter.JoinPath(string(dir), reportFileName)
	if err := s.fsAdapter.WriteFile(path, content, 0o600); err != nil {
		slog.Error("Failed to write report", "path", path, "error", err)
		return fmt.Errorf("failed to write report: %w", err)
	}

	slog.Info("Saved report", "path", path, "id", report.ID, "mutants", len(report.Results))

	return nil
}

// LoadReport reads the report stored in dir.
func (s *LocalReportStore) LoadReport(dir m.Path) (m.Report, error) {
	path := s.fsAdapter.JoinPath(string(dir), reportFileName)

	content, err := s.fsAdapter.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read report", "path", path, "error", err)
		return m.Report{}, fmt.Errorf("failed to read report: %w", err)
	}

	var report m.Report
	if err := yaml.Unmarshal(content, &report); err != nil {
		return m.Report{}, fmt.Errorf("failed to decode report %s: %w", path, err)
	}

	return report, nil
}
