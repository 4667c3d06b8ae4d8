// Package audit exports the store tables to an Excel workbook for admins.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// Report is a rendered workbook.
type Report struct {
	Filename string
	Data     []byte
	Rows     map[string]int
}

// Service builds on-demand exports.
type Service struct {
	exporter TableExporter
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(exporter TableExporter, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		exporter: exporter,
		now:      time.Now,
		logger:   logger.With().Str("component", "audit").Logger(),
	}
}

// GenerateFilename creates a filename like "salonbot_2025-01-25_1430.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("salonbot_%s.xlsx", t.Format("2006-01-02_1504"))
}

// Export writes every audited table to its own sheet. A table that cannot be
// read is logged and left out; an export with no sheets is an error.
func (s *Service) Export(ctx context.Context) (*Report, error) {
	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}

	excel := NewExcelizeWriter()
	defer excel.Close()

	rep := &Report{Filename: GenerateFilename(s.now()), Rows: make(map[string]int)}
	for _, tableName := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, tableName)
		if err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("Failed to get table data")
			continue
		}
		if err := excel.AddSheet(tableName); err != nil {
			return nil, err
		}
		if err := excel.WriteHeader(columns); err != nil {
			return nil, fmt.Errorf("write header for %s: %w", tableName, err)
		}

		for _, row := range data {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := excel.WriteRow(values); err != nil {
				return nil, fmt.Errorf("write row for %s: %w", tableName, err)
			}
		}
		rep.Rows[tableName] = len(data)
		s.logger.Debug().Str("table", tableName).Int("rows", len(data)).Msg("Exported table")
	}

	if len(rep.Rows) == 0 {
		return nil, errors.New("nothing to export")
	}

	var buf bytes.Buffer
	if err := excel.Save(&buf); err != nil {
		return nil, fmt.Errorf("save excel: %w", err)
	}
	rep.Data = buf.Bytes()
	return rep, nil
}
