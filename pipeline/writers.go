package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aluiziolira/amazon-reviews-scraper/models"
	"github.com/aluiziolira/amazon-reviews-scraper/storage"
)

// Exporter writes the review dataset to JSON and CSV files.
type Exporter struct {
	store  *storage.Manager
	logger *slog.Logger
}

// NewExporter returns an exporter writing through store.
func NewExporter(store *storage.Manager, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = storage.NewManager(logger)
	}
	return &Exporter{
		store:  store,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// ToJSON writes records as an indented JSON array. An empty dataset is
// written as [].
func (e *Exporter) ToJSON(records []models.Record, path string) error {
	if records == nil {
		records = []models.Record{}
	}

	err := e.store.OpenForWrite(path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "    ")
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(records); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("wrote json output",
		slog.String("path", path),
		slog.Int("records", len(records)),
	)
	return nil
}

// ToCSV writes records with a header row. Nothing is written, and an existing
// file is left alone, when records is empty.
func (e *Exporter) ToCSV(records []models.Record, path string) error {
	if len(records) == 0 {
		e.logger.Warn("no records to export, skipping csv", slog.String("path", path))
		return nil
	}

	header := CSVHeader(records)
	err := e.store.OpenForWrite(path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}

		row := make([]string, len(header))
		for _, record := range records {
			for i, key := range header {
				row[i] = formatCell(record[key])
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}

		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv records: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("wrote csv output",
		slog.String("path", path),
		slog.Int("records", len(records)),
		slog.Int("columns", len(header)),
	)
	return nil
}

// CSVHeader returns the sorted union of keys across records.
func CSVHeader(records []models.Record) []string {
	keys := make(map[string]struct{})
	for _, record := range records {
		for key := range record {
			keys[key] = struct{}{}
		}
	}

	header := make([]string, 0, len(keys))
	for key := range keys {
		header = append(header, key)
	}
	sort.Strings(header)
	return header
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
