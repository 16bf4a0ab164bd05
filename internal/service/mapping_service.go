package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
)

// mappingColumns are the required CSV columns, matched case-insensitively.
var mappingColumns = []string{"uniquecode", "type", "person", "style", "product", "hook", "theme"}

type ImportResult struct {
	Imported int          `json:"imported"`
	Retag    *RetagResult `json:"retag,omitempty"`
}

type MappingService interface {
	// ImportCSV validates the whole file before writing anything, stores the
	// mappings and re-runs the auto-tag pass for the account.
	ImportCSV(ctx context.Context, accountID string, r io.Reader) (*ImportResult, error)
	List(ctx context.Context, accountID string) ([]*models.NameMapping, error)
}

type mappingService struct {
	ar repository.AccountRepository
	nr repository.NameMappingRepository
	ts TagService
}

func NewMappingService(ar repository.AccountRepository, nr repository.NameMappingRepository, ts TagService) MappingService {
	return &mappingService{ar: ar, nr: nr, ts: ts}
}

func (s *mappingService) List(ctx context.Context, accountID string) ([]*models.NameMapping, error) {
	return s.nr.ListByAccount(ctx, accountID)
}

func (s *mappingService) ImportCSV(ctx context.Context, accountID string, r io.Reader) (*ImportResult, error) {
	account, err := s.ar.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}

	mappings, err := ParseMappingCSV(r)
	if err != nil {
		return nil, err
	}

	n, err := s.nr.ReplaceMany(ctx, accountID, mappings)
	if err != nil {
		return nil, fmt.Errorf("store name mappings: %w", err)
	}
	slog.Info("name mappings imported", "account_id", accountID, "count", n)

	retag, err := s.ts.RetagAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("retag after import: %w", err)
	}
	return &ImportResult{Imported: n, Retag: retag}, nil
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer("_", "", " ", "", "-", "").Replace(h)
}

// ParseMappingCSV reads a mapping upload. Any malformed row fails the whole
// file. A code repeated in the file keeps its last row.
func ParseMappingCSV(r io.Reader) ([]*models.NameMapping, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ValidationError{Field: "file", Message: "csv is empty"}
	}
	if err != nil {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("read csv header: %v", err)}
	}

	headerMap := make(map[string]int, len(headers))
	for i, h := range headers {
		headerMap[normalizeHeader(h)] = i
	}
	for _, col := range mappingColumns {
		if _, ok := headerMap[col]; !ok {
			return nil, &ValidationError{Field: "header", Message: "missing required column: " + col}
		}
	}

	index := make(map[string]int)
	var mappings []*models.NameMapping
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("row %d", line), Message: err.Error()}
		}
		if len(row) != len(headers) {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("row %d", line),
				Message: fmt.Sprintf("expected %d fields, got %d", len(headers), len(row)),
			}
		}

		get := func(col string) string { return strings.TrimSpace(row[headerMap[col]]) }
		m := &models.NameMapping{
			UniqueCode: get("uniquecode"),
			AdType:     get("type"),
			Person:     get("person"),
			Style:      get("style"),
			Product:    get("product"),
			Hook:       get("hook"),
			Theme:      get("theme"),
		}
		if m.UniqueCode == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("row %d", line), Message: "unique code is empty"}
		}

		if i, ok := index[m.UniqueCode]; ok {
			mappings[i] = m
			continue
		}
		index[m.UniqueCode] = len(mappings)
		mappings = append(mappings, m)
	}

	if len(mappings) == 0 {
		return nil, &ValidationError{Field: "file", Message: "csv has no rows"}
	}
	return mappings, nil
}
