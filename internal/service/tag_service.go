package service

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/adpulse/internal/metrics"
	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
	"github.com/maheshrc27/adpulse/pkg/tagparser"
)

type RetagResult struct {
	Updated       int `json:"updated"`
	Unchanged     int `json:"unchanged"`
	SkippedManual int `json:"skipped_manual"`
}

type TagService interface {
	// RetagAccount runs the auto-tag pass over every creative of the account.
	RetagAccount(ctx context.Context, accountID string) (*RetagResult, error)
	MappingTable(ctx context.Context, accountID string) (tagparser.MappingTable, error)
}

type tagService struct {
	ar repository.AccountRepository
	cr repository.CreativeRepository
	nr repository.NameMappingRepository
}

func NewTagService(ar repository.AccountRepository, cr repository.CreativeRepository, nr repository.NameMappingRepository) TagService {
	return &tagService{ar: ar, cr: cr, nr: nr}
}

func (s *tagService) MappingTable(ctx context.Context, accountID string) (tagparser.MappingTable, error) {
	mappings, err := s.nr.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return models.MappingTable(mappings), nil
}

func (s *tagService) RetagAccount(ctx context.Context, accountID string) (*RetagResult, error) {
	account, err := s.ar.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}

	table, err := s.MappingTable(ctx, accountID)
	if err != nil {
		return nil, err
	}

	creatives, err := s.cr.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := &RetagResult{}
	for _, c := range creatives {
		d := tagparser.Resolve(tagparser.Current{Tags: c.Tags(), Source: c.TagSource}, c.Name, "", table)
		switch {
		case d.Skipped:
			result.SkippedManual++
			continue
		case !d.Changed:
			result.Unchanged++
			continue
		}

		ok, err := s.cr.UpdateTags(ctx, models.TagUpdate{
			AdID:       c.AdID,
			Tags:       d.Tags,
			Source:     d.Source,
			PrevSource: c.TagSource,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			// Edited by a user since we read it.
			result.SkippedManual++
			continue
		}
		metrics.TagWrites.WithLabelValues(string(d.Source)).Inc()
		result.Updated++
	}

	if err := refreshRollup(ctx, s.ar, s.cr, accountID); err != nil {
		return nil, err
	}

	slog.Info("retag finished", "account_id", accountID,
		"updated", result.Updated, "unchanged", result.Unchanged, "skipped_manual", result.SkippedManual)
	return result, nil
}

func refreshRollup(ctx context.Context, ar repository.AccountRepository, cr repository.CreativeRepository, accountID string) error {
	rollup, err := cr.Rollup(ctx, accountID)
	if err != nil {
		return err
	}
	return ar.SetRollup(ctx, accountID, rollup)
}
