package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
	"github.com/maheshrc27/adpulse/pkg/admetrics"
	"github.com/maheshrc27/adpulse/pkg/tagparser"
)

type CreativeList struct {
	Data  []*models.CreativeWithMetrics `json:"data"`
	Total int                           `json:"total"`
}

type CreativeService interface {
	List(ctx context.Context, f models.CreativeFilter) (*CreativeList, error)
	Update(ctx context.Context, adID string, u models.CreativeUpdate) (*models.CreativeWithMetrics, error)
	BulkUntag(ctx context.Context, adIDs []string) (int64, error)
}

type creativeService struct {
	ar repository.AccountRepository
	cr repository.CreativeRepository
}

func NewCreativeService(ar repository.AccountRepository, cr repository.CreativeRepository) CreativeService {
	return &creativeService{ar: ar, cr: cr}
}

func (s *creativeService) List(ctx context.Context, f models.CreativeFilter) (*CreativeList, error) {
	if f.TagSource != "" && !f.TagSource.Valid() {
		return nil, &ValidationError{Field: "tag_source", Message: fmt.Sprintf("unknown tag source %q", f.TagSource)}
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return nil, &ValidationError{Field: "date_to", Message: "must not be before date_from"}
	}

	creatives, total, err := s.cr.List(ctx, f)
	if err != nil {
		return nil, err
	}

	thresholds := make(map[string]*admetrics.Thresholds)
	data := make([]*models.CreativeWithMetrics, 0, len(creatives))
	for _, c := range creatives {
		t, err := s.thresholds(ctx, thresholds, c.AccountID)
		if err != nil {
			return nil, err
		}
		data = append(data, withMetrics(c, t))
	}
	return &CreativeList{Data: data, Total: total}, nil
}

// thresholds caches account thresholds for the duration of one listing.
func (s *creativeService) thresholds(ctx context.Context, cache map[string]*admetrics.Thresholds, accountID string) (*admetrics.Thresholds, error) {
	if t, ok := cache[accountID]; ok {
		return t, nil
	}
	a, err := s.ar.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var t *admetrics.Thresholds
	if a != nil {
		th := a.Thresholds()
		if th.Validate() == nil {
			t = &th
		}
	}
	cache[accountID] = t
	return t, nil
}

func withMetrics(c *models.Creative, t *admetrics.Thresholds) *models.CreativeWithMetrics {
	out := &models.CreativeWithMetrics{
		Creative: *c,
		Metrics:  admetrics.Compute(c.Counters),
	}
	if t != nil {
		out.Verdict = admetrics.Classify(c.Counters, *t)
	}
	return out
}

func (s *creativeService) Update(ctx context.Context, adID string, u models.CreativeUpdate) (*models.CreativeWithMetrics, error) {
	u.TagSource = nil
	if u.HasTagFields() {
		cur, err := s.cr.GetByID(ctx, adID)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, ErrNotFound
		}
		manual := tagparser.SourceManual
		if !tagparser.CanTransition(cur.TagSource, manual, tagparser.TriggerUserEdit) {
			return nil, &ValidationError{Field: "tag_source", Message: fmt.Sprintf("cannot edit tags of a %q creative", cur.TagSource)}
		}
		u.TagSource = &manual
	}

	c, err := s.cr.Update(ctx, adID, u)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if u.HasTagFields() {
		slog.Info("creative tagged manually", "ad_id", adID)
		if err := refreshRollup(ctx, s.ar, s.cr, c.AccountID); err != nil {
			slog.Warn("refresh rollup failed", "account_id", c.AccountID, "error", err)
		}
	}

	var t *admetrics.Thresholds
	if a, err := s.ar.GetByID(ctx, c.AccountID); err == nil && a != nil {
		if th := a.Thresholds(); th.Validate() == nil {
			t = &th
		}
	}
	return withMetrics(c, t), nil
}

func (s *creativeService) BulkUntag(ctx context.Context, adIDs []string) (int64, error) {
	if len(adIDs) == 0 {
		return 0, &ValidationError{Field: "ad_ids", Message: "must not be empty"}
	}

	accounts := make(map[string]struct{})
	var eligible []string
	for _, id := range adIDs {
		c, err := s.cr.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if c == nil {
			continue
		}
		if !tagparser.CanTransition(c.TagSource, tagparser.SourceUntagged, tagparser.TriggerReset) {
			slog.Warn("creative cannot be untagged", "ad_id", id, "tag_source", c.TagSource)
			continue
		}
		eligible = append(eligible, id)
		accounts[c.AccountID] = struct{}{}
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	n, err := s.cr.BulkUntag(ctx, eligible)
	if err != nil {
		return 0, err
	}
	for accountID := range accounts {
		if err := refreshRollup(ctx, s.ar, s.cr, accountID); err != nil {
			slog.Warn("refresh rollup failed", "account_id", accountID, "error", err)
		}
	}
	slog.Info("creatives untagged", "requested", len(adIDs), "updated", n)
	return n, nil
}
