package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
	"github.com/maheshrc27/adpulse/pkg/admetrics"
	"github.com/robfig/cron"
)

const summaryPageSize = 500

type AccountSettings struct {
	Name           *string
	IsActive       *bool
	WinnerKPI      *admetrics.KPI
	KPIDirection   *admetrics.Direction
	ScaleThreshold *float64
	KillThreshold  *float64
	SpendThreshold *float64
	DateRangeDays  *int
	ReportSchedule *string
}

type DateRange struct {
	From time.Time
	To   time.Time
}

type AccountSummary struct {
	AccountID string                    `json:"account_id"`
	DateFrom  time.Time                 `json:"date_from"`
	DateTo    time.Time                 `json:"date_to"`
	Totals    admetrics.Counters        `json:"totals"`
	Metrics   admetrics.Metrics         `json:"metrics"`
	Verdicts  map[admetrics.Verdict]int `json:"verdicts"`
	Creatives int                       `json:"creatives"`
}

type AccountService interface {
	List(ctx context.Context) ([]*models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, id, name string) (*models.Account, error)
	UpdateSettings(ctx context.Context, id string, in AccountSettings) (*models.Account, error)
	// Summary blends the account's counters over the range before computing
	// ratios, and counts creatives per verdict.
	Summary(ctx context.Context, id string, r *DateRange) (*AccountSummary, error)
	Trends(ctx context.Context, id string, r *DateRange) ([]*models.TrendPoint, error)
}

type accountService struct {
	ar  repository.AccountRepository
	cr  repository.CreativeRepository
	dr  repository.DailyMetricRepository
	now func() time.Time
}

func NewAccountService(ar repository.AccountRepository, cr repository.CreativeRepository, dr repository.DailyMetricRepository) AccountService {
	return &accountService{
		ar:  ar,
		cr:  cr,
		dr:  dr,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	return s.ar.List(ctx)
}

func (s *accountService) Get(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.ar.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *accountService) Create(ctx context.Context, id, name string) (*models.Account, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "act_")
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "is required"}
	}
	if id == models.AccountKeyAll {
		return nil, &ValidationError{Field: "id", Message: "is reserved"}
	}
	if name == "" {
		name = id
	}

	if err := s.ar.Upsert(ctx, &models.Account{ID: id, Name: name, IsActive: true}); err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	slog.Info("account registered", "account_id", id)
	return s.Get(ctx, id)
}

func (s *accountService) UpdateSettings(ctx context.Context, id string, in AccountSettings) (*models.Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		a.Name = *in.Name
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	if in.WinnerKPI != nil {
		a.WinnerKPI = *in.WinnerKPI
	}
	if in.KPIDirection != nil {
		a.KPIDirection = *in.KPIDirection
	}
	if in.ScaleThreshold != nil {
		a.ScaleThreshold = *in.ScaleThreshold
	}
	if in.KillThreshold != nil {
		a.KillThreshold = *in.KillThreshold
	}
	if in.SpendThreshold != nil {
		a.SpendThreshold = *in.SpendThreshold
	}
	if in.DateRangeDays != nil {
		if *in.DateRangeDays <= 0 {
			return nil, &ValidationError{Field: "date_range_days", Message: "must be positive"}
		}
		a.DateRangeDays = *in.DateRangeDays
	}
	if in.ReportSchedule != nil {
		spec := strings.TrimSpace(*in.ReportSchedule)
		if spec != "" {
			if _, err := cron.ParseStandard(spec); err != nil {
				return nil, &ValidationError{Field: "report_schedule", Message: err.Error()}
			}
		}
		a.ReportSchedule = spec
	}

	if err := a.Thresholds().Validate(); err != nil {
		return nil, &ValidationError{Field: "thresholds", Message: err.Error()}
	}

	if err := s.ar.UpdateSettings(ctx, a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// resolveRange defaults to the account's reporting window ending today.
func (s *accountService) resolveRange(a *models.Account, r *DateRange) (DateRange, error) {
	if r == nil {
		w := WindowEndingAt(s.now(), a.RangeDays())
		return DateRange{From: w.Since, To: w.Until}, nil
	}
	if r.To.Before(r.From) {
		return DateRange{}, &ValidationError{Field: "date_to", Message: "must not be before date_from"}
	}
	return *r, nil
}

func (s *accountService) Summary(ctx context.Context, id string, r *DateRange) (*AccountSummary, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rng, err := s.resolveRange(a, r)
	if err != nil {
		return nil, err
	}

	var creatives []*models.Creative
	for offset := 0; ; offset += summaryPageSize {
		page, total, err := s.cr.List(ctx, models.CreativeFilter{
			AccountID: id,
			DateFrom:  &rng.From,
			DateTo:    &rng.To,
			Limit:     summaryPageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, err
		}
		creatives = append(creatives, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}

	rows, err := s.dr.ListAccountLevel(ctx, id, rng.From, rng.To)
	if err != nil {
		return nil, err
	}
	counters := make([]admetrics.Counters, 0, len(rows))
	for _, row := range rows {
		counters = append(counters, row.Counters)
	}
	// Accounts synced before account-level rows existed only have ad rows.
	if len(counters) == 0 {
		for _, c := range creatives {
			counters = append(counters, c.Counters)
		}
	}
	totals, m := admetrics.Aggregate(counters...)

	verdicts := make(map[admetrics.Verdict]int)
	if t := a.Thresholds(); t.Validate() == nil {
		for _, c := range creatives {
			verdicts[admetrics.Classify(c.Counters, t)]++
		}
	}

	return &AccountSummary{
		AccountID: id,
		DateFrom:  rng.From,
		DateTo:    rng.To,
		Totals:    totals,
		Metrics:   m,
		Verdicts:  verdicts,
		Creatives: len(creatives),
	}, nil
}

func (s *accountService) Trends(ctx context.Context, id string, r *DateRange) ([]*models.TrendPoint, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rng, err := s.resolveRange(a, r)
	if err != nil {
		return nil, err
	}

	rows, err := s.dr.ListAccountLevel(ctx, id, rng.From, rng.To)
	if err != nil {
		return nil, err
	}
	points := make([]*models.TrendPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, &models.TrendPoint{
			Date:     row.Date,
			Counters: row.Counters,
			Metrics:  admetrics.Compute(row.Counters),
		})
	}
	return points, nil
}
