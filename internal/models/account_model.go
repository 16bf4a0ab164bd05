package models

import (
	"time"

	"github.com/maheshrc27/adpulse/pkg/admetrics"
)

type Account struct {
	ID             string              `db:"id" json:"id"`
	Name           string              `db:"name" json:"name"`
	IsActive       bool                `db:"is_active" json:"is_active"`
	LastSyncedAt   *time.Time          `db:"last_synced_at" json:"last_synced_at"`
	WinnerKPI      admetrics.KPI       `db:"winner_kpi" json:"winner_kpi"`
	KPIDirection   admetrics.Direction `db:"kpi_direction" json:"kpi_direction"`
	ScaleThreshold float64             `db:"scale_threshold" json:"scale_threshold"`
	KillThreshold  float64             `db:"kill_threshold" json:"kill_threshold"`
	SpendThreshold float64             `db:"spend_threshold" json:"spend_threshold"`
	DateRangeDays  int                 `db:"date_range_days" json:"date_range_days"`
	ReportSchedule string              `db:"report_schedule" json:"report_schedule"`
	CreativeCount  int                 `db:"creative_count" json:"creative_count"`
	UntaggedCount  int                 `db:"untagged_count" json:"untagged_count"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

const DefaultDateRangeDays = 30

func (a *Account) Thresholds() admetrics.Thresholds {
	return admetrics.Thresholds{
		KPI:            a.WinnerKPI,
		Direction:      a.KPIDirection,
		ScaleThreshold: a.ScaleThreshold,
		KillThreshold:  a.KillThreshold,
		SpendThreshold: a.SpendThreshold,
	}
}

func (a *Account) RangeDays() int {
	if a.DateRangeDays <= 0 {
		return DefaultDateRangeDays
	}
	return a.DateRangeDays
}

type AccountRollup struct {
	CreativeCount int `json:"creative_count"`
	UntaggedCount int `json:"untagged_count"`
}
