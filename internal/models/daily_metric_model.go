package models

import (
	"time"

	"github.com/maheshrc27/adpulse/pkg/admetrics"
)

// AccountLevelAdID marks a DailyMetric row that aggregates the whole account.
const AccountLevelAdID = ""

type DailyMetric struct {
	AccountID string             `db:"account_id" json:"account_id"`
	AdID      string             `db:"ad_id" json:"ad_id,omitempty"`
	Date      time.Time          `db:"date" json:"date"`
	Counters  admetrics.Counters `json:"counters"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

type TrendPoint struct {
	Date     time.Time          `json:"date"`
	Counters admetrics.Counters `json:"counters"`
	Metrics  admetrics.Metrics  `json:"metrics"`
}
