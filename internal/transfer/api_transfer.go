package transfer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	Subject string `json:"subject"`
	jwt.RegisteredClaims
}

type StartSyncRequest struct {
	AccountID string     `json:"account_id" validate:"required"`
	SyncType  string     `json:"sync_type" validate:"omitempty,oneof=full incremental"`
	Since     *time.Time `json:"since"`
}

type StartSyncResponse struct {
	SyncID int64  `json:"sync_id"`
	Status string `json:"status"`
}

type CancelSyncRequest struct {
	SyncID    int64  `json:"sync_id" validate:"required_without=AccountID"`
	AccountID string `json:"account_id" validate:"required_without=SyncID"`
}

type CreativeUpdateRequest struct {
	AdType  *string `json:"ad_type"`
	Person  *string `json:"person"`
	Style   *string `json:"style"`
	Product *string `json:"product"`
	Hook    *string `json:"hook"`
	Theme   *string `json:"theme"`
	Notes   *string `json:"notes"`
}

type BulkUntagRequest struct {
	AdIDs []string `json:"ad_ids" validate:"required,min=1,dive,required"`
}

type AccountCreateRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

type AccountSettingsRequest struct {
	Name           *string  `json:"name" validate:"omitempty,min=1"`
	IsActive       *bool    `json:"is_active"`
	WinnerKPI      *string  `json:"winner_kpi" validate:"omitempty,oneof=roas cpa ctr cpc cpm hold_rate"`
	KPIDirection   *string  `json:"kpi_direction" validate:"omitempty,oneof=gte lte"`
	ScaleThreshold *float64 `json:"scale_threshold"`
	KillThreshold  *float64 `json:"kill_threshold"`
	SpendThreshold *float64 `json:"spend_threshold" validate:"omitempty,gte=0"`
	DateRangeDays  *int     `json:"date_range_days" validate:"omitempty,gte=1,lte=365"`
	ReportSchedule *string  `json:"report_schedule"`
}
