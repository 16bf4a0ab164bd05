package models

import (
	"time"

	"github.com/maheshrc27/adpulse/pkg/admetrics"
	"github.com/maheshrc27/adpulse/pkg/tagparser"
)

type Creative struct {
	AdID           string             `db:"ad_id" json:"ad_id"`
	AccountID      string             `db:"account_id" json:"account_id"`
	Name           string             `db:"name" json:"name"`
	Status         string             `db:"status" json:"status"`
	CampaignName   string             `db:"campaign_name" json:"campaign_name"`
	AdsetName      string             `db:"adset_name" json:"adset_name"`
	ThumbnailURL   string             `db:"thumbnail_url" json:"thumbnail_url"`
	VideoID        string             `db:"video_id" json:"video_id"`
	VideoURL       string             `db:"video_url" json:"video_url"`
	UniqueCode     string             `db:"unique_code" json:"unique_code"`
	AdType         string             `db:"ad_type" json:"ad_type"`
	Person         string             `db:"person" json:"person"`
	Style          string             `db:"style" json:"style"`
	Product        string             `db:"product" json:"product"`
	Hook           string             `db:"hook" json:"hook"`
	Theme          string             `db:"theme" json:"theme"`
	TagSource      tagparser.Source   `db:"tag_source" json:"tag_source"`
	Counters       admetrics.Counters `json:"counters"`
	Notes          string             `db:"notes" json:"notes"`
	AIAnalysis     string             `db:"ai_analysis" json:"ai_analysis"`
	AnalysisStatus string             `db:"analysis_status" json:"analysis_status"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

const (
	AnalysisStatusPending   = "pending"
	AnalysisStatusAnalyzing = "analyzing"
	AnalysisStatusAnalyzed  = "analyzed"
)

func (c *Creative) Tags() tagparser.Tags {
	return tagparser.Tags{
		UniqueCode: c.UniqueCode,
		AdType:     c.AdType,
		Person:     c.Person,
		Style:      c.Style,
		Product:    c.Product,
		Hook:       c.Hook,
		Theme:      c.Theme,
	}
}

func (c *Creative) SetTags(t tagparser.Tags, source tagparser.Source) {
	c.UniqueCode = t.UniqueCode
	c.AdType = t.AdType
	c.Person = t.Person
	c.Style = t.Style
	c.Product = t.Product
	c.Hook = t.Hook
	c.Theme = t.Theme
	c.TagSource = source
}

// CreativeWithMetrics is the read model returned to the dashboard.
type CreativeWithMetrics struct {
	Creative
	Metrics admetrics.Metrics `json:"metrics"`
	Verdict admetrics.Verdict `json:"verdict,omitempty"`
}

type CreativeFilter struct {
	AccountID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Search    string
	TagSource tagparser.Source
	Limit     int
	Offset    int
}

// CreativeUpdate carries a user edit. Nil fields are left unchanged.
type CreativeUpdate struct {
	AdType    *string
	Person    *string
	Style     *string
	Product   *string
	Hook      *string
	Theme     *string
	Notes     *string
	// TagSource is written as given; the service decides it.
	TagSource *tagparser.Source
}

func (u CreativeUpdate) HasTagFields() bool {
	return u.AdType != nil || u.Person != nil || u.Style != nil ||
		u.Product != nil || u.Hook != nil || u.Theme != nil
}

// TagUpdate is a conditional tag write produced by the auto-tag pass.
type TagUpdate struct {
	AdID       string
	Tags       tagparser.Tags
	Source     tagparser.Source
	PrevSource tagparser.Source
}
