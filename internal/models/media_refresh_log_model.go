package models

import "time"

const (
	MediaPhaseDiscover = iota + 1
	MediaPhaseThumbnails
	MediaPhaseVideos
)

type MediaRefreshLog struct {
	ID           int64      `db:"id" json:"id"`
	Status       string     `db:"status" json:"status"`
	CurrentPhase int        `db:"current_phase" json:"current_phase"`
	ThumbsTotal  int        `db:"thumbs_total" json:"thumbs_total"`
	ThumbsCached int        `db:"thumbs_cached" json:"thumbs_cached"`
	ThumbsFailed int        `db:"thumbs_failed" json:"thumbs_failed"`
	VideosTotal  int        `db:"videos_total" json:"videos_total"`
	VideosCached int        `db:"videos_cached" json:"videos_cached"`
	VideosFailed int        `db:"videos_failed" json:"videos_failed"`
	Errors       APIErrors  `db:"errors" json:"errors"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at"`
}

// MediaItem is a creative whose media still points at the ads platform.
type MediaItem struct {
	AdID      string
	AccountID string
	// SourceURL is the current column value; empty for videos that only
	// have a video id.
	SourceURL string
	VideoID   string
}

const (
	MediaKindThumbnail = "thumbnail"
	MediaKindVideo     = "video"
)
