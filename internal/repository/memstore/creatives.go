package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/pkg/admetrics"
	"github.com/maheshrc27/adpulse/pkg/tagparser"
)

type creativeStore struct{ s *Store }

func (r *creativeStore) GetByID(ctx context.Context, adID string) (*models.Creative, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.creatives[adID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *creativeStore) ListByAccount(ctx context.Context, accountID string) ([]*models.Creative, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.Creative
	for _, c := range r.s.creatives {
		if c.AccountID == accountID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdID < out[j].AdID })
	return out, nil
}

func (r *creativeStore) List(ctx context.Context, f models.CreativeFilter) ([]*models.Creative, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	search := strings.ToLower(f.Search)
	ranged := f.DateFrom != nil || f.DateTo != nil
	from := time.Time{}
	if f.DateFrom != nil {
		from = *f.DateFrom
	}
	to := r.s.now()
	if f.DateTo != nil {
		to = *f.DateTo
	}

	var out []*models.Creative
	for _, c := range r.s.creatives {
		if f.AccountID != "" && c.AccountID != f.AccountID {
			continue
		}
		if f.TagSource != "" && c.TagSource != f.TagSource {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.UniqueCode), search) {
			continue
		}
		cp := *c
		if ranged {
			cp.Counters = r.sumDaily(c.AccountID, c.AdID, from, to)
		}
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Counters.Spend != out[j].Counters.Spend {
			return out[i].Counters.Spend > out[j].Counters.Spend
		}
		return out[i].AdID < out[j].AdID
	})

	total := len(out)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *creativeStore) sumDaily(accountID, adID string, from, to time.Time) admetrics.Counters {
	var sum admetrics.Counters
	for k, d := range r.s.daily {
		if k.accountID == accountID && k.adID == adID && inRange(d.Date, from, to) {
			sum = sum.Add(d.Counters)
		}
	}
	return sum
}

func (r *creativeStore) UpsertMany(ctx context.Context, creatives []*models.Creative) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	for _, in := range creatives {
		cur, ok := r.s.creatives[in.AdID]
		if !ok {
			c := *in
			c.Counters = admetrics.Counters{}
			if c.TagSource == "" {
				c.TagSource = tagparser.SourceUntagged
			}
			if c.AnalysisStatus == "" {
				c.AnalysisStatus = models.AnalysisStatusPending
			}
			c.CreatedAt = now
			c.UpdatedAt = now
			r.s.creatives[c.AdID] = &c
			continue
		}

		cur.AccountID = in.AccountID
		cur.Name = in.Name
		cur.Status = in.Status
		cur.CampaignName = in.CampaignName
		cur.AdsetName = in.AdsetName
		switch {
		case r.s.mediaBaseURL != "" && strings.HasPrefix(cur.ThumbnailURL, r.s.mediaBaseURL):
		case in.ThumbnailURL == "":
		default:
			cur.ThumbnailURL = in.ThumbnailURL
		}
		if in.VideoID != "" && in.VideoID != cur.VideoID {
			cur.VideoURL = in.VideoURL
		}
		if in.VideoID != "" {
			cur.VideoID = in.VideoID
		}
		if cur.TagSource != tagparser.SourceManual {
			cur.SetTags(in.Tags(), in.TagSource)
		}
		cur.UpdatedAt = now
	}
	return nil
}

func (r *creativeStore) UpdateTags(ctx context.Context, u models.TagUpdate) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.creatives[u.AdID]
	if !ok || cur.TagSource != u.PrevSource || cur.TagSource == tagparser.SourceManual {
		return false, nil
	}
	cur.SetTags(u.Tags, u.Source)
	cur.UpdatedAt = r.s.now()
	return true, nil
}

func (r *creativeStore) Update(ctx context.Context, adID string, u models.CreativeUpdate) (*models.Creative, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.creatives[adID]
	if !ok {
		return nil, nil
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cur.AdType, u.AdType)
	set(&cur.Person, u.Person)
	set(&cur.Style, u.Style)
	set(&cur.Product, u.Product)
	set(&cur.Hook, u.Hook)
	set(&cur.Theme, u.Theme)
	set(&cur.Notes, u.Notes)
	if u.TagSource != nil {
		cur.TagSource = *u.TagSource
	}
	cur.UpdatedAt = r.s.now()

	cp := *cur
	return &cp, nil
}

func (r *creativeStore) BulkUntag(ctx context.Context, adIDs []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, id := range adIDs {
		cur, ok := r.s.creatives[id]
		if !ok {
			continue
		}
		cur.SetTags(tagparser.Tags{UniqueCode: cur.UniqueCode}, tagparser.SourceUntagged)
		cur.UpdatedAt = r.s.now()
		n++
	}
	return n, nil
}

func (r *creativeStore) Rollup(ctx context.Context, accountID string) (models.AccountRollup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rollup models.AccountRollup
	for _, c := range r.s.creatives {
		if c.AccountID != accountID {
			continue
		}
		rollup.CreativeCount++
		if c.TagSource == tagparser.SourceUntagged {
			rollup.UntaggedCount++
		}
	}
	return rollup, nil
}

func (r *creativeStore) RefreshCounters(ctx context.Context, accountID string, from, to time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	for _, c := range r.s.creatives {
		if c.AccountID != accountID {
			continue
		}
		c.Counters = r.sumDaily(accountID, c.AdID, from, to)
		c.UpdatedAt = now
	}
	return nil
}

func (r *creativeStore) ListUncachedMedia(ctx context.Context, kind string, limit int) ([]*models.MediaItem, error) {
	if kind != models.MediaKindThumbnail && kind != models.MediaKindVideo {
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	base := r.s.mediaBaseURL
	var matched []*models.Creative
	for _, c := range r.s.creatives {
		switch kind {
		case models.MediaKindThumbnail:
			if c.ThumbnailURL != "" && !strings.HasPrefix(c.ThumbnailURL, base) {
				matched = append(matched, c)
			}
		case models.MediaKindVideo:
			if c.VideoID != "" && (c.VideoURL == "" || !strings.HasPrefix(c.VideoURL, base)) {
				matched = append(matched, c)
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].AdID < matched[j].AdID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	items := make([]*models.MediaItem, 0, len(matched))
	for _, c := range matched {
		src := c.ThumbnailURL
		if kind == models.MediaKindVideo {
			src = c.VideoURL
		}
		items = append(items, &models.MediaItem{AdID: c.AdID, AccountID: c.AccountID, SourceURL: src, VideoID: c.VideoID})
	}
	return items, nil
}

func (r *creativeStore) SetMediaURL(ctx context.Context, adID, kind, oldURL, newURL string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.creatives[adID]
	if !ok {
		return false, nil
	}
	col := &cur.ThumbnailURL
	if kind == models.MediaKindVideo {
		col = &cur.VideoURL
	}
	if *col != oldURL {
		return false, nil
	}
	*col = newURL
	cur.UpdatedAt = r.s.now()
	return true, nil
}
