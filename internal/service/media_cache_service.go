package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/internal/metrics"
	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
)

// maxRecordedMediaErrors caps the per-item errors kept on a refresh log.
const maxRecordedMediaErrors = 50

type MediaKindSummary struct {
	Total  int `json:"total"`
	Cached int `json:"cached"`
	Failed int `json:"failed"`
}

type MediaSummary struct {
	LogID      int64            `json:"log_id"`
	Thumbnails MediaKindSummary `json:"thumbnails"`
	Videos     MediaKindSummary `json:"videos"`
}

type MediaCacheService interface {
	// Run mirrors one batch of platform-hosted thumbnails and videos into
	// object storage. Per-item failures are counted, never returned.
	Run(ctx context.Context) (*MediaSummary, error)
	Latest(ctx context.Context) (*models.MediaRefreshLog, error)
}

type mediaCacheService struct {
	cfg     config.Media
	cr      repository.CreativeRepository
	mr      repository.MediaRefreshLogRepository
	storage ObjectStorage
	client  AdsClient
	http    *http.Client
	running atomic.Bool
	now     func() time.Time
}

func NewMediaCacheService(
	cfg config.Media,
	cr repository.CreativeRepository,
	mr repository.MediaRefreshLogRepository,
	storage ObjectStorage,
	client AdsClient) MediaCacheService {
	return &mediaCacheService{
		cfg:     cfg,
		cr:      cr,
		mr:      mr,
		storage: storage,
		client:  client,
		http:    &http.Client{Timeout: cfg.DownloadTimeout},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *mediaCacheService) Latest(ctx context.Context) (*models.MediaRefreshLog, error) {
	l, err := s.mr.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

// mediaRun tracks one refresh so progress writes see consistent counters.
type mediaRun struct {
	mu      sync.Mutex
	log     *models.MediaRefreshLog
	errs    models.APIErrors
	stopped bool
}

func (s *mediaCacheService) Run(ctx context.Context) (*MediaSummary, error) {
	if s.storage == nil {
		return nil, &ValidationError{Field: "storage", Message: "object storage is not configured"}
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, &ConflictError{Key: "media refresh"}
	}
	defer s.running.Store(false)

	l, err := s.mr.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create media refresh log: %w", err)
	}
	run := &mediaRun{log: l}

	thumbs, err := s.cr.ListUncachedMedia(ctx, models.MediaKindThumbnail, s.cfg.BatchSize)
	if err != nil {
		s.fail(ctx, run, err)
		return nil, err
	}
	videos, err := s.cr.ListUncachedMedia(ctx, models.MediaKindVideo, s.cfg.BatchSize)
	if err != nil {
		s.fail(ctx, run, err)
		return nil, err
	}
	run.mu.Lock()
	run.log.ThumbsTotal = len(thumbs)
	run.log.VideosTotal = len(videos)
	run.mu.Unlock()
	slog.Info("media refresh discovered items", "log_id", l.ID, "thumbnails", len(thumbs), "videos", len(videos))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.cacheAll(runCtx, cancel, run, models.MediaPhaseThumbnails, models.MediaKindThumbnail, thumbs, s.cfg.ThumbConcurrency)
	s.cacheAll(runCtx, cancel, run, models.MediaPhaseVideos, models.MediaKindVideo, videos, s.cfg.VideoConcurrency)

	run.mu.Lock()
	stopped := run.stopped
	errs := run.errs
	final := *run.log
	summary := &MediaSummary{
		LogID:      l.ID,
		Thumbnails: MediaKindSummary{Total: l.ThumbsTotal, Cached: l.ThumbsCached, Failed: l.ThumbsFailed},
		Videos:     MediaKindSummary{Total: l.VideosTotal, Cached: l.VideosCached, Failed: l.VideosFailed},
	}
	run.mu.Unlock()

	if stopped {
		slog.Warn("media refresh stopped externally", "log_id", l.ID)
		return summary, nil
	}
	if err := ctx.Err(); err != nil {
		s.fail(ctx, run, err)
		return summary, err
	}

	if _, err := s.mr.Finish(ctx, &final, models.SyncStatusCompleted, errs, s.now()); err != nil {
		return summary, err
	}
	slog.Info("media refresh completed", "log_id", l.ID,
		"thumbs_cached", summary.Thumbnails.Cached, "thumbs_failed", summary.Thumbnails.Failed,
		"videos_cached", summary.Videos.Cached, "videos_failed", summary.Videos.Failed)
	return summary, nil
}

func (s *mediaCacheService) fail(ctx context.Context, run *mediaRun, err error) {
	run.mu.Lock()
	errs := append(run.errs, models.APIError{Source: models.ErrorSourceSystem, Message: err.Error(), At: s.now()})
	final := *run.log
	run.mu.Unlock()

	if _, ferr := s.mr.Finish(context.WithoutCancel(ctx), &final, models.SyncStatusFailed, errs, s.now()); ferr != nil {
		slog.Error("finish media refresh failed", "log_id", final.ID, "error", ferr)
	}
}

func (s *mediaCacheService) cacheAll(
	ctx context.Context,
	stop context.CancelFunc,
	run *mediaRun,
	phase int,
	kind string,
	items []*models.MediaItem,
	concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}

	run.mu.Lock()
	run.log.CurrentPhase = phase
	run.mu.Unlock()
	s.progress(ctx, stop, run)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}

		go func(item *models.MediaItem) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := s.cacheItem(ctx, item, kind)

			run.mu.Lock()
			if err != nil {
				slog.Warn("media cache item failed", "ad_id", item.AdID, "kind", kind, "error", err)
				if len(run.errs) < maxRecordedMediaErrors {
					run.errs = append(run.errs, models.APIError{
						Source:  models.ErrorSourceSystem,
						Code:    kind,
						Message: fmt.Sprintf("%s: %v", item.AdID, err),
						At:      s.now(),
					})
				}
			}
			run.count(kind, err == nil)
			run.mu.Unlock()

			outcome := "cached"
			if err != nil {
				outcome = "failed"
			}
			metrics.MediaItems.WithLabelValues(kind, outcome).Inc()
			s.progress(ctx, stop, run)
		}(item)
	}
	wg.Wait()
}

func (r *mediaRun) count(kind string, ok bool) {
	switch {
	case kind == models.MediaKindThumbnail && ok:
		r.log.ThumbsCached++
	case kind == models.MediaKindThumbnail:
		r.log.ThumbsFailed++
	case ok:
		r.log.VideosCached++
	default:
		r.log.VideosFailed++
	}
}

// progress writes counters and doubles as the heartbeat. A refresh that was
// failed by the reaper stops here.
func (s *mediaCacheService) progress(ctx context.Context, stop context.CancelFunc, run *mediaRun) {
	run.mu.Lock()
	snapshot := *run.log
	run.mu.Unlock()

	ok, err := s.mr.UpdateProgress(ctx, &snapshot)
	if err != nil {
		slog.Warn("media refresh progress write failed", "log_id", snapshot.ID, "error", err)
		return
	}
	if !ok {
		run.mu.Lock()
		run.stopped = true
		run.mu.Unlock()
		stop()
	}
}

func (s *mediaCacheService) cacheItem(ctx context.Context, item *models.MediaItem, kind string) error {
	src := item.SourceURL
	if kind == models.MediaKindVideo && src == "" {
		if s.client == nil {
			return fmt.Errorf("video %s has no source url", item.VideoID)
		}
		resolved, err := s.client.VideoSource(ctx, item.VideoID)
		if err != nil {
			return fmt.Errorf("resolve video source: %w", err)
		}
		src = resolved
	}

	limit := s.cfg.MaxImageBytes
	if kind == models.MediaKindVideo {
		limit = s.cfg.MaxVideoBytes
	}
	body, err := s.download(ctx, src, limit)
	if err != nil {
		return err
	}

	fileType, err := filetype.Match(body)
	if err != nil || fileType == types.Unknown {
		return fmt.Errorf("unsupported file type")
	}
	if kind == models.MediaKindThumbnail && fileType.MIME.Type != "image" {
		return fmt.Errorf("thumbnail is %s, not an image", fileType.MIME.Value)
	}
	if kind == models.MediaKindVideo && fileType.MIME.Type != "video" {
		return fmt.Errorf("video is %s, not a video", fileType.MIME.Value)
	}

	key := MediaKey(item.AccountID, item.AdID, kind, fileType.Extension)
	if err := s.storage.UploadToR2(ctx, key, body, fileType.MIME.Value); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	newURL := s.storage.PublicURL(key)
	ok, err := s.cr.SetMediaURL(ctx, item.AdID, kind, item.SourceURL, newURL)
	if err != nil {
		return fmt.Errorf("update %s url: %w", kind, err)
	}
	if !ok {
		s.discardUpload(ctx, item, kind, key, newURL)
		return fmt.Errorf("%s url changed during caching", kind)
	}
	return nil
}

// discardUpload removes an object whose URL swap lost, unless a concurrent
// worker already points the creative at the same key.
func (s *mediaCacheService) discardUpload(ctx context.Context, item *models.MediaItem, kind, key, newURL string) {
	ctx = context.WithoutCancel(ctx)
	c, err := s.cr.GetByID(ctx, item.AdID)
	if err == nil && c != nil {
		current := c.ThumbnailURL
		if kind == models.MediaKindVideo {
			current = c.VideoURL
		}
		if current == newURL {
			return
		}
	}
	if err := s.storage.DeleteFromR2(ctx, key); err != nil {
		slog.Warn("delete orphaned media failed", "key", key, "error", err)
	}
}

func (s *mediaCacheService) download(ctx context.Context, src string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}
	if limit > 0 && resp.ContentLength > limit {
		return nil, fmt.Errorf("media is %d bytes, limit is %d", resp.ContentLength, limit)
	}

	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, fmt.Errorf("media exceeds %d bytes", limit)
	}
	return body, nil
}

// MediaKey is the storage key of a creative's mirrored media.
func MediaKey(accountID, adID, kind, ext string) string {
	return fmt.Sprintf("creatives/%s/%s/%s.%s", accountID, adID, kind, ext)
}
