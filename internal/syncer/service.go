package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/Evanition/gettingtwitch-ids/pkg/api"
	"github.com/Evanition/gettingtwitch-ids/pkg/cursor"
	"github.com/Evanition/gettingtwitch-ids/pkg/logger"
	"github.com/Evanition/gettingtwitch-ids/pkg/merge"
	"github.com/Evanition/gettingtwitch-ids/pkg/metrics"
	"github.com/Evanition/gettingtwitch-ids/pkg/store"

	"go.uber.org/zap"
)

// Client is the slice of the API client the driver needs
type Client interface {
	FetchMatches(ctx context.Context, q api.MatchQuery) ([]api.Match, error)
	FetchProfile(ctx context.Context, uuid string) (*api.Profile, error)
}

// Config holds the driver settings
type Config struct {
	DataPath          string
	TargetMatchCount  int
	PageSize          int
	MatchType         int
	RefreshInterval   time.Duration
	CycleInterval     time.Duration
	ProfileErrorLimit int
}

// CycleSummary tallies one completed sync cycle
type CycleSummary struct {
	merge.Summary
	PagesFetched        int
	MatchesFetched      int
	ProfilesFetched     int
	ProfilePhaseAborted bool
	NewestMatchID       int64
	CursorAdvanced      bool
}

// Service sequences one sync cycle: load cursor and records, fetch new
// matches, merge, fetch profiles for touched users, merge, persist records
// and cursor.
type Service struct {
	logger *logger.Logger
	client Client
	cursor cursor.Store
	cfg    Config
	now    func() time.Time
}

// NewService creates a new cycle driver
func NewService(l *logger.Logger, client Client, cursorStore cursor.Store, cfg Config) *Service {
	return &Service{
		logger: l,
		client: client,
		cursor: cursorStore,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run executes sync cycles until the context is cancelled. A non-positive
// cycle interval means run once. Fatal cycle errors stop the loop.
func (s *Service) Run(ctx context.Context) error {
	for {
		summary, err := s.RunCycle(ctx)
		if err != nil {
			metrics.CycleFailuresTotal.Inc()
			return err
		}
		metrics.CyclesCompletedTotal.Inc()

		s.logger.Info("cycle complete",
			zap.Int("pages", summary.PagesFetched),
			zap.Int("matches", summary.MatchesFetched),
			zap.Int("created", summary.Created),
			zap.Int("updated", summary.Updated),
			zap.Int("scraped", summary.Scraped),
			zap.Int("skipped_recent", summary.SkippedRecent),
			zap.Int("profiles", summary.ProfilesFetched),
			zap.Int("twitch_updates", summary.TwitchUpdated),
			zap.Int("profile_errors", summary.ProfileErrors),
			zap.Int64("newest_match_id", summary.NewestMatchID),
			zap.Bool("cursor_advanced", summary.CursorAdvanced))

		if ctx.Err() != nil || s.cfg.CycleInterval <= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.CycleInterval):
		}
	}
}

// RunCycle performs one full fetch-merge-persist cycle. Errors it returns are
// fatal (unreadable or unwritable player table); remote API failures degrade
// to a partial cycle with the cursor left where it was. An interrupt during
// the fetch phases still reaches the save steps, so in-memory state is
// persisted best-effort before shutdown.
func (s *Service) RunCycle(ctx context.Context) (CycleSummary, error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	var sum CycleSummary

	// LoadCursor
	cursorID, ok, err := s.cursor.Load(ctx)
	if err != nil {
		s.logger.Warn("cursor unreadable, fetching without a lower bound", zap.Error(err))
	} else if !ok {
		s.logger.Info("no stored cursor, fetching without a lower bound")
	}

	// LoadRecords
	table, err := store.Load(s.cfg.DataPath)
	if err != nil {
		return sum, fmt.Errorf("failed to load player table: %w", err)
	}
	if n := table.MissingUUIDCount(); n > 0 {
		s.logger.Warn("rows without uuid retained but excluded from updates", zap.Int("rows", n))
	}

	if table.ValidCount() == 0 {
		s.logger.Warn("player table has no rows with valid uuids, persisting header upgrades only")
		if err := table.Save(s.cfg.DataPath); err != nil {
			return sum, fmt.Errorf("failed to save player table: %w", err)
		}
		return sum, nil
	}

	// FetchMatches (paginated) + MergeMatches
	matches, newest, fetchErr := s.fetchMatches(ctx, cursorID, &sum)
	if fetchErr != nil {
		s.logger.Error("match fetch stopped early", fetchErr,
			zap.Int("pages", sum.PagesFetched),
			zap.Int("collected", len(matches)))
	}

	cyc := merge.NewCycle(s.cfg.RefreshInterval, s.now)
	cyc.MergeMatches(table, matches)

	// FetchProfiles + MergeProfiles
	s.fetchProfiles(ctx, table, cyc, &sum)

	// SaveRecords
	cyc.Finalize(table)
	sum.Summary = cyc.Summary
	metrics.RecordsCreatedTotal.Add(float64(sum.Created))
	metrics.RecordsUpdatedTotal.Add(float64(sum.Updated))
	metrics.RecordsSkippedRecentTotal.Add(float64(sum.SkippedRecent))
	metrics.TwitchUpdatesTotal.Add(float64(sum.TwitchUpdated))

	if err := table.Save(s.cfg.DataPath); err != nil {
		return sum, fmt.Errorf("failed to save player table: %w", err)
	}

	// SaveCursor. Only a cleanly completed fetch may advance the cursor:
	// merge is idempotent, so re-fetching the same window next cycle is safe,
	// while skipping an unfetched window is not.
	if fetchErr == nil && newest > cursorID {
		sum.NewestMatchID = newest
		if err := s.cursor.Save(ctx, newest); err != nil {
			s.logger.Warn("cursor save failed, next cycle will refetch", zap.Error(err), zap.Int64("match_id", newest))
		} else {
			metrics.CursorSavesTotal.Inc()
			sum.CursorAdvanced = true
		}
	}

	return sum, nil
}

// fetchMatches pages through the match list newest-first until the target
// count is reached, the stored cursor is crossed, or the history ends. The
// returned error marks an incomplete fetch; collected matches are still
// merged.
func (s *Service) fetchMatches(ctx context.Context, sinceID int64, sum *CycleSummary) ([]api.Match, int64, error) {
	var collected []api.Match
	var newest, before int64

	for len(collected) < s.cfg.TargetMatchCount {
		page, err := s.client.FetchMatches(ctx, api.MatchQuery{
			Count:  s.cfg.PageSize,
			Before: before,
			Type:   s.cfg.MatchType,
		})
		if err != nil {
			sum.MatchesFetched = len(collected)
			return collected, newest, err
		}

		sum.PagesFetched++
		metrics.MatchPagesFetchedTotal.Inc()

		if len(page) == 0 {
			break
		}

		reachedCursor := false
		for _, m := range page {
			if m.ID > newest {
				newest = m.ID
			}
			if sinceID > 0 && m.ID <= sinceID {
				reachedCursor = true
				continue
			}
			collected = append(collected, m)
		}
		if reachedCursor {
			s.logger.Debug("reached stored cursor", zap.Int64("cursor", sinceID))
			break
		}
		if len(page) < s.cfg.PageSize {
			// Short page signals the end of match history
			break
		}

		last := page[len(page)-1].ID
		if last == 0 {
			s.logger.Warn("last match of page has no id, cannot paginate further")
			break
		}
		before = last
	}

	sum.MatchesFetched = len(collected)
	metrics.MatchesFetchedTotal.Add(float64(len(collected)))
	return collected, newest, nil
}

// fetchProfiles refreshes Twitch linkage for every record the match phase
// touched, abandoning the phase after too many consecutive failures.
func (s *Service) fetchProfiles(ctx context.Context, table *store.Table, cyc *merge.Cycle, sum *CycleSummary) {
	consecutive := 0

	for _, id := range cyc.ProfileQueue() {
		if ctx.Err() != nil {
			sum.ProfilePhaseAborted = true
			return
		}

		profile, err := s.client.FetchProfile(ctx, id)
		if err != nil {
			tag := string(api.KindOf(err))
			if tag == "" {
				tag = err.Error()
			}
			cyc.MergeProfileError(id, tag)
			metrics.ProfileErrorsTotal.Inc()
			s.logger.Warn("profile fetch failed", zap.String("uuid", id), zap.String("reason", tag))

			consecutive++
			if consecutive >= s.cfg.ProfileErrorLimit {
				s.logger.Warn("abandoning profile phase after consecutive errors", zap.Int("errors", consecutive))
				sum.ProfilePhaseAborted = true
				return
			}
			continue
		}

		consecutive = 0
		sum.ProfilesFetched++
		metrics.ProfileFetchesTotal.Inc()
		cyc.MergeProfile(table, id, profile)
	}
}
