package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Evanition/gettingtwitch-ids/pkg/api"
	"github.com/Evanition/gettingtwitch-ids/pkg/cursor"
	"github.com/Evanition/gettingtwitch-ids/pkg/logger"
	"github.com/Evanition/gettingtwitch-ids/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mocks
type MockClient struct{ mock.Mock }

func (m *MockClient) FetchMatches(ctx context.Context, q api.MatchQuery) ([]api.Match, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.Match), args.Error(1)
}

func (m *MockClient) FetchProfile(ctx context.Context, uuid string) (*api.Profile, error) {
	args := m.Called(ctx, uuid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Profile), args.Error(1)
}

func testConfig(dataPath string) Config {
	return Config{
		DataPath:          dataPath,
		TargetMatchCount:  500,
		PageSize:          100,
		RefreshInterval:   10 * time.Minute,
		ProfileErrorLimit: 5,
	}
}

// seedTable writes a player table with one stale record so cycles do not
// short-circuit on an empty table.
func seedTable(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "players.csv")
	stale := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	content := "uuid,nickname,eloRate,twitch_name,status,last_scraped_at\n" +
		"seed-uuid,Seed,1500,,," + stale + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func matchPage(fromID int64, n int) []api.Match {
	page := make([]api.Match, n)
	for i := 0; i < n; i++ {
		page[i] = api.Match{ID: fromID - int64(i)}
	}
	return page
}

func TestPaginationStopsAtShortPage(t *testing.T) {
	dir := t.TempDir()
	path := seedTable(t, dir)

	mc := new(MockClient)
	// 137 total matches: one full page, then a short one. No third request.
	mc.On("FetchMatches", mock.Anything, api.MatchQuery{Count: 100}).
		Return(matchPage(1000, 100), nil).Once()
	mc.On("FetchMatches", mock.Anything, api.MatchQuery{Count: 100, Before: 901}).
		Return(matchPage(900, 37), nil).Once()

	s := NewService(logger.Nop(), mc, cursor.NewFileStore(filepath.Join(dir, "cursor.txt")), testConfig(path))
	sum, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.PagesFetched)
	assert.Equal(t, 137, sum.MatchesFetched)
	mc.AssertNumberOfCalls(t, "FetchMatches", 2)
}

func TestPaginationStopsAtTargetCount(t *testing.T) {
	dir := t.TempDir()
	path := seedTable(t, dir)

	cfg := testConfig(path)
	cfg.TargetMatchCount = 150

	mc := new(MockClient)
	mc.On("FetchMatches", mock.Anything, api.MatchQuery{Count: 100}).
		Return(matchPage(1000, 100), nil).Once()
	mc.On("FetchMatches", mock.Anything, api.MatchQuery{Count: 100, Before: 901}).
		Return(matchPage(900, 100), nil).Once()

	s := NewService(logger.Nop(), mc, cursor.NewFileStore(filepath.Join(dir, "cursor.txt")), cfg)
	sum, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 200, sum.MatchesFetched)
	mc.AssertNumberOfCalls(t, "FetchMatches", 2)
}

func TestPaginationStopsAtStoredCursor(t *testing.T) {
	dir := t.TempDir()
	path := seedTable(t, dir)
	cursorPath := filepath.Join(dir, "cursor.txt")

	cs := cursor.NewFileStore(cursorPath)
	require.NoError(t, cs.Save(context.Background(), 995))

	mc := new(MockClient)
	mc.On("FetchMatches", mock.Anything, api.MatchQuery{Count: 100}).
		Return(matchPage(1000, 100), nil).Once()

	s := NewService(logger.Nop(), mc, cs, testConfig(path))
	sum, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	// Only the five matches newer than the cursor are collected, and the
	// boundary stops pagination after one page.
	assert.Equal(t, 5, sum.MatchesFetched)
	mc.AssertNumberOfCalls(t, "FetchMatches", 1)

	// Cursor advanced to the newest seen id
	id, ok, err := cs.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1000), id)
}

func TestCursorNotAdvancedOnFetchFailure(t *testing.T) {
	dir := t.TempDir()
	path := seedTable(t, dir)
	cursorPath := filepath.Join(dir, "cursor.txt")
	require.NoError(t, os.WriteFile(cursorPath, []byte("4321"), 0644))

	mc := new(MockClient)
	mc.On("FetchMatches", mock.Anything, mock.Anything).
		Return(nil, &api.Error{Kind: api.KindRateLimitExhausted})

	s := NewService(logger.Nop(), mc, cursor.NewFileStore(cursorPath), testConfig(path))
	_, err := s.RunCycle(context.Background())
	require.NoError(t, err, "a failed fetch degrades the cycle, it does not abort it")

	data, err := os.ReadFile(cursorPath)
	require.NoError(t, err)
	assert.Equal(t, "4321", string(data))
}

func TestPartialFetchMergedButCursorHeld(t *testing.T) {
	dir := t.TempDir()
	path := seedTable(t, dir)
	cursorPath := filepath.Join(dir, "cursor.txt")

	mc := new(MockClient)
	page := []api.Match{{ID: 1000, Players: []api.MatchPlayer{{UUID: "seed-uuid", Nickname: "Seed", EloRate: intPtr(1550)}}}}
	full := append(page, matchPage(999, 99)...)
	mc.On("FetchMatches", mock.Anything, api.MatchQuery{Count: 100}).
		Return(full, nil).Once()
	mc.On("FetchMatches", mock.Anything, api.MatchQuery{Count: 100, Before: 901}).
		Return(nil, errors.New("connection reset")).Once()
	mc.On("FetchProfile", mock.Anything, "seed-uuid").
		Return(&api.Profile{UUID: "seed-uuid"}, nil)

	s := NewService(logger.Nop(), mc, cursor.NewFileStore(cursorPath), testConfig(path))
	sum, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	// Collected matches were merged and persisted
	assert.Equal(t, 1, sum.Updated)
	table, err := store.Load(path)
	require.NoError(t, err)
	rec, ok := table.Get("seed-uuid")
	require.True(t, ok)
	assert.Equal(t, "1550", rec.EloRate())

	// But the incomplete window must be refetched next cycle
	_, ok, loadErr := cursor.NewFileStore(cursorPath).Load(context.Background())
	require.NoError(t, loadErr)
	assert.False(t, ok)
	assert.False(t, sum.CursorAdvanced)
}

func TestZeroValidUUIDsShortCircuits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "players.csv")
	// Old header, no usable rows
	require.NoError(t, os.WriteFile(path, []byte("uuid,nickname,eloRate\n,Ghost,1200\n"), 0644))

	mc := new(MockClient)
	s := NewService(logger.Nop(), mc, cursor.NewFileStore(filepath.Join(dir, "cursor.txt")), testConfig(path))

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	mc.AssertNotCalled(t, "FetchMatches")

	// Header upgrades were still persisted
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "twitch_name")
}

func TestProfilePhaseAbortsAfterConsecutiveErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "players.csv")

	stale := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	content := "uuid,nickname,eloRate,twitch_name,status,last_scraped_at\n"
	var players []api.MatchPlayer
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("uuid-%02d", i)
		content += fmt.Sprintf("%s,Player%d,1500,,,%s\n", id, i, stale)
		players = append(players, api.MatchPlayer{UUID: id, EloRate: intPtr(1600)})
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := testConfig(path)
	cfg.ProfileErrorLimit = 3

	mc := new(MockClient)
	mc.On("FetchMatches", mock.Anything, mock.Anything).
		Return([]api.Match{{ID: 100, Players: players}}, nil).Once()
	mc.On("FetchProfile", mock.Anything, mock.Anything).
		Return(nil, &api.Error{Kind: api.KindNotFound})

	s := NewService(logger.Nop(), mc, cursor.NewFileStore(filepath.Join(dir, "cursor.txt")), cfg)
	sum, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.True(t, sum.ProfilePhaseAborted)
	mc.AssertNumberOfCalls(t, "FetchProfile", 3)
	assert.Equal(t, 3, sum.ProfileErrors)
}

func TestFatalOnMissingRequiredColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "players.csv")
	require.NoError(t, os.WriteFile(path, []byte("uuid,nickname\nabc,Steve\n"), 0644))

	s := NewService(logger.Nop(), new(MockClient), cursor.NewFileStore(filepath.Join(dir, "cursor.txt")), testConfig(path))
	_, err := s.RunCycle(context.Background())
	assert.ErrorIs(t, err, store.ErrMissingColumns)
}

func TestRunOnceWhenNoInterval(t *testing.T) {
	dir := t.TempDir()
	path := seedTable(t, dir)

	mc := new(MockClient)
	mc.On("FetchMatches", mock.Anything, mock.Anything).Return([]api.Match{}, nil).Once()

	s := NewService(logger.Nop(), mc, cursor.NewFileStore(filepath.Join(dir, "cursor.txt")), testConfig(path))
	require.NoError(t, s.Run(context.Background()))
	mc.AssertNumberOfCalls(t, "FetchMatches", 1)
}

func intPtr(v int) *int { return &v }
