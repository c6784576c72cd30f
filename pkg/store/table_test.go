package store

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "players.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.csv")

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, BaselineHeaders, table.Headers())

	// The file now exists with a header line
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "uuid,nickname,eloRate,twitch_name,status,last_scraped_at\n", string(data))
}

func TestLoadMissingRequiredColumnsIsFatal(t *testing.T) {
	path := writeFile(t, t.TempDir(), "uuid,nickname\nabc,Steve\n")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "eloRate")
}

func TestLoadEmptyFileIsFatal(t *testing.T) {
	path := writeFile(t, t.TempDir(), "")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestForwardSchemaUpgrade(t *testing.T) {
	// File predates the twitch_name / status / last_scraped_at columns
	path := writeFile(t, t.TempDir(), "uuid,nickname,eloRate\nabc,Steve,1500\ndef,Alex,\n")

	table, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"uuid", "nickname", "eloRate", "status", "last_scraped_at", "twitch_name"}, table.Headers())

	rec, ok := table.Get("abc")
	require.True(t, ok)
	assert.Equal(t, "Steve", rec.Nickname())
	assert.Equal(t, "1500", rec.EloRate())
	assert.Equal(t, "", rec.TwitchName())
	assert.Equal(t, "", rec.Status())
	assert.Equal(t, "", rec.LastScrapedAt())

	rec, ok = table.Get("def")
	require.True(t, ok)
	assert.Equal(t, "", rec.EloRate())
}

func TestLoadRetainsRowsMissingUUID(t *testing.T) {
	path := writeFile(t, t.TempDir(),
		"uuid,nickname,eloRate,twitch_name,status,last_scraped_at\n"+
			"abc,Steve,1500,,,\n"+
			",Ghost,1200,,,\n")

	table, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 1, table.ValidCount())
	assert.Equal(t, 1, table.MissingUUIDCount())

	// The uuid-less row keeps its place and gets flagged
	ghost := table.Records()[1]
	assert.Equal(t, StatusSkippedMissingUUID, ghost.Status())

	// Row count must not shrink on save
	require.NoError(t, table.Save(path))
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
}

func TestLoadStripsBOM(t *testing.T) {
	path := writeFile(t, t.TempDir(), "\ufeffuuid,nickname,eloRate\nabc,Steve,1500\n")

	table, err := Load(path)
	require.NoError(t, err)
	_, ok := table.Get("abc")
	assert.True(t, ok)
}

func TestAppendPreservesOrder(t *testing.T) {
	table := NewTable()
	table.Append("first").SetNickname("One")
	table.Append("second").SetNickname("Two")

	recs := table.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "first", recs[0].UUID())
	assert.Equal(t, "second", recs[1].UUID())
}

func TestSaveDropsFieldsOutsideHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.csv")

	table := NewTable()
	rec := table.Append("abc")
	rec.Set("internal_note", "never persisted")
	require.NoError(t, table.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	got, ok := reloaded.Get("abc")
	require.True(t, ok)
	assert.Equal(t, "", got.Get("internal_note"))
}

func TestRoundTripProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	tmpDir := t.TempDir()

	properties.Property("saving then loading reproduces rows and header order", prop.ForAll(
		func(nicks []string, elos []int) bool {
			path := filepath.Join(tmpDir, "roundtrip.csv")
			os.Remove(path)

			table := NewTable()
			n := len(nicks)
			if len(elos) < n {
				n = len(elos)
			}
			ids := make([]string, n)
			for i := 0; i < n; i++ {
				ids[i] = uuid.NewString()
				rec := table.Append(ids[i])
				rec.SetNickname(nicks[i])
				rec.SetEloRate(strconv.Itoa(elos[i]))
			}

			if err := table.Save(path); err != nil {
				return false
			}
			reloaded, err := Load(path)
			if err != nil {
				return false
			}

			if reloaded.Len() != n {
				return false
			}
			for i, col := range table.Headers() {
				if reloaded.Headers()[i] != col {
					return false
				}
			}
			for i := 0; i < n; i++ {
				rec, ok := reloaded.Get(ids[i])
				if !ok {
					return false
				}
				if rec.Nickname() != nicks[i] || rec.EloRate() != strconv.Itoa(elos[i]) {
					return false
				}
				if reloaded.Records()[i] != rec {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.IntRange(0, 3000)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
