package merge

import (
	"strconv"
	"strings"
	"time"

	"github.com/Evanition/gettingtwitch-ids/pkg/api"
	"github.com/Evanition/gettingtwitch-ids/pkg/store"
)

// Touch tags what happened to a record during the current cycle. The tag is
// rendered to the persisted status string only when the cycle finalizes.
type Touch uint8

const (
	TouchNone Touch = iota
	TouchNew
	TouchMatchUpdated
	TouchMatchScraped
	TouchSkippedRecent
)

// Summary tallies one cycle's merge outcomes
type Summary struct {
	MatchesProcessed int
	PlayersSeen      int
	Created          int
	Updated          int
	Scraped          int
	SkippedRecent    int
	TwitchUpdated    int
	ProfileErrors    int
}

// Cycle folds fetched match and profile data into the player table for the
// duration of one sync cycle.
type Cycle struct {
	refreshInterval time.Duration
	now             func() time.Time

	touches       map[string]Touch
	twitchChanged map[string]bool
	profileErr    map[string]string
	queue         []string
	queued        map[string]struct{}

	Summary Summary
}

// NewCycle creates the merge state for one cycle. A nil now falls back to
// time.Now.
func NewCycle(refreshInterval time.Duration, now func() time.Time) *Cycle {
	if now == nil {
		now = time.Now
	}
	return &Cycle{
		refreshInterval: refreshInterval,
		now:             now,
		touches:         make(map[string]Touch),
		twitchChanged:   make(map[string]bool),
		profileErr:      make(map[string]string),
		queued:          make(map[string]struct{}),
	}
}

// MergeMatches folds match participants into the table. Unknown uuids become
// new records; known ones update elo/nickname when due for refresh. Touched
// records are queued for a profile fetch.
func (c *Cycle) MergeMatches(t *store.Table, matches []api.Match) {
	stamp := c.now().UTC().Format(time.RFC3339)

	for _, match := range matches {
		c.Summary.MatchesProcessed++
		for _, player := range match.Players {
			if player.UUID == "" {
				continue
			}
			c.Summary.PlayersSeen++

			rec, ok := t.Get(player.UUID)
			if !ok {
				rec = t.Append(player.UUID)
				rec.SetNickname(player.Nickname)
				rec.SetEloRate(eloString(player.EloRate))
				rec.SetLastScrapedAt(stamp)
				c.touches[player.UUID] = TouchNew
				c.Summary.Created++
				c.enqueue(player.UUID)
				continue
			}

			// A record already updated this cycle is never stale again
			// within the same cycle
			if tag := c.touches[player.UUID]; tag == TouchNew || tag == TouchMatchUpdated || tag == TouchMatchScraped {
				c.Summary.SkippedRecent++
				continue
			}

			if !ShouldRefresh(rec.LastScrapedAt(), c.refreshInterval, c.now()) {
				c.Summary.SkippedRecent++
				if c.touches[player.UUID] == TouchNone {
					c.touches[player.UUID] = TouchSkippedRecent
				}
				continue
			}

			changed := false
			if newElo := eloString(player.EloRate); rec.EloRate() != newElo {
				rec.SetEloRate(newElo)
				changed = true
			}
			if player.Nickname != "" && rec.Nickname() != player.Nickname {
				rec.SetNickname(player.Nickname)
				changed = true
			}

			if changed {
				c.touches[player.UUID] = TouchMatchUpdated
				c.Summary.Updated++
			} else {
				c.touches[player.UUID] = TouchMatchScraped
				c.Summary.Scraped++
			}
			rec.SetLastScrapedAt(stamp)

			// Profile fetch refreshes Twitch linkage regardless of
			// whether match fields changed
			c.enqueue(player.UUID)
		}
	}
}

// ProfileQueue returns the uuids marked for a profile fetch
func (c *Cycle) ProfileQueue() []string {
	return c.queue
}

// MergeProfile folds a fetched profile into its record. An absent Twitch
// connection maps to the empty string; empty-to-empty is a no-op, not a
// change. The timestamp supersedes the match-phase one.
func (c *Cycle) MergeProfile(t *store.Table, uuid string, p *api.Profile) {
	rec, ok := t.Get(uuid)
	if !ok {
		return
	}

	newTwitch := ""
	if p.Connections.Twitch != nil {
		newTwitch = p.Connections.Twitch.Name
	}
	if rec.TwitchName() != newTwitch {
		rec.SetTwitchName(newTwitch)
		c.twitchChanged[uuid] = true
		c.Summary.TwitchUpdated++
	}

	rec.SetLastScrapedAt(c.now().UTC().Format(time.RFC3339))
}

// MergeProfileError records a failed profile fetch. The annotation is
// rendered once per record, never stacked.
func (c *Cycle) MergeProfileError(uuid, tag string) {
	if _, ok := c.profileErr[uuid]; !ok {
		c.profileErr[uuid] = tag
	}
	c.Summary.ProfileErrors++
}

// Finalize renders the touch tags into the status column
func (c *Cycle) Finalize(t *store.Table) {
	for uuid, tag := range c.touches {
		rec, ok := t.Get(uuid)
		if !ok {
			continue
		}

		var status string
		switch tag {
		case TouchNew:
			status = "New (Match)"
		case TouchMatchUpdated:
			status = "OK Updated (Match)"
		case TouchMatchScraped:
			status = "OK Scraped (Match)"
		case TouchSkippedRecent:
			// Avoid overwriting a healthy status from an earlier cycle
			if strings.Contains(rec.Status(), "OK") {
				continue
			}
			status = "OK (Skipped - Recent)"
		default:
			continue
		}

		if c.twitchChanged[uuid] {
			status += " + Twitch"
		}
		if errTag, ok := c.profileErr[uuid]; ok {
			status += " / Err Twitch (" + errTag + ")"
		}

		rec.SetStatus(status)
	}
}

func (c *Cycle) enqueue(uuid string) {
	if _, ok := c.queued[uuid]; ok {
		return
	}
	c.queued[uuid] = struct{}{}
	c.queue = append(c.queue, uuid)
}

// ShouldRefresh reports whether a record is due for re-fetch. The boundary is
// inclusive: elapsed time equal to the interval is due. An unparsable or
// absent timestamp is always due.
func ShouldRefresh(lastScrapedAt string, interval time.Duration, now time.Time) bool {
	ts, ok := ParseTimestamp(lastScrapedAt)
	if !ok {
		return true
	}
	return now.Sub(ts) >= interval
}

// ParseTimestamp permissively parses an ISO-8601 timestamp. A Z suffix and
// numeric offsets are honored; a naive timestamp is taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}

func eloString(elo *int) string {
	if elo == nil {
		return ""
	}
	return strconv.Itoa(*elo)
}
