package store

// Column names of the player table. The on-disk header may carry extra
// columns; these are the ones the sync pipeline reads and writes.
const (
	ColUUID          = "uuid"
	ColNickname      = "nickname"
	ColEloRate       = "eloRate"
	ColTwitchName    = "twitch_name"
	ColStatus        = "status"
	ColLastScrapedAt = "last_scraped_at"
)

// StatusSkippedMissingUUID flags rows that are carried through load/save
// untouched because they cannot be keyed.
const StatusSkippedMissingUUID = "Skipped (Missing UUID)"

// RequiredColumns must be present in a pre-existing file; their absence is
// fatal because the file is assumed hand-authored.
var RequiredColumns = []string{ColUUID, ColEloRate, ColNickname}

// OptionalColumns are auto-appended to the header of older files.
var OptionalColumns = []string{ColStatus, ColLastScrapedAt, ColTwitchName}

// BaselineHeaders is the header written when creating a fresh file.
var BaselineHeaders = []string{ColUUID, ColNickname, ColEloRate, ColTwitchName, ColStatus, ColLastScrapedAt}

// Record is one row of the player table. Fields not present in the current
// header list are preserved in memory but dropped on save.
type Record struct {
	fields map[string]string
}

func newRecord() *Record {
	return &Record{fields: make(map[string]string)}
}

// Get returns the value of a column, or "" if the record lacks it
func (r *Record) Get(col string) string {
	return r.fields[col]
}

// Set assigns the value of a column
func (r *Record) Set(col, val string) {
	r.fields[col] = val
}

func (r *Record) UUID() string          { return r.fields[ColUUID] }
func (r *Record) Nickname() string      { return r.fields[ColNickname] }
func (r *Record) EloRate() string       { return r.fields[ColEloRate] }
func (r *Record) TwitchName() string    { return r.fields[ColTwitchName] }
func (r *Record) Status() string        { return r.fields[ColStatus] }
func (r *Record) LastScrapedAt() string { return r.fields[ColLastScrapedAt] }

func (r *Record) SetNickname(v string)      { r.fields[ColNickname] = v }
func (r *Record) SetEloRate(v string)       { r.fields[ColEloRate] = v }
func (r *Record) SetTwitchName(v string)    { r.fields[ColTwitchName] = v }
func (r *Record) SetStatus(v string)        { r.fields[ColStatus] = v }
func (r *Record) SetLastScrapedAt(v string) { r.fields[ColLastScrapedAt] = v }
