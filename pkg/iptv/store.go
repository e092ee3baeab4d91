package iptv

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the local sqlite cache of channel and programme metadata. It is
// rebuilt wholesale on every refresh; readers only ever see a complete
// snapshot because each replace runs in one transaction.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed initializes) the cache database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	if err := initStore(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}
	return &Store{db: db}, nil
}

// initStore creates the necessary tables
func initStore(db *sql.DB) error {
	createChannelsTable := `
	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tvg_id TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		logo TEXT NOT NULL DEFAULT '',
		group_title TEXT NOT NULL DEFAULT '',
		radio INTEGER NOT NULL DEFAULT 0,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	createProgrammesTable := `
	CREATE TABLE IF NOT EXISTS programmes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_at DATETIME NOT NULL,
		stop_at DATETIME NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	createIndexes := `
	CREATE INDEX IF NOT EXISTS idx_channels_tvg_id ON channels(tvg_id);
	CREATE INDEX IF NOT EXISTS idx_channels_name ON channels(name);
	CREATE INDEX IF NOT EXISTS idx_programmes_channel ON programmes(channel_id);
	CREATE INDEX IF NOT EXISTS idx_programmes_window ON programmes(start_at, stop_at);
	`

	queries := []string{
		createChannelsTable,
		createProgrammesTable,
		createIndexes,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %v", err)
		}
	}
	return nil
}

// ReplaceChannels swaps the channel list for a freshly parsed one.
func (s *Store) ReplaceChannels(channels []Channel) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM channels"); err != nil {
		return fmt.Errorf("failed to clear channels: %v", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO channels (tvg_id, name, url, logo, group_title, radio, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, ch := range channels {
		radio := 0
		if ch.Radio {
			radio = 1
		}
		if _, err := stmt.Exec(ch.ID, ch.Name, ch.URL, ch.Logo, ch.Group, radio, now); err != nil {
			return fmt.Errorf("failed to insert channel %s: %v", ch.Name, err)
		}
	}
	return tx.Commit()
}

// ReplaceProgrammes swaps the guide for a freshly parsed one. Programmes
// that already ended are not worth caching and are dropped here.
func (s *Store) ReplaceProgrammes(programmes []Programme) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM programmes"); err != nil {
		return fmt.Errorf("failed to clear programmes: %v", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO programmes (channel_id, title, description, start_at, stop_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range programmes {
		if p.Stop.Before(now) {
			continue
		}
		if _, err := stmt.Exec(p.ChannelID, p.Title, p.Description, p.Start.UTC(), p.Stop.UTC(), now); err != nil {
			return fmt.Errorf("failed to insert programme %s: %v", p.Title, err)
		}
	}
	return tx.Commit()
}

// Channels returns every cached channel ordered by group then name.
func (s *Store) Channels() ([]Channel, error) {
	rows, err := s.db.Query(`
		SELECT tvg_id, name, url, logo, group_title, radio
		FROM channels ORDER BY group_title, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %v", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// ChannelsByGroup returns the cached channels in one group.
func (s *Store) ChannelsByGroup(group string) ([]Channel, error) {
	rows, err := s.db.Query(`
		SELECT tvg_id, name, url, logo, group_title, radio
		FROM channels WHERE group_title = ? COLLATE NOCASE ORDER BY name`, group)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %v", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// FindChannel resolves a user-typed identifier to a channel: exact tvg-id
// first, then case-insensitive name, then a unique name prefix. Returns
// ErrChannelNotFound when nothing matches.
func (s *Store) FindChannel(query string) (*Channel, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrChannelNotFound
	}

	row := s.db.QueryRow(`
		SELECT tvg_id, name, url, logo, group_title, radio
		FROM channels WHERE tvg_id = ? OR name = ? COLLATE NOCASE
		LIMIT 1`, query, query)
	ch, err := scanChannel(row)
	if err == nil {
		return ch, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query channel: %v", err)
	}

	row = s.db.QueryRow(`
		SELECT tvg_id, name, url, logo, group_title, radio
		FROM channels WHERE name LIKE ? ESCAPE '\' COLLATE NOCASE
		ORDER BY name LIMIT 1`, escapeLike(query)+"%")
	ch, err = scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel: %v", err)
	}
	return ch, nil
}

// escapeLike neutralizes LIKE wildcards in user input so a query such as
// "%" cannot prefix-match every channel.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// NowNext returns the current and following programme for a channel.
// Either may be nil when the guide has no entry.
func (s *Store) NowNext(channelID string, now time.Time) (*Programme, *Programme, error) {
	current, err := s.queryProgramme(`
		SELECT channel_id, title, description, start_at, stop_at
		FROM programmes WHERE channel_id = ? AND start_at <= ? AND stop_at > ?
		ORDER BY start_at LIMIT 1`, channelID, now.UTC(), now.UTC())
	if err != nil {
		return nil, nil, err
	}
	next, err := s.queryProgramme(`
		SELECT channel_id, title, description, start_at, stop_at
		FROM programmes WHERE channel_id = ? AND start_at > ?
		ORDER BY start_at LIMIT 1`, channelID, now.UTC())
	if err != nil {
		return nil, nil, err
	}
	return current, next, nil
}

// ChannelCount returns the number of cached channels.
func (s *Store) ChannelCount() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM channels").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count channels: %v", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryProgramme(query string, args ...interface{}) (*Programme, error) {
	row := s.db.QueryRow(query, args...)
	var p Programme
	err := row.Scan(&p.ChannelID, &p.Title, &p.Description, &p.Start, &p.Stop)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan programme: %v", err)
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChannel(row rowScanner) (*Channel, error) {
	var ch Channel
	var radio int
	if err := row.Scan(&ch.ID, &ch.Name, &ch.URL, &ch.Logo, &ch.Group, &radio); err != nil {
		return nil, err
	}
	ch.Radio = radio != 0
	return &ch, nil
}

func scanChannels(rows *sql.Rows) ([]Channel, error) {
	var channels []Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %v", err)
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}
