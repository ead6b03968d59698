// package store implements durable storage for members, videos, free-form
// config and the removed-member list on a single SQLite file.
//
// The Store is safe for concurrent reads; all writes are serialized by an
// internal mutex since SQLite does not tolerate concurrent writers.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-sqlite3"
	"github.com/mozbugbox/bitiwo/internal/models"
	"github.com/mozbugbox/bitiwo/internal/shared"
)

// jsonConfigKeys lists config keys whose values are JSON-encoded.
var jsonConfigKeys = map[string]bool{
	"member_order": true,
}

// defaultSearchLimit caps global title searches to bound their cost.
const defaultSearchLimit = 300

// Options configures a Store.
type Options struct {
	Logger       *log.Logger
	Contains     ContainsFunc // containment for MATCH queries, defaults to FuzzyContains
	MaxOpenConns int
	MaxIdleConns int
}

// Store owns all durable application state.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex // serializes writes
	log      *log.Logger
	contains ContainsFunc
}

var driverMu sync.Mutex

// registerMatchDriver registers a sqlite3 driver variant whose connections
// carry a MATCH function implementing the token containment predicate.
// Driver names must be process-unique, so each Open gets its own.
func registerMatchDriver(contains ContainsFunc) string {
	driverMu.Lock()
	defer driverMu.Unlock()

	name := "sqlite3_match_" + shared.GenerateID()
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// `value MATCH pattern` invokes match(pattern, value)
			return conn.RegisterFunc("match", func(pattern, value string) bool {
				return matchTokens(contains, pattern, value)
			}, true)
		},
	})
	return name
}

// Open opens (or creates) the store at path, creates missing tables and runs
// the additive schema migration. Returns [shared.ErrStorageOpen] on
// unreadable or corrupt files.
func Open(path string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Contains == nil {
		opts.Contains = FuzzyContains
	}

	driver := registerMatchDriver(opts.Contains)
	db, err := shared.NewDatabaseWithDriver(driver, path)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		shared.ConfigureDatabase(db, opts.MaxOpenConns, opts.MaxIdleConns)
	}

	s := &Store{
		db:       db,
		log:      opts.Logger.With("component", "store"),
		contains: opts.Contains,
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", shared.ErrStorageOpen, err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", shared.ErrStorageOpen, err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddMember inserts a new member. Fails with [shared.ErrDuplicateMember] if
// the id is already present.
func (s *Store) AddMember(mid int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM members WHERE mid = ?)", mid).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check member: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %d", shared.ErrDuplicateMember, mid)
	}

	_, err = s.db.Exec("INSERT INTO members VALUES (?, ?, 0)", mid, name)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// DeleteMember removes a member and cascades deletion of its videos. Cache
// files on disk are untouched; eviction is the reaper's job.
func (s *Store) DeleteMember(mid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM videos WHERE mid = ?", mid); err != nil {
		return fmt.Errorf("failed to delete member videos: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM members WHERE mid = ?", mid); err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}

	return tx.Commit()
}

// MemberList returns all members.
func (s *Store) MemberList() ([]models.Member, error) {
	rows, err := s.db.Query("SELECT mid, name, last_update FROM members")
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.MID, &m.Name, &m.LastUpdate); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MemberInfo returns a single member or [shared.ErrMemberNotFound].
func (s *Store) MemberInfo(mid int64) (*models.Member, error) {
	var m models.Member
	err := s.db.QueryRow("SELECT mid, name, last_update FROM members WHERE mid = ?", mid).
		Scan(&m.MID, &m.Name, &m.LastUpdate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", shared.ErrMemberNotFound, mid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query member: %w", err)
	}
	return &m, nil
}

// AddVideos inserts a batch of videos atomically. The bvid column carries
// UNIQUE ON CONFLICT REPLACE, so re-inserting a known video overwrites the
// row. A nil or empty batch is a no-op.
func (s *Store) AddVideos(videos []models.Video) error {
	if len(videos) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO videos VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range videos {
		_, err := stmt.Exec(v.AID, v.BVID, v.MID, v.Created, v.Title, v.Description,
			v.Length, v.PictureURL, v.ViewCount, v.Comment, boolToInt(v.Visited))
		if err != nil {
			return fmt.Errorf("failed to insert video %s: %w", v.BVID, err)
		}
	}

	return tx.Commit()
}

const videoSelect = `SELECT videos.aid, videos.bvid, videos.mid, videos.created,
	videos.title, videos.description, videos.length, videos.picture_url,
	videos.view_count, videos.comment, videos.visited, members.name
	FROM videos INNER JOIN members USING(mid)`

func scanVideos(rows *sql.Rows) ([]models.Video, error) {
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var v models.Video
		var visited int64
		err := rows.Scan(&v.AID, &v.BVID, &v.MID, &v.Created, &v.Title, &v.Description,
			&v.Length, &v.PictureURL, &v.ViewCount, &v.Comment, &visited, &v.MemberName)
		if err != nil {
			return nil, err
		}
		v.Visited = visited != 0
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// MemberVideos returns a member's videos ordered by created descending.
// limit < 0 means unbounded; before < 0 disables the created < before filter.
// The two parameters support both the initial page and backward pagination.
func (s *Store) MemberVideos(mid int64, limit, before int64) ([]models.Video, error) {
	var rows *sql.Rows
	var err error

	switch {
	case limit < 0 && before < 0:
		rows, err = s.db.Query(videoSelect+
			" WHERE videos.mid = ? ORDER BY created DESC", mid)
	case limit < 0:
		rows, err = s.db.Query(videoSelect+
			" WHERE videos.mid = ? AND created < ? ORDER BY created DESC", mid, before)
	case before < 0:
		rows, err = s.db.Query(videoSelect+
			" WHERE videos.mid = ? ORDER BY created DESC LIMIT ?", mid, limit)
	default:
		rows, err = s.db.Query(videoSelect+
			" WHERE videos.mid = ? AND created < ? ORDER BY created DESC LIMIT ?", mid, before, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	return scanVideos(rows)
}

// NewerVideos returns a member's videos with created strictly greater than
// the watermark, ordered descending. Used to report exactly the videos added
// by an incremental sync.
func (s *Store) NewerVideos(mid, watermark int64) ([]models.Video, error) {
	rows, err := s.db.Query(videoSelect+
		" WHERE videos.mid = ? AND created > ? ORDER BY created DESC", mid, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to query newer videos: %w", err)
	}
	return scanVideos(rows)
}

// VideoInfo returns a single video by bvid or [shared.ErrVideoNotFound].
func (s *Store) VideoInfo(bvid string) (*models.Video, error) {
	rows, err := s.db.Query(videoSelect+" WHERE bvid = ?", bvid)
	if err != nil {
		return nil, fmt.Errorf("failed to query video: %w", err)
	}
	videos, err := scanVideos(rows)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrVideoNotFound, bvid)
	}
	return &videos[0], nil
}

// LastUpdate returns the newest created timestamp known for a member, the
// member's sync watermark. Zero when the member has no videos.
func (s *Store) LastUpdate(mid int64) (int64, error) {
	var last sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(created) FROM videos WHERE mid = ?", mid).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to query last update: %w", err)
	}
	return last.Int64, nil
}

// MatchedVideos searches all video titles with the MATCH predicate. A
// non-positive limit falls back to the default cap.
func (s *Store) MatchedVideos(pattern string, limit int) ([]models.Video, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := s.db.Query(videoSelect+
		" WHERE title MATCH ? ORDER BY created DESC LIMIT ?", pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}
	return scanVideos(rows)
}

// MatchedMemberVideos searches one member's videos, matching title or
// description.
func (s *Store) MatchedMemberVideos(mid int64, pattern string) ([]models.Video, error) {
	rows, err := s.db.Query(videoSelect+
		" WHERE videos.mid = ? AND ((title MATCH ?) OR (description MATCH ?))"+
		" ORDER BY created DESC", mid, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search member videos: %w", err)
	}
	return scanVideos(rows)
}

const statusSelect = `SELECT members.mid, members.name, members.last_update,
	COALESCE(u.cnt, 0) AS new_count, COALESCE(l.last, 0) AS last_created
	FROM members
	LEFT JOIN
		(SELECT mid, COUNT(*) AS cnt FROM videos WHERE visited = 0 GROUP BY mid) AS u
		ON members.mid = u.mid
	LEFT JOIN
		(SELECT mid, MAX(created) AS last FROM videos GROUP BY mid) AS l
		ON members.mid = l.mid`

func scanStatuses(rows *sql.Rows) ([]models.MemberStatus, error) {
	defer rows.Close()

	var statuses []models.MemberStatus
	for rows.Next() {
		var st models.MemberStatus
		err := rows.Scan(&st.MID, &st.Name, &st.LastUpdate, &st.NewCount, &st.LastCreated)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// MemberStatusAll returns every member with its unvisited count and newest
// created timestamp.
func (s *Store) MemberStatusAll() ([]models.MemberStatus, error) {
	rows, err := s.db.Query(statusSelect)
	if err != nil {
		return nil, fmt.Errorf("failed to query member status: %w", err)
	}
	return scanStatuses(rows)
}

// MemberStatus returns one member's status or [shared.ErrMemberNotFound].
func (s *Store) MemberStatus(mid int64) (*models.MemberStatus, error) {
	rows, err := s.db.Query(statusSelect+" WHERE members.mid = ?", mid)
	if err != nil {
		return nil, fmt.Errorf("failed to query member status: %w", err)
	}
	statuses, err := scanStatuses(rows)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("%w: %d", shared.ErrMemberNotFound, mid)
	}
	return &statuses[0], nil
}

// VideoCount returns the number of stored videos for a member.
func (s *Store) VideoCount(mid int64) (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM videos WHERE mid = ?", mid).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return count, nil
}

// UnvisitedCount returns the number of unvisited videos for a member.
func (s *Store) UnvisitedCount(mid int64) (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM videos WHERE mid = ? AND visited = 0", mid).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unvisited videos: %w", err)
	}
	return count, nil
}

// BVIDSet returns the set of known bvids for a member.
func (s *Store) BVIDSet(mid int64) (map[string]bool, error) {
	rows, err := s.db.Query("SELECT bvid FROM videos WHERE mid = ?", mid)
	if err != nil {
		return nil, fmt.Errorf("failed to query bvids: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var bvid string
		if err := rows.Scan(&bvid); err != nil {
			return nil, err
		}
		set[bvid] = true
	}
	return set, rows.Err()
}

// SetVideoVisited marks a single video visited or unvisited.
func (s *Store) SetVideoVisited(bvid string, visited bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE videos SET visited = ? WHERE bvid = ?", boolToInt(visited), bvid)
	if err != nil {
		return fmt.Errorf("failed to update visited: %w", err)
	}
	return nil
}

// SetMemberVideosVisited marks every video of a member visited or unvisited.
func (s *Store) SetMemberVideosVisited(mid int64, visited bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE videos SET visited = ? WHERE mid = ?", boolToInt(visited), mid)
	if err != nil {
		return fmt.Errorf("failed to update member visited: %w", err)
	}
	return nil
}

// GetConfig looks up a config value. The second return reports presence;
// unknown keys are not an error.
func (s *Store) GetConfig(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query config: %w", err)
	}
	return value, true, nil
}

// SetConfig stores a config value, skipping the write when the stored value
// is already equal. Reports whether a write occurred.
func (s *Store) SetConfig(key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok, err := s.GetConfig(key)
	if err != nil {
		return false, err
	}
	if ok && current == value {
		return false, nil
	}

	_, err = s.db.Exec(`INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to set config: %w", err)
	}
	return true, nil
}

// GetMemberOrder returns the persisted member display order.
func (s *Store) GetMemberOrder() ([]int64, error) {
	value, ok, err := s.GetConfig("member_order")
	if err != nil || !ok {
		return nil, err
	}

	var order []int64
	if err := json.Unmarshal([]byte(value), &order); err != nil {
		return nil, fmt.Errorf("%w: member_order: %v", shared.ErrParse, err)
	}
	return order, nil
}

// SetMemberOrder persists the member display order as JSON.
func (s *Store) SetMemberOrder(order []int64) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode member order: %w", err)
	}
	_, err = s.SetConfig("member_order", string(data))
	return err
}

// AddRemovedMember records a member removal pending cache eviction.
func (s *Store) AddRemovedMember(mid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := float64(time.Now().UnixNano()) / 1e9
	_, err := s.db.Exec(`INSERT INTO removed_member (mid, time_stamp) VALUES (?, ?)
		ON CONFLICT(mid) DO UPDATE SET time_stamp = excluded.time_stamp`, mid, ts)
	if err != nil {
		return fmt.Errorf("failed to record removed member: %w", err)
	}
	return nil
}

// RemovedMembers returns all removal records.
func (s *Store) RemovedMembers() ([]models.RemovedMember, error) {
	rows, err := s.db.Query("SELECT mid, time_stamp FROM removed_member")
	if err != nil {
		return nil, fmt.Errorf("failed to query removed members: %w", err)
	}
	defer rows.Close()

	var removed []models.RemovedMember
	for rows.Next() {
		var r models.RemovedMember
		if err := rows.Scan(&r.MID, &r.Timestamp); err != nil {
			return nil, err
		}
		removed = append(removed, r)
	}
	return removed, rows.Err()
}

// DeleteRemovedMember clears a removal record after its cache is gone.
func (s *Store) DeleteRemovedMember(mid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM removed_member WHERE mid = ?", mid)
	if err != nil {
		return fmt.Errorf("failed to delete removed member: %w", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
