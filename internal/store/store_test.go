package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mozbugbox/bitiwo/internal/models"
	"github.com/mozbugbox/bitiwo/internal/shared"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"), Options{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testVideo(bvid string, mid, created int64) models.Video {
	return models.Video{
		AID:        created,
		BVID:       bvid,
		MID:        mid,
		Created:    created,
		Title:      "title " + bvid,
		Length:     "12:34",
		PictureURL: "http://example.com/" + bvid + ".jpg",
		ViewCount:  100,
		Comment:    5,
	}
}

func TestStore_Members(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddMember(42, "alice"); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	t.Run("duplicate id rejected", func(t *testing.T) {
		err := s.AddMember(42, "other")
		if !errors.Is(err, shared.ErrDuplicateMember) {
			t.Errorf("expected ErrDuplicateMember, got %v", err)
		}
	})

	t.Run("lookup", func(t *testing.T) {
		m, err := s.MemberInfo(42)
		if err != nil {
			t.Fatalf("failed to get member: %v", err)
		}
		if m.Name != "alice" {
			t.Errorf("expected name alice, got %q", m.Name)
		}

		if _, err := s.MemberInfo(999); !errors.Is(err, shared.ErrMemberNotFound) {
			t.Errorf("expected ErrMemberNotFound, got %v", err)
		}
	})

	t.Run("delete cascades videos", func(t *testing.T) {
		if err := s.AddVideos([]models.Video{testVideo("BVa", 42, 100)}); err != nil {
			t.Fatalf("failed to add videos: %v", err)
		}
		if err := s.DeleteMember(42); err != nil {
			t.Fatalf("failed to delete member: %v", err)
		}

		if _, err := s.MemberInfo(42); !errors.Is(err, shared.ErrMemberNotFound) {
			t.Errorf("member should be gone, got %v", err)
		}
		count, err := s.VideoCount(42)
		if err != nil {
			t.Fatalf("failed to count videos: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 videos after cascade, got %d", count)
		}
	})
}

func TestStore_VideoUpsert(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddMember(1, "alice"); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	v := testVideo("BV1", 1, 100)
	v.Title = "first"
	if err := s.AddVideos([]models.Video{v}); err != nil {
		t.Fatalf("failed to add video: %v", err)
	}

	v.Title = "second"
	v.ViewCount = 999
	if err := s.AddVideos([]models.Video{v}); err != nil {
		t.Fatalf("failed to re-add video: %v", err)
	}

	count, err := s.VideoCount(1)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row after upsert, got %d", count)
	}

	got, err := s.VideoInfo("BV1")
	if err != nil {
		t.Fatalf("failed to get video: %v", err)
	}
	if got.Title != "second" || got.ViewCount != 999 {
		t.Errorf("row should reflect second insert, got title=%q views=%d", got.Title, got.ViewCount)
	}

	t.Run("empty batch is a no-op", func(t *testing.T) {
		if err := s.AddVideos(nil); err != nil {
			t.Errorf("empty batch should not fail: %v", err)
		}
	})
}

func TestStore_VideoQueries(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddMember(1, "alice"); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}
	batch := []models.Video{
		testVideo("BV1", 1, 100),
		testVideo("BV2", 1, 90),
		testVideo("BV3", 1, 80),
	}
	if err := s.AddVideos(batch); err != nil {
		t.Fatalf("failed to add videos: %v", err)
	}

	t.Run("ordered descending", func(t *testing.T) {
		videos, err := s.MemberVideos(1, -1, -1)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(videos) != 3 {
			t.Fatalf("expected 3 videos, got %d", len(videos))
		}
		for i := 1; i < len(videos); i++ {
			if videos[i].Created > videos[i-1].Created {
				t.Errorf("videos not in descending order at %d", i)
			}
		}
		if videos[0].MemberName != "alice" {
			t.Errorf("expected joined member name, got %q", videos[0].MemberName)
		}
	})

	t.Run("paginate backward", func(t *testing.T) {
		videos, err := s.MemberVideos(1, 1, 100)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(videos) != 1 || videos[0].BVID != "BV2" {
			t.Errorf("expected [BV2], got %v", videos)
		}
	})

	t.Run("watermark strictly newer", func(t *testing.T) {
		videos, err := s.NewerVideos(1, 90)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(videos) != 1 || videos[0].Created != 100 {
			t.Errorf("expected only created=100, got %v", videos)
		}
	})

	t.Run("last update watermark", func(t *testing.T) {
		last, err := s.LastUpdate(1)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if last != 100 {
			t.Errorf("expected watermark 100, got %d", last)
		}

		last, err = s.LastUpdate(999)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if last != 0 {
			t.Errorf("expected 0 for unknown member, got %d", last)
		}
	})

	t.Run("visited flags and status", func(t *testing.T) {
		if err := s.SetVideoVisited("BV1", true); err != nil {
			t.Fatalf("failed to mark visited: %v", err)
		}

		st, err := s.MemberStatus(1)
		if err != nil {
			t.Fatalf("failed to get status: %v", err)
		}
		if st.NewCount != 2 {
			t.Errorf("expected 2 unvisited, got %d", st.NewCount)
		}
		if st.LastCreated != 100 {
			t.Errorf("expected last created 100, got %d", st.LastCreated)
		}

		if err := s.SetMemberVideosVisited(1, true); err != nil {
			t.Fatalf("failed to catch up: %v", err)
		}
		count, err := s.UnvisitedCount(1)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 unvisited after catch up, got %d", count)
		}
	})

	t.Run("bvid set", func(t *testing.T) {
		set, err := s.BVIDSet(1)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(set) != 3 || !set["BV2"] {
			t.Errorf("unexpected bvid set: %v", set)
		}
	})
}

func TestStore_Search(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddMember(1, "alice"); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	v1 := testVideo("BV1", 1, 100)
	v1.Title = "foobar baz"
	v2 := testVideo("BV2", 1, 90)
	v2.Title = "unrelated"
	v2.Description = "hidden keyword"
	if err := s.AddVideos([]models.Video{v1, v2}); err != nil {
		t.Fatalf("failed to add videos: %v", err)
	}

	tests := []struct {
		name    string
		pattern string
		want    int
	}{
		{"all tokens contained", "foo bar", 1},
		{"case insensitive", "FOO Baz", 1},
		{"one token missing", "foo qux", 0},
		{"single token", "unrelated", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			videos, err := s.MatchedVideos(tt.pattern, 0)
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(videos) != tt.want {
				t.Errorf("expected %d matches, got %d", tt.want, len(videos))
			}
		})
	}

	t.Run("default matcher tolerates dropped characters", func(t *testing.T) {
		videos, err := s.MatchedVideos("fbr", 0)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(videos) != 1 || videos[0].BVID != "BV1" {
			t.Errorf("subsequence pattern should match via the fuzzy default, got %v", videos)
		}
	})

	t.Run("member scope includes description", func(t *testing.T) {
		videos, err := s.MatchedMemberVideos(1, "hidden")
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(videos) != 1 || videos[0].BVID != "BV2" {
			t.Errorf("expected description match on BV2, got %v", videos)
		}

		// Global search matches titles only
		global, err := s.MatchedVideos("hidden", 0)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(global) != 0 {
			t.Errorf("global search should not match descriptions, got %v", global)
		}
	})
}

func TestStore_Config(t *testing.T) {
	s := openTestStore(t)

	t.Run("absent key is not an error", func(t *testing.T) {
		_, ok, err := s.GetConfig("missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("missing key should report absent")
		}
	})

	t.Run("equal write is skipped", func(t *testing.T) {
		wrote, err := s.SetConfig("player_bin", "mpv")
		if err != nil {
			t.Fatalf("failed to set config: %v", err)
		}
		if !wrote {
			t.Error("first write should persist")
		}

		wrote, err = s.SetConfig("player_bin", "mpv")
		if err != nil {
			t.Fatalf("failed to set config: %v", err)
		}
		if wrote {
			t.Error("equal write should be skipped")
		}

		wrote, err = s.SetConfig("player_bin", "vlc")
		if err != nil {
			t.Fatalf("failed to set config: %v", err)
		}
		if !wrote {
			t.Error("changed value should persist")
		}
	})

	t.Run("member order round trip", func(t *testing.T) {
		if err := s.SetMemberOrder([]int64{3, 1, 2}); err != nil {
			t.Fatalf("failed to set order: %v", err)
		}
		order, err := s.GetMemberOrder()
		if err != nil {
			t.Fatalf("failed to get order: %v", err)
		}
		if len(order) != 3 || order[0] != 3 || order[2] != 2 {
			t.Errorf("unexpected order: %v", order)
		}
	})
}

func TestStore_RemovedMembers(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddRemovedMember(7); err != nil {
		t.Fatalf("failed to record removal: %v", err)
	}
	removed, err := s.RemovedMembers()
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(removed) != 1 || removed[0].MID != 7 {
		t.Fatalf("unexpected removal list: %v", removed)
	}
	if removed[0].Timestamp <= 0 {
		t.Error("expected a positive removal timestamp")
	}

	if err := s.DeleteRemovedMember(7); err != nil {
		t.Fatalf("failed to delete record: %v", err)
	}
	removed, err = s.RemovedMembers()
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("expected empty list, got %v", removed)
	}
}

func TestStore_Migration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.sqlite3")

	// Build a database with an older videos schema missing the view_count,
	// comment and visited columns, populated with one row.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open raw db: %v", err)
	}
	stmts := []string{
		"CREATE TABLE config(key TEXT UNIQUE, value TEXT)",
		"CREATE TABLE members(mid INTEGER UNIQUE, name TEXT, last_update REAL)",
		`CREATE TABLE videos(aid INTEGER, bvid TEXT UNIQUE ON CONFLICT REPLACE,
			mid INTEGER, created INTEGER, title TEXT, description TEXT,
			length TEXT, picture_url TEXT)`,
		"CREATE TABLE removed_member(mid INTEGER UNIQUE, time_stamp REAL)",
		"INSERT INTO members VALUES (1, 'alice', 0)",
		"INSERT INTO videos VALUES (10, 'BVold', 1, 100, 'old title', '', '1:00', 'http://x/p.jpg')",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to seed old schema: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close raw db: %v", err)
	}

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("failed to open store over old schema: %v", err)
	}
	defer s.Close()

	got, err := s.VideoInfo("BVold")
	if err != nil {
		t.Fatalf("row lost in migration: %v", err)
	}
	if got.Title != "old title" || got.Created != 100 {
		t.Errorf("row data changed in migration: %+v", got)
	}
	if got.Visited {
		t.Error("added visited column should default to unset")
	}

	version, ok, err := s.GetConfig("db_version")
	if err != nil || !ok {
		t.Fatalf("db_version missing after migration: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("expected db_version %q, got %q", schemaVersion, version)
	}

	// Second open must be a clean no-op.
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	s2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("re-open after migration failed: %v", err)
	}
	s2.Close()
}
