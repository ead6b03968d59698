package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mozbugbox/bitiwo/internal/cache"
	"github.com/mozbugbox/bitiwo/internal/models"
	"github.com/mozbugbox/bitiwo/internal/shared"
	"github.com/mozbugbox/bitiwo/internal/tasks"
)

func TestNewRunner(t *testing.T) {
	t.Run("with all dependencies provided", func(t *testing.T) {
		config := shared.DefaultConfig()
		logger := shared.NewLogger(io.Discard)
		output := &bytes.Buffer{}
		httpClient := &http.Client{}

		runner := NewRunner(RunnerOpts{
			Config:     config,
			Logger:     logger,
			Output:     output,
			HTTPClient: httpClient,
		})

		if runner.config != config {
			t.Error("expected config to be set")
		}
		if runner.logger != logger {
			t.Error("expected logger to be set")
		}
		if runner.output != output {
			t.Error("expected output to be set")
		}
		if runner.httpClient != httpClient {
			t.Error("expected httpClient to be set")
		}
	})

	t.Run("with nil options uses defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		if runner.config == nil {
			t.Error("expected default config to be set")
		}
		if runner.logger == nil {
			t.Error("expected default logger to be set")
		}
		if runner.output != os.Stdout {
			t.Error("expected output to default to os.Stdout")
		}
	})
}

func TestParseMID(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want error
	}{
		{"valid id", "12345", nil},
		{"missing", "", shared.ErrMissingArgument},
		{"not a number", "abc", shared.ErrInvalidArgument},
		{"negative", "-3", shared.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mid, err := parseMID(tt.arg)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if mid != 12345 {
					t.Errorf("expected 12345, got %d", mid)
				}
			} else if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// memberPageServer serves submission pages for a fixed set of members.
func memberPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x/space/arc/search" {
			http.NotFound(w, r)
			return
		}
		mid, _ := strconv.ParseInt(r.URL.Query().Get("mid"), 10, 64)
		pn, _ := strconv.Atoi(r.URL.Query().Get("pn"))
		if mid != 1 || pn != 1 {
			fmt.Fprint(w, `{"code":0,"message":"0","data":{"list":{"vlist":[]},"page":{"count":0,"pn":1,"ps":30}}}`)
			return
		}
		fmt.Fprint(w, `{"code":0,"message":"0","data":{"list":{"vlist":[
			{"aid":2,"bvid":"BVb","mid":1,"created":200,"title":"second video","length":"2:00","pic":"http://x/b.jpg","play":20,"comment":2,"author":"alice"},
			{"aid":1,"bvid":"BVa","mid":1,"created":100,"title":"first video","length":"1:00","pic":"http://x/a.jpg","play":10,"comment":1,"author":"alice"}
		]},"page":{"count":2,"pn":1,"ps":30}}}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestApp(t *testing.T) (*cli.Command, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	server := memberPageServer(t)

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "test.sqlite3")
	config.Cache.Dir = filepath.Join(dir, "cache")
	config.API.BaseURL = server.URL
	config.API.FetchInterval = 0.001

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(io.Discard),
		Output: output,
	})
	t.Cleanup(runner.Close)

	app := &cli.Command{
		Name:     "bitiwo",
		Commands: runner.register(),
	}
	return app, output
}

func run(t *testing.T, app *cli.Command, args ...string) error {
	t.Helper()
	return app.Run(context.Background(), append([]string{"bitiwo"}, args...))
}

func TestCommands(t *testing.T) {
	app, output := newTestApp(t)

	t.Run("member add", func(t *testing.T) {
		if err := run(t, app, "member", "add", "1"); err != nil {
			t.Fatalf("member add failed: %v", err)
		}
		if !strings.Contains(output.String(), "alice") || !strings.Contains(output.String(), "2 videos") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("member add empty member", func(t *testing.T) {
		err := run(t, app, "member", "add", "99")
		if !errors.Is(err, shared.ErrEmptyMember) {
			t.Errorf("expected ErrEmptyMember, got %v", err)
		}
	})

	t.Run("member list", func(t *testing.T) {
		output.Reset()
		if err := run(t, app, "member", "list"); err != nil {
			t.Fatalf("member list failed: %v", err)
		}
		if !strings.Contains(output.String(), "alice") {
			t.Errorf("member missing from list: %s", output.String())
		}
	})

	t.Run("videos", func(t *testing.T) {
		output.Reset()
		if err := run(t, app, "videos", "1"); err != nil {
			t.Fatalf("videos failed: %v", err)
		}
		out := output.String()
		if !strings.Contains(out, "second video") || !strings.Contains(out, "2 videos") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("search", func(t *testing.T) {
		output.Reset()
		if err := run(t, app, "search", "first"); err != nil {
			t.Fatalf("search failed: %v", err)
		}
		out := output.String()
		if !strings.Contains(out, "first video") || strings.Contains(out, "second video") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("visited and catchup", func(t *testing.T) {
		if err := run(t, app, "visited", "BVa"); err != nil {
			t.Fatalf("visited failed: %v", err)
		}
		if err := run(t, app, "catchup", "1"); err != nil {
			t.Fatalf("catchup failed: %v", err)
		}

		output.Reset()
		if err := run(t, app, "member", "list"); err != nil {
			t.Fatalf("member list failed: %v", err)
		}
		if !strings.Contains(output.String(), "     0") {
			t.Errorf("expected zero unseen after catchup: %s", output.String())
		}
	})

	t.Run("sync", func(t *testing.T) {
		output.Reset()
		if err := run(t, app, "sync", "1"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if !strings.Contains(output.String(), "0 new videos") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("sync all", func(t *testing.T) {
		output.Reset()
		if err := run(t, app, "sync", "--all"); err != nil {
			t.Fatalf("sync all failed: %v", err)
		}
		if !strings.Contains(output.String(), "Synced") && !strings.Contains(output.String(), "new videos") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("member remove", func(t *testing.T) {
		output.Reset()
		if err := run(t, app, "member", "remove", "1"); err != nil {
			t.Fatalf("member remove failed: %v", err)
		}
		output.Reset()
		if err := run(t, app, "member", "list"); err != nil {
			t.Fatalf("member list failed: %v", err)
		}
		if strings.Contains(output.String(), "alice") {
			t.Errorf("member should be gone: %s", output.String())
		}
	})

	t.Run("reap", func(t *testing.T) {
		output.Reset()
		if err := run(t, app, "reap"); err != nil {
			t.Fatalf("reap failed: %v", err)
		}
		if !strings.Contains(output.String(), "grace period") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})
}

func TestSetupCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "test.sqlite3")
	config.Cache.Dir = filepath.Join(dir, "cache")

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(io.Discard),
		Output: output,
	})
	defer runner.Close()

	app := &cli.Command{Name: "bitiwo", Commands: runner.register()}
	configPath := filepath.Join(dir, "config.toml")
	if err := app.Run(context.Background(), []string{"bitiwo", "setup", "--config", configPath}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("config file not created: %v", err)
	}
	if !strings.Contains(output.String(), "Database ready") {
		t.Errorf("unexpected output: %s", output.String())
	}
}

func TestTUILogPath(t *testing.T) {
	config := shared.DefaultConfig()
	config.Cache.Dir = "/some/cache"
	runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(io.Discard)})

	want := filepath.Join("/some/cache", "bitiwo-tui.log")
	if got := runner.tuiLogPath(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestWatchCovers(t *testing.T) {
	image := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg bytes"))
	}))
	t.Cleanup(image.Close)

	covers := cache.NewCovers(filepath.Join(t.TempDir(), "cache"), nil, shared.NewLogger(io.Discard))
	co := tasks.NewCoordinator(tasks.PoolSizes{}, shared.NewLogger(io.Discard))
	t.Cleanup(co.Shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go co.Run(ctx)

	bus := tasks.NewBus()
	watchCovers(bus, co, covers)

	withCover := image.URL + "/pic/a.jpg"
	bus.Publish(tasks.VideosAddedEvent{MID: 1, Videos: []models.Video{
		{BVID: "BVa", MID: 1, PictureURL: withCover},
		{BVID: "BVb", MID: 1}, // no cover to fetch
	}})

	deadline := time.Now().Add(5 * time.Second)
	for !covers.Cached(1, withCover) {
		if time.Now().After(deadline) {
			t.Fatal("cover never reached the cache")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
