package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mozbugbox/bitiwo/internal/bilibili"
	"github.com/mozbugbox/bitiwo/internal/cache"
	"github.com/mozbugbox/bitiwo/internal/player"
	"github.com/mozbugbox/bitiwo/internal/shared"
	"github.com/mozbugbox/bitiwo/internal/store"
	"github.com/mozbugbox/bitiwo/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods
// for each command action. Heavy dependencies are built lazily so
// commands that never touch the database do not open it.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	store     *store.Store
	extractor *bilibili.Extractor
	engine    *tasks.Engine
	bus       *tasks.Bus
	covers    *cache.Covers
	reaper    *cache.Reaper
	player    *player.Player
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Store      *store.Store // pre-opened store, used by tests
}

// NewRunner creates a new Runner with the provided configuration.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		store:      opts.Store,
		bus:        tasks.NewBus(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, memberCommand, syncCommand, videosCommand, searchCommand,
		visitedCommand, catchupCommand, partsCommand, playCommand, reapCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openStore opens the database on first use.
func (r *Runner) openStore() (*store.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	st, err := store.Open(r.config.Database.Path, store.Options{
		Logger:       r.logger,
		MaxOpenConns: r.config.Database.MaxOpenConns,
		MaxIdleConns: r.config.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	r.store = st
	return st, nil
}

func (r *Runner) getExtractor() *bilibili.Extractor {
	if r.extractor == nil {
		r.extractor = bilibili.NewExtractor(bilibili.Options{
			BaseURL:       r.config.API.BaseURL,
			Client:        r.httpClient,
			PageSize:      r.config.API.PageSize,
			FetchInterval: r.config.API.FetchInterval,
			Headers:       r.config.API.Headers,
			Logger:        r.logger,
		})
	}
	return r.extractor
}

// getEngine builds the sync engine over the store and the extractor.
func (r *Runner) getEngine() (*tasks.Engine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	st, err := r.openStore()
	if err != nil {
		return nil, err
	}
	r.engine = tasks.NewEngine(st, r.getExtractor(), r.bus, nil, r.logger)
	return r.engine, nil
}

func (r *Runner) getCovers() *cache.Covers {
	if r.covers == nil {
		r.covers = cache.NewCovers(r.config.Cache.Dir, r.httpClient, r.logger)
	}
	return r.covers
}

func (r *Runner) getReaper() (*cache.Reaper, error) {
	if r.reaper != nil {
		return r.reaper, nil
	}

	st, err := r.openStore()
	if err != nil {
		return nil, err
	}
	r.reaper = cache.NewReaper(st, r.getCovers(), nil, r.config.Cache.GracePeriod(), r.logger)
	return r.reaper, nil
}

func (r *Runner) getPlayer() (*player.Player, error) {
	if r.player != nil {
		return r.player, nil
	}

	command := r.config.Player.Command
	// A player stored in the database overrides the config file.
	if st, err := r.openStore(); err == nil {
		if stored, ok, err := st.GetConfig("player_bin"); err == nil && ok && stored != "" {
			command = stored
		}
	}

	r.player = player.New(command, r.logger)
	return r.player, nil
}

// Close releases the database if a command opened it.
func (r *Runner) Close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("failed to close store", "error", err)
		}
		r.store = nil
	}
}

// parseMID parses a member id argument.
func parseMID(arg string) (int64, error) {
	if arg == "" {
		return 0, fmt.Errorf("%w: member id", shared.ErrMissingArgument)
	}
	mid, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || mid <= 0 {
		return 0, fmt.Errorf("%w: bad member id %q", shared.ErrInvalidArgument, arg)
	}
	return mid, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
