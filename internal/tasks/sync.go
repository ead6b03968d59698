package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mozbugbox/bitiwo/internal/bilibili"
	"github.com/mozbugbox/bitiwo/internal/models"
	"github.com/mozbugbox/bitiwo/internal/shared"
	"github.com/mozbugbox/bitiwo/internal/store"
)

// Source fetches a member's submission list from the network.
type Source interface {
	AllVideoPages(ctx context.Context, mid int64) (*bilibili.PageInfo, error)
	NewVideos(ctx context.Context, mid int64, watermark int64) ([]bilibili.VideoItem, error)
}

// Engine moves member data from the network into the store. Refreshes
// of different members are serialized through an internal waiting list;
// re-requesting a member that is already waiting is a no-op.
type Engine struct {
	store  *store.Store
	source Source
	bus    *Bus
	co     *Coordinator
	log    *log.Logger

	mu       sync.Mutex
	waiting  []int64
	enqueued map[int64]bool
	draining bool
}

// NewEngine creates a sync engine. Bus and coordinator are optional;
// without a coordinator events are published inline.
func NewEngine(st *store.Store, source Source, bus *Bus, co *Coordinator, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:    st,
		source:   source,
		bus:      bus,
		co:       co,
		log:      logger,
		enqueued: make(map[int64]bool),
	}
}

// publish marshals the event onto the owner loop when a coordinator is
// attached, so subscribers always run in owner context.
func (e *Engine) publish(event Event) {
	if e.bus == nil {
		return
	}
	if e.co != nil {
		e.co.RunOnOwner(func() { e.bus.Publish(event) })
		return
	}
	e.bus.Publish(event)
}

// BootstrapMember adds a new member: downloads the full submission
// list, derives the display name from the newest item and stores member
// and videos. A member with no published content is rejected with
// [shared.ErrEmptyMember] and nothing is stored.
func (e *Engine) BootstrapMember(ctx context.Context, mid int64) ([]models.Video, error) {
	info, err := e.source.AllVideoPages(ctx, mid)
	if err != nil {
		return nil, err
	}
	if len(info.Videos) == 0 {
		return nil, fmt.Errorf("%w: member %d has no videos", shared.ErrEmptyMember, mid)
	}

	name := info.Videos[0].Author
	if err := e.store.AddMember(mid, name); err != nil {
		return nil, err
	}

	batch := make([]models.Video, len(info.Videos))
	for i, item := range info.Videos {
		batch[i] = item.Video()
	}
	if err := e.store.AddVideos(batch); err != nil {
		return nil, err
	}

	e.log.Info("member added", "mid", mid, "name", name, "videos", len(batch))
	e.publish(MemberAddedEvent{MID: mid, Name: name})
	e.publish(VideosAddedEvent{MID: mid, Videos: batch})
	return batch, nil
}

// RefreshMember fetches videos published since the member's stored
// watermark and upserts them. The returned slice is re-read from the
// store against the pre-refresh watermark, so callers see exactly the
// rows that are new relative to the state before the call.
//
// With a coordinator attached the fetch runs on the member-sync pool,
// whose worker count bounds how many refreshes touch the network at
// once; the call still blocks until its own refresh is done.
func (e *Engine) RefreshMember(ctx context.Context, mid int64) ([]models.Video, error) {
	if e.co == nil {
		return e.refreshMember(ctx, mid)
	}

	var videos []models.Video
	handle := e.co.Submit(PoolMemberSync, func(ctx context.Context) error {
		var err error
		videos, err = e.refreshMember(ctx, mid)
		return err
	})
	select {
	case <-handle.Done():
		return videos, handle.Err()
	case <-ctx.Done():
		handle.Cancel()
		return nil, ctx.Err()
	}
}

func (e *Engine) refreshMember(ctx context.Context, mid int64) ([]models.Video, error) {
	if _, err := e.store.MemberInfo(mid); err != nil {
		return nil, err
	}

	watermark, err := e.store.LastUpdate(mid)
	if err != nil {
		return nil, err
	}

	items, err := e.source.NewVideos(ctx, mid, watermark)
	if err != nil {
		if errors.Is(err, shared.ErrParse) {
			// A garbled page means no usable data this round, not a
			// broken member.
			e.log.Warn("unparseable refresh response", "mid", mid, "error", err)
			return nil, nil
		}
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	batch := make([]models.Video, len(items))
	for i, item := range items {
		batch[i] = item.Video()
	}
	if err := e.store.AddVideos(batch); err != nil {
		return nil, err
	}

	videos, err := e.store.NewerVideos(mid, watermark)
	if err != nil {
		return nil, err
	}

	e.log.Info("member refreshed", "mid", mid, "new", len(videos))
	e.publish(VideosAddedEvent{MID: mid, Videos: videos})
	e.publish(MemberStatusEvent{MID: mid})
	return videos, nil
}

// RemoveMember deletes a member and its videos and records the removal
// so the cover cache can be reaped after the grace period.
func (e *Engine) RemoveMember(mid int64) error {
	if err := e.store.DeleteMember(mid); err != nil {
		return err
	}
	if err := e.store.AddRemovedMember(mid); err != nil {
		return err
	}

	e.log.Info("member removed", "mid", mid)
	e.publish(MemberRemovedEvent{MID: mid})
	return nil
}

// SetVideoVisited flips a video's visited flag and notifies listeners.
func (e *Engine) SetVideoVisited(bvid string, visited bool) error {
	video, err := e.store.VideoInfo(bvid)
	if err != nil {
		return err
	}
	if err := e.store.SetVideoVisited(bvid, visited); err != nil {
		return err
	}

	e.publish(VideoVisitedEvent{BVID: bvid, Visited: visited})
	e.publish(MemberStatusEvent{MID: video.MID})
	return nil
}

// CatchUpMember marks every video of a member visited.
func (e *Engine) CatchUpMember(mid int64) error {
	if err := e.store.SetMemberVideosVisited(mid, true); err != nil {
		return err
	}
	e.publish(MemberStatusEvent{MID: mid})
	return nil
}

// Enqueue appends members to the refresh waiting list in arrival order.
// A member already waiting keeps its position.
func (e *Engine) Enqueue(mids ...int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, mid := range mids {
		if e.enqueued[mid] {
			continue
		}
		e.enqueued[mid] = true
		e.waiting = append(e.waiting, mid)
	}
}

// ClearQueue drops every member still waiting for a refresh.
func (e *Engine) ClearQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waiting = nil
	e.enqueued = make(map[int64]bool)
}

// QueueLen reports how many members are waiting.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.waiting)
}

func (e *Engine) dequeue() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.waiting) == 0 {
		return 0, false
	}
	mid := e.waiting[0]
	e.waiting = e.waiting[1:]
	delete(e.enqueued, mid)
	return mid, true
}

// RefreshAll enqueues the members and drains the waiting list, strictly
// one member at a time. A failing member is logged and skipped; members
// enqueued while a drain is running are picked up by that drain. Stops
// early when ctx is cancelled, leaving the rest of the queue intact.
func (e *Engine) RefreshAll(ctx context.Context, mids ...int64) error {
	e.Enqueue(mids...)

	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		mid, ok := e.dequeue()
		if !ok {
			return nil
		}
		if _, err := e.RefreshMember(ctx, mid); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warn("refresh failed, skipping member", "mid", mid, "error", err)
		}
	}
}
