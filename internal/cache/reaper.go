package cache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mozbugbox/bitiwo/internal/store"
	"github.com/mozbugbox/bitiwo/internal/tasks"
)

// Config keys persisting sweep timestamps across restarts.
const (
	keyLastSweep       = "timestamp_last_sweep"
	keyLastOrphanCheck = "timestamp_last_orphaned_check"
)

// DefaultGracePeriod is how long a removed member's cache lingers on
// disk before it is eligible for deletion.
const DefaultGracePeriod = 7 * 24 * time.Hour

// Reaper evicts cover cache directories of removed members once their
// grace period has elapsed, and periodically hunts for orphaned
// directories that no longer belong to any member.
type Reaper struct {
	store  *store.Store
	covers *Covers
	co     *tasks.Coordinator
	grace  time.Duration
	log    *log.Logger

	now func() time.Time // replaceable for tests
}

// NewReaper creates a reaper. Coordinator is optional; without one,
// deletions run inline.
func NewReaper(st *store.Store, covers *Covers, co *tasks.Coordinator, grace time.Duration, logger *log.Logger) *Reaper {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reaper{
		store:  st,
		covers: covers,
		co:     co,
		grace:  grace,
		log:    logger,
		now:    time.Now,
	}
}

// Sweep runs one policy cycle: evict expired removals and, when none
// were found, fall through to the throttled orphan scan. Errors are
// logged, never surfaced; a sweep must not take anything down.
func (r *Reaper) Sweep() {
	if swept, err := r.SweepRemovedMembers(); err != nil {
		r.log.Warn("sweep failed", "error", err)
	} else if !swept {
		if _, err := r.SweepOrphanedCache(); err != nil {
			r.log.Warn("orphan sweep failed", "error", err)
		}
	}
}

// OnMemberRemoved reacts to a member removal with an immediate sweep
// attempt, which typically evicts older removals whose grace period has
// already run out. The fresh removal itself survives until its own
// period elapses.
func (r *Reaper) OnMemberRemoved(mid int64) {
	r.Sweep()
}

// SweepRemovedMembers deletes cache directories of removed members whose
// grace period has elapsed and clears their removal records. Reports
// whether anything was evicted.
func (r *Reaper) SweepRemovedMembers() (bool, error) {
	removed, err := r.store.RemovedMembers()
	if err != nil {
		return false, err
	}

	now := float64(r.now().UnixNano()) / 1e9
	var expired []int64
	for _, rm := range removed {
		if now-rm.Timestamp > r.grace.Seconds() {
			expired = append(expired, rm.MID)
		}
	}
	if len(expired) == 0 {
		return false, nil
	}

	r.reapDirs(expired, true)
	if _, err := r.store.SetConfig(keyLastSweep, formatTimestamp(now)); err != nil {
		return true, err
	}
	return true, nil
}

// SweepOrphanedCache deletes "mid-*" cache directories that belong to
// neither a current member nor a removal still inside its grace period.
// The scan runs at most once per grace period; the throttle timestamp
// persists across restarts. Reports whether a scan happened.
func (r *Reaper) SweepOrphanedCache() (bool, error) {
	now := float64(r.now().UnixNano()) / 1e9
	if last, ok, err := r.store.GetConfig(keyLastOrphanCheck); err != nil {
		return false, err
	} else if ok {
		lastTS, _ := strconv.ParseFloat(last, 64)
		if now-lastTS < r.grace.Seconds() {
			return false, nil
		}
	}
	if _, err := r.store.SetConfig(keyLastOrphanCheck, formatTimestamp(now)); err != nil {
		return false, err
	}

	keep := make(map[int64]bool)
	members, err := r.store.MemberList()
	if err != nil {
		return true, err
	}
	for _, m := range members {
		keep[m.MID] = true
	}
	removed, err := r.store.RemovedMembers()
	if err != nil {
		return true, err
	}
	for _, rm := range removed {
		keep[rm.MID] = true
	}

	entries, err := os.ReadDir(r.covers.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return true, fmt.Errorf("failed to scan cache dir: %w", err)
	}

	var orphans []int64
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), memberDirPrefix) {
			continue
		}
		mid, err := strconv.ParseInt(strings.TrimPrefix(entry.Name(), memberDirPrefix), 10, 64)
		if err != nil {
			continue
		}
		if !keep[mid] {
			orphans = append(orphans, mid)
		}
	}
	if len(orphans) > 0 {
		r.reapDirs(orphans, false)
	}
	return true, nil
}

// reapDirs removes the cache directories on the image-disk pool and,
// for removed-member records, clears the record on the owner loop once
// the directory is gone.
func (r *Reaper) reapDirs(mids []int64, clearRecord bool) {
	job := func(ctx context.Context) error {
		for _, mid := range mids {
			if err := r.covers.RemoveMemberDir(mid); err != nil {
				r.log.Warn("failed to evict cache dir", "mid", mid, "error", err)
				continue
			}
			r.log.Info("cache dir evicted", "mid", mid)
			if clearRecord {
				r.clearRecord(mid)
			}
		}
		return nil
	}

	if r.co != nil {
		r.co.Submit(tasks.PoolImageDisk, job)
		return
	}
	_ = job(context.Background())
}

func (r *Reaper) clearRecord(mid int64) {
	fn := func() {
		if err := r.store.DeleteRemovedMember(mid); err != nil {
			r.log.Warn("failed to clear removal record", "mid", mid, "error", err)
		}
	}
	if r.co != nil {
		r.co.RunOnOwner(fn)
		return
	}
	fn()
}

func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 6, 64)
}
