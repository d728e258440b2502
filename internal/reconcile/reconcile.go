// Package reconcile implements the long-lived scan loop that lists
// torrents, identifies new ones, persists matches, rebuilds the VFS, and
// notifies a configured media server of the result.
package reconcile

import (
	"context"
	"sync"
	"time"

	"debridvfs/internal/debrid"
	"debridvfs/internal/identify"
	"debridvfs/internal/media"
	"debridvfs/internal/notify"
	"debridvfs/internal/repair"
	"debridvfs/internal/store"
	"debridvfs/internal/vfs"
	"debridvfs/internal/webdavfs"
	"debridvfs/pkg/logger"
)

const downloadedStatus = "downloaded"

// healthCheckTimeout bounds a single torrent's health check so one
// unreachable hoster can't stall an entire scan.
const healthCheckTimeout = 10 * time.Second

// identifyConcurrency bounds how many torrents are identified in flight
// at once within a single scan; 1 by default (spec's configurable
// fan-limit, resolved open question 3).
type Loop struct {
	rd        *debrid.Client
	tmdb      *identify.TmdbClient
	store     *store.Store
	repairMgr *repair.Manager
	notifier  *notify.Client
	fs        *webdavfs.FileSystem

	identifyConcurrency int
	scanInterval        time.Duration

	mu          sync.Mutex
	seenMatches map[string]entry
	currentRoot *vfs.Node
}

type entry struct {
	info *debrid.TorrentInfo
	meta media.Metadata
}

// New constructs a Loop. fs may be nil if the caller doesn't need VFS
// swaps observed (e.g. in tests); notifier may be nil if no media server
// is configured.
func New(rd *debrid.Client, tmdb *identify.TmdbClient, st *store.Store, repairMgr *repair.Manager, notifier *notify.Client, fs *webdavfs.FileSystem, identifyConcurrency int, scanInterval time.Duration) *Loop {
	if identifyConcurrency < 1 {
		identifyConcurrency = 1
	}
	return &Loop{
		rd:                   rd,
		tmdb:                 tmdb,
		store:                st,
		repairMgr:            repairMgr,
		notifier:             notifier,
		fs:                   fs,
		identifyConcurrency:  identifyConcurrency,
		scanInterval:         scanInterval,
		seenMatches:          map[string]entry{},
		currentRoot:          vfs.NewDirectory(),
	}
}

// Run hydrates seen matches from the store, then loops: scan, identify,
// rebuild, sleep, until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.hydrateFromStore()

	logger.Info("reconciliation: running initial scan immediately")
	for {
		l.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.scanInterval):
		}
	}
}

func (l *Loop) hydrateFromStore() {
	if l.store == nil {
		return
	}
	matches, err := l.store.All()
	if err != nil {
		logger.Warn("reconciliation: failed to load persisted matches: %v", err)
		return
	}

	l.mu.Lock()
	for _, m := range matches {
		info := m.Info
		l.seenMatches[m.TorrentID] = entry{info: &info, meta: m.Metadata}
	}
	l.mu.Unlock()

	if len(matches) > 0 {
		logger.Info("reconciliation: loaded %d persistent matches from database", len(matches))
	}
}

func (l *Loop) runOnce(ctx context.Context) {
	logger.Info("reconciliation: refreshing torrent list")
	torrents, err := l.rd.GetTorrents(ctx)
	if err != nil {
		logger.Warn("reconciliation: failed to get torrents: %v", err)
		return
	}
	if len(torrents) == 0 {
		logger.Warn("reconciliation: no torrents found in account")
	}

	l.mu.Lock()
	var current []entry
	var toIdentify []debrid.TorrentSummary
	for _, t := range torrents {
		if t.Status != downloadedStatus {
			continue
		}
		if e, ok := l.seenMatches[t.ID]; ok {
			current = append(current, e)
			continue
		}
		if l.store != nil {
			if m, ok, err := l.store.Get(t.ID); err == nil && ok {
				info := m.Info
				e := entry{info: &info, meta: m.Metadata}
				l.seenMatches[t.ID] = e
				current = append(current, e)
				continue
			}
		}
		toIdentify = append(toIdentify, t)
	}
	l.mu.Unlock()

	if len(toIdentify) > 0 {
		logger.Info("reconciliation: identifying %d new torrents", len(toIdentify))
		current = l.identifyAll(ctx, toIdentify, current)
	}

	l.checkHealth(ctx, current)
	l.rebuildAndSwap(ctx, current)

	currentIDs := make(map[string]struct{}, len(torrents))
	for _, t := range torrents {
		currentIDs[t.ID] = struct{}{}
	}
	l.mu.Lock()
	for id := range l.seenMatches {
		if _, ok := currentIDs[id]; !ok {
			delete(l.seenMatches, id)
			if l.store != nil {
				_ = l.store.Delete(id)
			}
		}
	}
	l.mu.Unlock()

	logger.Info("reconciliation: scan complete, sleeping %s", l.scanInterval)
}

// identifyAll runs identification over toIdentify with the loop's bounded
// concurrency, persisting and rebuilding every 10 completions; runOnce does
// one final rebuild itself once identification and health checks finish.
func (l *Loop) identifyAll(ctx context.Context, toIdentify []debrid.TorrentSummary, current []entry) []entry {
	type result struct {
		id   string
		info *debrid.TorrentInfo
		meta media.Metadata
		err  error
	}

	sem := make(chan struct{}, l.identifyConcurrency)
	results := make(chan result, len(toIdentify))
	var wg sync.WaitGroup

	for _, t := range toIdentify {
		wg.Add(1)
		sem <- struct{}{}
		go func(t debrid.TorrentSummary) {
			defer wg.Done()
			defer func() { <-sem }()

			info, err := l.rd.GetTorrentInfo(ctx, t.ID)
			if err != nil {
				results <- result{id: t.ID, err: err}
				return
			}
			meta := identify.IdentifyTorrent(ctx, l.tmdb, info)
			results <- result{id: t.ID, info: info, meta: meta}
		}(t)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	processed := 0
	total := len(toIdentify)
	for r := range results {
		processed++
		if r.err != nil {
			logger.Warn("reconciliation: failed to identify torrent %s: %v", r.id, r.err)
			continue
		}

		l.mu.Lock()
		l.seenMatches[r.id] = entry{info: r.info, meta: r.meta}
		l.mu.Unlock()

		if l.store != nil {
			if err := l.store.Upsert(store.Match{TorrentID: r.id, Info: *r.info, Metadata: r.meta}); err != nil {
				logger.Warn("reconciliation: failed to persist match for %s: %v", r.id, err)
			}
		}

		current = append(current, entry{info: r.info, meta: r.meta})

		if processed%10 == 0 && processed != total {
			logger.Info("reconciliation: progress %d/%d new torrents identified", processed, total)
			l.rebuildAndSwap(ctx, current)
		}
	}

	return current
}

// checkHealth runs CheckTorrentHealth over every currently-known torrent
// with the loop's bounded concurrency, the same semaphore/waitgroup shape
// as identifyAll. A scan's worth of health checks is what gives the repair
// state machine its only runtime trigger beyond a failed live read.
func (l *Loop) checkHealth(ctx context.Context, current []entry) {
	if l.repairMgr == nil || len(current) == 0 {
		return
	}

	sem := make(chan struct{}, l.identifyConcurrency)
	var wg sync.WaitGroup

	for _, e := range current {
		wg.Add(1)
		sem <- struct{}{}
		go func(e entry) {
			defer wg.Done()
			defer func() { <-sem }()
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()
			l.repairMgr.CheckTorrentHealth(checkCtx, e.info)
		}(e)
	}

	wg.Wait()
}

// rebuildAndSwap filters out torrents the repair manager has hidden,
// rebuilds the VFS, swaps it atomically, diffs against the previous tree,
// and (if a notifier is configured) fires a change notification.
func (l *Loop) rebuildAndSwap(ctx context.Context, current []entry) {
	var filtered []vfs.Entry
	for _, e := range current {
		if l.repairMgr != nil && l.repairMgr.ShouldHide(e.info.ID) {
			continue
		}
		filtered = append(filtered, vfs.Entry{Info: e.info, Metadata: e.meta})
	}

	newRoot := vfs.Build(ctx, filtered, l.rd)

	l.mu.Lock()
	oldRoot := l.currentRoot
	l.currentRoot = newRoot
	l.mu.Unlock()

	if l.fs != nil {
		l.fs.Swap(newRoot)
	}

	changes := vfs.Diff(oldRoot, newRoot)
	if l.notifier != nil && len(changes) > 0 {
		go l.notifier.NotifyChanges(context.Background(), changes)
	}

	logger.Info("reconciliation: VFS update complete")
}
