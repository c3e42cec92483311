package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"reels/internal/config"
	"reels/internal/feed"
	"reels/internal/logging"
	"reels/internal/session"
	"reels/internal/storage"
)

// Reporter receives playback reports. *api.Client implements it.
type Reporter interface {
	ReportPlaybackStart(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionTicks int64) error
	ReportPlaybackProgress(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionTicks int64, isPaused bool) error
	ReportPlaybackStopped(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionTicks int64) error
}

type reportKind int

const (
	reportStart reportKind = iota
	reportProgress
	reportStop
	reportWatch
	reportComplete
)

type report struct {
	kind    reportKind
	itemID  string
	title   string
	session string
	percent float64
	paused  bool
}

type play struct {
	session string
	percent float64
}

// Analytics turns session events into server playback reports and local watch history.
// Emit never blocks; the network and disk work happens in Run.
type Analytics struct {
	rep     Reporter
	store   *storage.Store
	lookup  func(id string) (feed.Item, bool)
	limiter *rate.Limiter
	reports chan report

	mu    sync.Mutex
	plays map[string]*play
}

// NewAnalytics sends at most one progress report per interval. rep and store may be nil.
func NewAnalytics(rep Reporter, store *storage.Store, lookup func(string) (feed.Item, bool), interval time.Duration) *Analytics {
	if interval <= 0 {
		interval = config.ProgressReportEvery
	}
	return &Analytics{
		rep:     rep,
		store:   store,
		lookup:  lookup,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		reports: make(chan report, 256),
		plays:   make(map[string]*play),
	}
}

func (a *Analytics) Emit(ev session.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Kind {
	case session.EventPlay:
		p, ok := a.plays[ev.ItemID]
		if !ok {
			p = &play{session: uuid.NewString()}
			a.plays[ev.ItemID] = p
			a.push(report{kind: reportStart, itemID: ev.ItemID, session: p.session, percent: p.percent})
			return
		}
		a.push(report{kind: reportProgress, itemID: ev.ItemID, session: p.session, percent: p.percent})
	case session.EventPause:
		if p, ok := a.plays[ev.ItemID]; ok {
			a.push(report{kind: reportProgress, itemID: ev.ItemID, session: p.session, percent: p.percent, paused: true})
		}
	case session.EventProgress:
		p, ok := a.plays[ev.ItemID]
		if !ok {
			return
		}
		p.percent = ev.Percent
		if a.limiter.Allow() {
			a.push(report{kind: reportProgress, itemID: ev.ItemID, session: p.session, percent: p.percent})
			a.push(report{kind: reportWatch, itemID: ev.ItemID, title: ev.Title, percent: p.percent})
		}
	case session.EventComplete:
		if p, ok := a.plays[ev.ItemID]; ok {
			a.push(report{kind: reportStop, itemID: ev.ItemID, session: p.session, percent: 100})
			delete(a.plays, ev.ItemID)
		}
		a.push(report{kind: reportComplete, itemID: ev.ItemID})
	case session.EventDestroyed:
		if p, ok := a.plays[ev.ItemID]; ok {
			a.push(report{kind: reportStop, itemID: ev.ItemID, session: p.session, percent: p.percent})
			delete(a.plays, ev.ItemID)
		}
	case session.EventClose:
		for id, p := range a.plays {
			a.push(report{kind: reportStop, itemID: id, session: p.session, percent: p.percent})
		}
		a.plays = make(map[string]*play)
	}
}

func (a *Analytics) push(r report) {
	select {
	case a.reports <- r:
	default:
		logging.Warn("analytics queue full, dropping report", "item", r.itemID, "kind", r.kind)
	}
}

// Run handles queued reports until ctx is done, then drains what is left.
func (a *Analytics) Run(ctx context.Context) error {
	for {
		select {
		case r := <-a.reports:
			a.handle(ctx, r)
		case <-ctx.Done():
			drain, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			for {
				select {
				case r := <-a.reports:
					a.handle(drain, r)
				default:
					return nil
				}
			}
		}
	}
}

func (a *Analytics) ticks(itemID string, percent float64) (string, int64) {
	if a.lookup == nil {
		return "", 0
	}
	item, ok := a.lookup(itemID)
	if !ok {
		return "", 0
	}
	total := int64(item.Duration / time.Second * config.TicksPerSecond)
	return item.MediaID, int64(float64(total) * percent / 100)
}

func (a *Analytics) handle(ctx context.Context, r report) {
	var err error
	switch r.kind {
	case reportWatch:
		if a.store != nil {
			err = a.store.UpdateWatch(r.itemID, r.title, int(r.percent))
		}
	case reportComplete:
		if a.store != nil {
			err = a.store.MarkCompleted(r.itemID)
		}
	default:
		if a.rep == nil {
			return
		}
		mediaID, pos := a.ticks(r.itemID, r.percent)
		switch r.kind {
		case reportStart:
			err = a.rep.ReportPlaybackStart(ctx, r.itemID, mediaID, r.session, pos)
		case reportProgress:
			err = a.rep.ReportPlaybackProgress(ctx, r.itemID, mediaID, r.session, pos, r.paused)
		case reportStop:
			err = a.rep.ReportPlaybackStopped(ctx, r.itemID, mediaID, r.session, pos)
		}
	}
	if err != nil {
		logging.Warn("analytics report failed", "item", r.itemID, "kind", r.kind, "err", err)
	}
}
