package tasks

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

const refreshInterval = 5 * time.Minute

// Projector owns the current external task list and projects each
// task to a Note enriched with ledger-derived status at render time.
type Projector struct {
	sourceURL   string
	githubToken string
	client      *http.Client
	now         func() time.Time

	mu        sync.RWMutex
	records   []Record
	fetchedAt time.Time
	warm      bool
	fallback  []Record
}

// NewProjector constructs a projector for the given opaque task feed
// URL. sourceURL may be empty, in which case Refresh always falls back
// to the built-in genesis list.
func NewProjector(sourceURL, githubToken string) *Projector {
	return &Projector{
		sourceURL:   sourceURL,
		githubToken: githubToken,
		client:      &http.Client{Timeout: defaultFetchTimeout},
		now:         time.Now,
		fallback:    fallbackRecords(),
	}
}

// SetFallback overrides the built-in three-task genesis list with a
// caller-supplied one (board.yaml's genesis_tasks overlay). It only
// takes effect before the first Refresh warms the cache, whether by a
// successful fetch or by seeding the fallback list.
func (p *Projector) SetFallback(records []Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = records
}

// Start runs an immediate refresh, then refreshes every five minutes
// until ctx is cancelled: refresh unconditionally, sleep, repeat.
func (p *Projector) Start(ctx context.Context) {
	p.refreshLogged(ctx)
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshLogged(ctx)
		}
	}
}

func (p *Projector) refreshLogged(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil {
		log.Printf("tasks: refresh failed, keeping last known good cache: %v", err)
	}
}

// Refresh pulls the external task list once. On failure it leaves the
// existing cache untouched and returns an *UpstreamError; on first-ever
// failure (cold start, nothing cached yet) it seeds the cache with the
// built-in three-task fallback list instead.
func (p *Projector) Refresh(ctx context.Context) error {
	now := p.now()

	if p.sourceURL == "" {
		p.seedFallbackIfCold(now)
		return nil
	}

	raw, err := fetchSourceTasks(ctx, p.client, p.sourceURL, p.githubToken)
	if err != nil {
		p.seedFallbackIfCold(now)
		return err
	}

	records := make([]Record, 0, len(raw))
	for _, t := range raw {
		records = append(records, recordFromSource(t, now))
	}

	p.mu.Lock()
	p.records = records
	p.fetchedAt = now
	p.warm = true
	p.mu.Unlock()
	return nil
}

// seedFallbackIfCold installs the built-in genesis list only if the
// cache has never been populated; a warm cache is left untouched so a
// transient upstream outage doesn't erase previously-seen tasks.
func (p *Projector) seedFallbackIfCold(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.warm {
		return
	}
	fallback := make([]Record, len(p.fallback))
	copy(fallback, p.fallback)
	for i := range fallback {
		fallback[i].FetchedAt = now
	}
	p.records = fallback
	p.fetchedAt = now
	p.warm = true
}

func (p *Projector) snapshot() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// Notes projects every currently-known task to a Note, with status
// resolved against status at render time.
func (p *Projector) Notes(status StatusSource) []Note {
	records := p.snapshot()
	notes := make([]Note, 0, len(records))
	for _, r := range records {
		notes = append(notes, noteFromRecord(r, status.EffectiveStatus(r.ID)))
	}
	return notes
}

// ByID projects a single task by its task_id, or reports it is not
// currently in the projected list (removed upstream, or never seen).
func (p *Projector) ByID(status StatusSource, taskID string) (Note, bool) {
	records := p.snapshot()
	for _, r := range records {
		if r.ID == taskID {
			return noteFromRecord(r, status.EffectiveStatus(r.ID)), true
		}
	}
	return Note{}, false
}
