// Package workspace mirrors task state to an external workspace tool over
// HTTP. Delivery is best effort and never blocks the caller.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tasktimer/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Record is the JSON body posted for a task, keyed by its local id.
type Record struct {
	LocalID      int64           `json:"local_id"`
	Name         string          `json:"name"`
	Status       domain.Status   `json:"status"`
	Category     domain.Category `json:"category"`
	Minutes      int64           `json:"minutes"`
	TotalSeconds int64           `json:"total_seconds"`
	Tags         []string        `json:"tags"`
	Archived     bool            `json:"archived"`
	UpdatedAt    string          `json:"updated_at"`
}

func RecordOf(t domain.Task) Record {
	tags := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, tag.Name)
	}
	return Record{
		LocalID:      t.ID,
		Name:         t.Name,
		Status:       t.Status,
		Category:     t.Category,
		Minutes:      t.TotalSeconds / 60,
		TotalSeconds: t.TotalSeconds,
		Tags:         tags,
		Archived:     t.IsArchived,
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type Options struct {
	URL     string
	Token   string
	Timeout time.Duration
	Client  *http.Client
	Log     zerolog.Logger
}

// Pusher posts task records to the configured URL. Deliveries for one task
// run one at a time in push order; while one is in flight only the latest
// record waits behind it.
type Pusher struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
	log     zerolog.Logger
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[int64]*queued
}

type queued struct {
	ctx context.Context
	rec Record
}

func NewPusher(opts Options) *Pusher {
	p := &Pusher{
		url:     strings.TrimSpace(opts.URL),
		token:   strings.TrimSpace(opts.Token),
		timeout: opts.Timeout,
		client:  opts.Client,
		log:     opts.Log,
		pending: make(map[int64]*queued),
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: p.timeout}
	}
	return p
}

// PushTask mirrors t in the background.
func (p *Pusher) PushTask(ctx context.Context, t domain.Task) {
	p.dispatch(ctx, RecordOf(t))
}

// ArchiveRemote marks the remote copy of t archived, ahead of a local delete.
func (p *Pusher) ArchiveRemote(ctx context.Context, t domain.Task) {
	rec := RecordOf(t)
	rec.Archived = true
	p.dispatch(ctx, rec)
}

// Wait blocks until in-flight deliveries finish.
func (p *Pusher) Wait() {
	p.wg.Wait()
}

func (p *Pusher) dispatch(ctx context.Context, rec Record) {
	p.mu.Lock()
	next, inFlight := p.pending[rec.LocalID]
	p.pending[rec.LocalID] = &queued{ctx: ctx, rec: rec}
	p.mu.Unlock()
	if inFlight {
		if next != nil {
			p.log.Debug().Int64("task_id", rec.LocalID).Msg("workspace sync superseded")
		}
		return
	}
	p.wg.Add(1)
	go p.drain(rec.LocalID)
}

// drain delivers the task's queued records until none is left. A nil entry
// marks a delivery in flight with nothing queued behind it.
func (p *Pusher) drain(id int64) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		q := p.pending[id]
		if q == nil {
			delete(p.pending, id)
			p.mu.Unlock()
			return
		}
		p.pending[id] = nil
		p.mu.Unlock()
		p.deliver(q.ctx, q.rec)
	}
}

func (p *Pusher) deliver(ctx context.Context, rec Record) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.post(ctx, rec); err != nil {
		p.log.Warn().Err(err).Int64("task_id", rec.LocalID).Str("url", p.url).Msg("workspace sync failed")
		return
	}
	p.log.Debug().Int64("task_id", rec.LocalID).Bool("archived", rec.Archived).Msg("workspace sync delivered")
}

func (p *Pusher) post(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tasktimer-Task", fmt.Sprintf("%d", rec.LocalID))
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Noop is used when no workspace is configured.
type Noop struct{}

func (Noop) PushTask(context.Context, domain.Task)      {}
func (Noop) ArchiveRemote(context.Context, domain.Task) {}
