// Package reqmgr implements the request/response layer: mini-requests
// bound for one destination+priority are coalesced into a MaxiRequest,
// sent through a host-supplied Sender, retried with backoff, deduplicated
// while in flight, and rate-limited for Metric traffic so diagnostics
// never starve real requests.
//
// github.com/joeycumines/go-microbatch coalesces mini-requests into
// MaxiRequests, github.com/joeycumines/go-longpoll drains a dispatched
// MaxiResponse's mini-responses back to their waiters in partial batches,
// and github.com/joeycumines/go-catrate rate-limits Metric mini-requests
// per destination.
package reqmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-longpoll"
	"github.com/joeycumines/go-microbatch"

	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/promise"
)

// Destination is an opaque backend namespace a channel integration
// resolves to a Sender.
type Destination string

// Priority classes; RealTime packets send immediately, Batch packets
// accumulate over a short window.
type Priority int

const (
	RealTime Priority = iota
	Batch
)

// MessageID is a process-unique identifier correlating a mini-request to
// its mini-response, assigned monotonically.
type MessageID uint64

// Kind discriminates the mini-request variants.
type Kind int

const (
	Boot Kind = iota
	Program
	Stick
	Authority
	Data
	Jump
	Metric
)

// MiniRequest is one logical operation addressed to a backend.
// Body carries the variant-specific content; its DedupKey determines
// whether two in-flight requests are "the same" for deduplication.
type MiniRequest struct {
	ID          MessageID
	Kind        Kind
	Destination Destination
	Priority    Priority
	Body        any
}

// DedupKey identifies content-identical mini-requests so only one is ever
// actually sent while several callers wait on it.
func (r MiniRequest) DedupKey() string {
	return fmt.Sprintf("%s|%d|%v", r.Destination, r.Kind, r.Body)
}

// Status classifies a mini-response: a typed success, a retriable
// GeneralFailure, a refusal carrying a call-to-action (Unavailable), or a
// response that does not match the request variant at all (Unexpected),
// which is a protocol violation and aborts fatally.
type Status int

const (
	Success Status = iota
	GeneralFailure
	Unavailable
	Unexpected
)

// MiniResponse is the per-mini-request outcome, correlated by ID rather
// than position.
type MiniResponse struct {
	ID      MessageID
	Status  Status
	Value   any
	Message string // GeneralFailure detail or Unavailable call-to-action
}

// MaxiRequest batches mini-requests bound for one destination.
type MaxiRequest struct {
	Destination Destination
	Version     string
	Minis       []MiniRequest
}

// MaxiResponse is the batched reply to a MaxiRequest.
type MaxiResponse struct {
	Minis []MiniResponse
}

// Sender is the host-implemented channel abstraction: given a priority
// and MaxiRequest, it returns the eventual MaxiResponse.
type Sender interface {
	Send(ctx context.Context, priority Priority, req MaxiRequest) (MaxiResponse, error)
}

// ChannelIntegration resolves a Destination to the Sender that serves it.
type ChannelIntegration interface {
	SenderFor(dest Destination) (Sender, error)
}

// BackoffSchedule is the default client-side retry schedule: up to 5
// tries, waiting {0,1,1,1,100}ms before each successive try (so the first
// try goes out immediately).
var BackoffSchedule = []time.Duration{
	0,
	time.Millisecond,
	time.Millisecond,
	time.Millisecond,
	100 * time.Millisecond,
}

// Config bundles a Manager's tunables: a plain struct, zero value
// meaningful, defaulted at construction.
type Config struct {
	// Backoff overrides BackoffSchedule if non-nil.
	Backoff []time.Duration
	// BatchWindow is how long a Batch-priority coalescing window stays open.
	// Defaults to 20ms.
	BatchWindow time.Duration
	// MaxBatchSize caps mini-requests per MaxiRequest. Defaults to 32.
	MaxBatchSize int
	// MetricRates configures the catrate.Limiter guarding Metric traffic.
	// Defaults to 50 per second per destination.
	MetricRates map[time.Duration]int
	// Sink receives Temporary diagnostic messages for each retried
	// mini-request.
	Sink diag.MessageSender
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Backoff == nil {
		out.Backoff = BackoffSchedule
	}
	if out.BatchWindow <= 0 {
		out.BatchWindow = 20 * time.Millisecond
	}
	if out.MaxBatchSize <= 0 {
		out.MaxBatchSize = 32
	}
	if out.MetricRates == nil {
		out.MetricRates = map[time.Duration]int{time.Second: 50}
	}
	if out.Sink == nil {
		out.Sink = noopSink{}
	}
	return out
}

type noopSink struct{}

func (noopSink) Send(diag.Message) {}

// miniJob is a microbatch.Job: the processor fills resp/err by reference,
// and the caller learns about it via the JobResult's Wait.
type miniJob struct {
	req  MiniRequest
	resp MiniResponse
	err  error
}

type batchKey struct {
	dest     Destination
	priority Priority
}

// Manager batches, dispatches, retries and deduplicates mini-requests.
type Manager struct {
	integration ChannelIntegration
	cfg         Config
	limiter     *catrate.Limiter

	batchersMu sync.Mutex
	batchers   map[batchKey]*microbatch.Batcher[*miniJob]

	inflightMu sync.Mutex
	inflight   map[string]*promise.FusePromise[miniResult]

	pendingMu sync.Mutex
	pending   map[MessageID]*promise.PromiseFuture[MiniResponse]
}

type miniResult struct {
	resp MiniResponse
	err  error
}

// NewManager builds a Manager dispatching through integration.
func NewManager(integration ChannelIntegration, cfg *Config) *Manager {
	c := cfg.withDefaults()
	return &Manager{
		integration: integration,
		cfg:         c,
		limiter:     catrate.NewLimiter(c.MetricRates),
		batchers:    make(map[batchKey]*microbatch.Batcher[*miniJob]),
		inflight:    make(map[string]*promise.FusePromise[miniResult]),
		pending:     make(map[MessageID]*promise.PromiseFuture[MiniResponse]),
	}
}

// AwaitPush registers id as awaiting a response that will arrive via
// Listen rather than as a direct Sender.Send return value, for channel
// integrations that push responses asynchronously.
func (m *Manager) AwaitPush(id MessageID) *promise.PromiseFuture[MiniResponse] {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if f, ok := m.pending[id]; ok {
		return f
	}
	f := promise.NewFuture[MiniResponse]()
	m.pending[id] = f
	return f
}

// Listen drains a push-style transport's incoming MaxiResponses in bounded
// partial batches — using go-longpoll so a connection delivering responses
// in small bursts neither blocks forever waiting for a full batch nor
// wakes this Manager once per single mini-response — and resolves any
// matching promises registered via AwaitPush. It returns when ch closes or
// ctx is cancelled.
func (m *Manager) Listen(ctx context.Context, ch <-chan MaxiResponse, cfg *longpoll.ChannelConfig) error {
	for {
		err := longpoll.Channel(ctx, cfg, ch, func(resp MaxiResponse) error {
			for _, mr := range resp.Minis {
				m.pendingMu.Lock()
				f, ok := m.pending[mr.ID]
				if ok {
					delete(m.pending, mr.ID)
				}
				m.pendingMu.Unlock()
				if ok {
					_ = f.Satisfy(mr, nil)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
}

func (m *Manager) batcherFor(key batchKey) *microbatch.Batcher[*miniJob] {
	m.batchersMu.Lock()
	defer m.batchersMu.Unlock()
	if b, ok := m.batchers[key]; ok {
		return b
	}
	flush := m.cfg.BatchWindow
	maxSize := m.cfg.MaxBatchSize
	if key.priority == RealTime {
		// RealTime packets send immediately: a batch of one, flushed as
		// soon as it forms.
		maxSize = 1
		flush = time.Millisecond
	}
	b := microbatch.NewBatcher[*miniJob](&microbatch.BatcherConfig{
		MaxSize:       maxSize,
		FlushInterval: flush,
	}, func(ctx context.Context, jobs []*miniJob) error {
		m.sendBatch(ctx, key, jobs)
		return nil
	})
	m.batchers[key] = b
	return b
}

func (m *Manager) sendBatch(ctx context.Context, key batchKey, jobs []*miniJob) {
	sender, err := m.integration.SenderFor(key.dest)
	if err != nil {
		for _, j := range jobs {
			j.err = diag.Wrap(diag.NoSuch, diag.Code{Namespace: "reqmgr", Number: 1}, err, "no sender for destination %s", key.dest)
		}
		return
	}

	req := MaxiRequest{Destination: key.dest, Minis: make([]MiniRequest, len(jobs))}
	for i, j := range jobs {
		req.Minis[i] = j.req
	}

	resp, err := sender.Send(ctx, key.priority, req)
	if err != nil {
		for _, j := range jobs {
			j.err = diag.Wrap(diag.Temporary, diag.Code{Namespace: "reqmgr", Number: 2}, err, "send to %s failed", key.dest)
		}
		return
	}

	byID := make(map[MessageID]MiniResponse, len(resp.Minis))
	for _, mr := range resp.Minis {
		byID[mr.ID] = mr
	}
	for _, j := range jobs {
		if mr, ok := byID[j.req.ID]; ok {
			j.resp = mr
		} else {
			j.err = diag.New(diag.Operational, diag.Code{Namespace: "reqmgr", Number: 3}, "no response for mini-request %d", j.req.ID)
		}
	}
}

// Dispatch sends req, retrying on GeneralFailure per the backoff schedule,
// deduplicating concurrent identical in-flight requests, and rate-limiting
// Metric traffic. Unavailable responses are never retried; Unexpected
// responses abort with a Fatal error.
func (m *Manager) Dispatch(ctx context.Context, req MiniRequest) (MiniResponse, error) {
	if req.Kind == Metric {
		if _, ok := m.limiter.Allow(req.Destination); !ok {
			// Fire-and-forget: a throttled metric is simply dropped.
			return MiniResponse{Status: Success}, nil
		}
	}

	key := req.DedupKey()
	m.inflightMu.Lock()
	if fuse, ok := m.inflight[key]; ok {
		m.inflightMu.Unlock()
		r, err := fuse.Await()
		return r.resp, err
	}
	fuse := promise.NewFuse[miniResult]()
	m.inflight[key] = fuse
	m.inflightMu.Unlock()

	resp, err := m.dispatchWithBackoff(ctx, req)

	m.inflightMu.Lock()
	delete(m.inflight, key)
	m.inflightMu.Unlock()

	fuse.Satisfy(miniResult{resp, err}, nil)
	return resp, err
}

func (m *Manager) dispatchWithBackoff(ctx context.Context, req MiniRequest) (MiniResponse, error) {
	var lastMsg string
	schedule := m.cfg.Backoff

	for attempt := 0; attempt < len(schedule); attempt++ {
		if schedule[attempt] > 0 {
			t := time.NewTimer(schedule[attempt])
			select {
			case <-ctx.Done():
				t.Stop()
				return MiniResponse{}, ctx.Err()
			case <-t.C:
			}
		}

		resp, err := m.submit(ctx, req)
		if err != nil {
			return MiniResponse{}, err
		}

		switch resp.Status {
		case Success:
			return resp, nil
		case Unavailable:
			// Never retried: the refusal carries a call-to-action only
			// the host can act on.
			return resp, nil
		case GeneralFailure:
			lastMsg = resp.Message
			m.cfg.Sink.Send(diag.Message{Kind: diag.Temporary, Text: fmt.Sprintf("retrying mini-request %d: %s", req.ID, resp.Message), Identity: uint64(req.ID)})
			continue
		default:
			// Unexpected, or a status this client does not recognize: a
			// protocol violation, never retried.
			return MiniResponse{}, diag.New(diag.Fatal, diag.Code{Namespace: "reqmgr", Number: 6}, "unexpected response to mini-request %d: %s", req.ID, resp.Message)
		}
	}

	return MiniResponse{}, diag.New(diag.Operational, diag.Code{Namespace: "reqmgr", Number: 4}, "BackendRefused: %s", lastMsg)
}

func (m *Manager) submit(ctx context.Context, req MiniRequest) (MiniResponse, error) {
	b := m.batcherFor(batchKey{dest: req.Destination, priority: req.Priority})
	job := &miniJob{req: req}
	jr, err := b.Submit(ctx, job)
	if err != nil {
		return MiniResponse{}, diag.Wrap(diag.Operational, diag.Code{Namespace: "reqmgr", Number: 5}, err, "submit mini-request %d", req.ID)
	}
	if err := jr.Wait(ctx); err != nil {
		return MiniResponse{}, err
	}
	if job.err != nil {
		return MiniResponse{}, job.err
	}
	return job.resp, nil
}

// Shutdown closes every per-destination batcher this Manager created.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.batchersMu.Lock()
	defer m.batchersMu.Unlock()
	for _, b := range m.batchers {
		if err := b.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
