package colony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"antcolony.ai/internal/persistence/snapshot"
)

// RuntimeConfig holds the host-side settings that do not affect the simulation itself.
type RuntimeConfig struct {
	ID         string
	TickRateHz int

	// SnapshotEveryTicks sends a snapshot to the sink every N ticks of a run. 0 disables.
	SnapshotEveryTicks int
	// FieldEveryTicks is the default FIELD frame cadence for observers.
	FieldEveryTicks int

	StatsBucketTicks uint64
	StatsWindowTicks uint64

	// FirstRun numbers the initial run; each reset starts the next one.
	FirstRun uint64
}

func (c *RuntimeConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "colony_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.FieldEveryTicks <= 0 {
		c.FieldEveryTicks = 10
	}
	if c.StatsBucketTicks == 0 {
		c.StatsBucketTicks = 100
	}
	if c.StatsWindowTicks == 0 {
		c.StatsWindowTicks = 1000
	}
	if c.FirstRun == 0 {
		c.FirstRun = 1
	}
}

// Runtime hosts an Engine on a single loop goroutine. Other goroutines talk to it through
// request channels; requests are applied at tick boundaries.
type Runtime struct {
	cfg RuntimeConfig
	log *log.Logger

	eng   *Engine
	stats *Stats

	run        atomic.Uint64
	tick       atomic.Uint64
	resetTotal int

	// startPending marks that the next tick log entry opens a run.
	startPending bool
	// recorded holds replayable requests not yet written to the tick log.
	recorded []RecordedRequest

	paused     bool
	pausedView atomic.Bool

	// cfgView is the engine config as last published by the loop goroutine.
	cfgView atomic.Value

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	observers map[string]*observerClient

	stop     chan struct{}
	stopOnce sync.Once

	control       chan ControlRequest
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string

	metrics atomic.Value
}

func NewRuntime(rc RuntimeConfig, cfg Config, logger *log.Logger) (*Runtime, error) {
	rc.applyDefaults()
	eng, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Runtime{
		cfg:           rc,
		log:           logger,
		eng:           eng,
		stats:         NewStats(rc.StatsBucketTicks, rc.StatsWindowTicks),
		startPending:  true,
		observers:     map[string]*observerClient{},
		stop:          make(chan struct{}),
		control:       make(chan ControlRequest, 64),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
	}
	r.run.Store(rc.FirstRun)
	r.cfgView.Store(eng.Config())
	return r, nil
}

func (r *Runtime) SetTickLogger(l TickLogger)                    { r.tickLogger = l }
func (r *Runtime) SetAuditLogger(l AuditLogger)                  { r.auditLogger = l }
func (r *Runtime) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { r.snapshotSink = ch }

func (r *Runtime) ObserverJoin() chan<- ObserverJoinRequest           { return r.observerJoin }
func (r *Runtime) ObserverSubscribe() chan<- ObserverSubscribeRequest { return r.observerSub }
func (r *Runtime) ObserverLeave() chan<- string                       { return r.observerLeave }

func (r *Runtime) ID() string {
	if r == nil {
		return ""
	}
	return r.cfg.ID
}

func (r *Runtime) TickRateHz() int {
	if r == nil {
		return 0
	}
	return r.cfg.TickRateHz
}

func (r *Runtime) FieldEveryTicks() int { return r.cfg.FieldEveryTicks }

// CurrentRun and CurrentTick are safe to call from any goroutine.
func (r *Runtime) CurrentRun() uint64  { return r.run.Load() }
func (r *Runtime) CurrentTick() uint64 { return r.tick.Load() }

// Paused reports whether stepping is suspended. Safe to call from any goroutine.
func (r *Runtime) Paused() bool { return r.pausedView.Load() }

// Config returns the engine config as of the last applied request.
func (r *Runtime) Config() Config {
	v, _ := r.cfgView.Load().(Config)
	return v
}

// Engine exposes the hosted engine. Only use it from the loop goroutine or before Run.
func (r *Runtime) Engine() *Engine { return r.eng }

// ControlRequest changes the colony between ticks. Seed applies to KindReset;
// Speed and Follow to KindTune.
type ControlRequest struct {
	Kind   RequestKind
	Actor  string
	Seed   *int64
	Speed  *float64
	Follow *float64

	Resp chan ControlResponse
}

type ControlResponse struct {
	Run    uint64 `json:"run"`
	Tick   uint64 `json:"tick"`
	Paused bool   `json:"paused"`
	Err    string `json:"error,omitempty"`
}

// RequestReset starts a new run. A nil seed keeps the current one.
func (r *Runtime) RequestReset(ctx context.Context, seed *int64) (ControlResponse, error) {
	return r.submit(ctx, ControlRequest{Kind: KindReset, Actor: "ADMIN", Seed: seed})
}

func (r *Runtime) RequestRelocateFood(ctx context.Context) (ControlResponse, error) {
	return r.submit(ctx, ControlRequest{Kind: KindRelocate, Actor: "ADMIN"})
}

func (r *Runtime) RequestTune(ctx context.Context, speed, follow *float64) (ControlResponse, error) {
	if speed == nil && follow == nil {
		return ControlResponse{}, errors.New("tune: nothing to change")
	}
	return r.submit(ctx, ControlRequest{Kind: KindTune, Actor: "ADMIN", Speed: speed, Follow: follow})
}

// RequestPause stops stepping at the next tick boundary. Control requests and observers
// are still served while paused.
func (r *Runtime) RequestPause(ctx context.Context) (ControlResponse, error) {
	return r.submit(ctx, ControlRequest{Kind: KindPause, Actor: "ADMIN"})
}

func (r *Runtime) RequestResume(ctx context.Context) (ControlResponse, error) {
	return r.submit(ctx, ControlRequest{Kind: KindResume, Actor: "ADMIN"})
}

// RequestSnapshot asks the loop goroutine to enqueue a snapshot after the next tick.
func (r *Runtime) RequestSnapshot(ctx context.Context) (ControlResponse, error) {
	return r.submit(ctx, ControlRequest{Kind: KindSnapshot, Actor: "ADMIN"})
}

func (r *Runtime) submit(ctx context.Context, req ControlRequest) (ControlResponse, error) {
	if r == nil {
		return ControlResponse{}, errors.New("colony runtime not available")
	}
	req.Resp = make(chan ControlResponse, 1)
	select {
	case r.control <- req:
	case <-ctx.Done():
		return ControlResponse{}, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		if resp.Err != "" {
			return resp, errors.New(resp.Err)
		}
		return resp, nil
	case <-ctx.Done():
		return ControlResponse{}, fmt.Errorf("%s: %w", req.Kind, ctx.Err())
	}
}

func reply(req ControlRequest, resp ControlResponse) {
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- resp:
	default:
		// Caller gave up; don't block the loop.
	}
}
