package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"exchange-core/internal/account"
	"exchange-core/internal/matching"
	"exchange-core/internal/symbolspec"
)

// ErrAlreadyStarted is returned by Subscribe once the engine runs.
var ErrAlreadyStarted = errors.New("engine already started")

// Engine is the single entry point of the core. Submit assigns each command
// the next sequence number and queues it; one processor goroutine applies
// commands strictly in that order and hands the output to one publisher
// goroutine, which notifies subscribers and then resolves the caller's Future.
type Engine struct {
	cfg     Config
	log     *zap.Logger
	metrics Metrics
	now     func() time.Time

	queue   chan *commandRequest
	outputs chan *delivery

	submitMu    sync.Mutex
	seq         int64
	started     bool
	stopped     bool
	subscribers []Subscriber
	wg          sync.WaitGroup

	// Owned by the processor goroutine.
	registry *symbolspec.Registry
	ledger   *account.Ledger
	books    map[int32]*matching.OrderBook
	halted   error
}

// commandRequest wraps a sequenced command with its pending result
type commandRequest struct {
	seq         int64
	cmd         Command
	future      *Future
	submittedAt time.Time
}

type delivery struct {
	out    *Output
	future *Future
}

// NewEngine creates a new engine with the given configuration
func NewEngine(cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.normalize()

	e := &Engine{
		cfg:      c,
		log:      zap.NewNop(),
		metrics:  noopMetrics{},
		now:      time.Now,
		queue:    make(chan *commandRequest, c.QueueSize),
		outputs:  make(chan *delivery, c.PublishQueueSize),
		registry: symbolspec.NewRegistry(),
		ledger:   account.NewLedger(account.WithNegativeAdjustments(c.AllowNegativeAdjustments)),
		books:    make(map[int32]*matching.OrderBook),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers s to receive every output in sequence order.
// Subscribers must be registered before Start.
func (e *Engine) Subscribe(s Subscriber) error {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.subscribers = append(e.subscribers, s)
	return nil
}

// Start launches the processor and publisher goroutines.
func (e *Engine) Start() {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	e.startLocked()
}

func (e *Engine) startLocked() {
	if e.started {
		return
	}
	e.started = true
	subs := append([]Subscriber(nil), e.subscribers...)

	e.wg.Add(2)
	go e.processLoop()
	go e.publishLoop(subs)
	e.log.Info("engine started",
		zap.Int("queue_size", e.cfg.QueueSize),
		zap.String("backpressure", string(e.cfg.Backpressure)),
		zap.Int("subscribers", len(subs)))
}

// Stop rejects new submissions, processes everything already sequenced and
// waits until every pending Future is resolved.
func (e *Engine) Stop() {
	e.submitMu.Lock()
	if e.stopped {
		e.submitMu.Unlock()
		return
	}
	e.startLocked()
	e.stopped = true
	close(e.queue)
	last := e.seq
	e.submitMu.Unlock()

	e.wg.Wait()
	e.log.Info("engine stopped", zap.Int64("last_sequence", last))
}

// Submit validates cmd, assigns it the next sequence number and queues it.
// Commands rejected here resolve immediately with sequence 0 and never
// consume a sequence number. In block mode Submit waits for queue space
// until ctx is done.
func (e *Engine) Submit(ctx context.Context, cmd Command) *Future {
	cmd, err := normalize(cmd)
	if err != nil {
		return resolvedFuture(CodeInvalidCommand, err)
	}
	if err = cmd.Validate(); err != nil {
		return resolvedFuture(codeFor(err), err)
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	if e.stopped {
		return resolvedFuture(CodeEngineStopped, ErrStopped)
	}

	req := &commandRequest{
		seq:         e.seq + 1,
		cmd:         cmd,
		submittedAt: e.now(),
	}
	req.future = newFuture(req.seq)

	select {
	case e.queue <- req:
	default:
		if e.cfg.Backpressure == BackpressureFailFast {
			e.metrics.BackpressureRejected()
			return resolvedFuture(CodeBackpressure, ErrBackpressure)
		}
		select {
		case e.queue <- req:
		case <-ctx.Done():
			e.metrics.BackpressureRejected()
			return resolvedFuture(CodeBackpressure, errors.Join(ErrBackpressure, ctx.Err()))
		}
	}

	e.seq = req.seq
	e.metrics.CommandSubmitted(string(cmd.Type()))
	e.metrics.QueueDepth(len(e.queue))
	return req.future
}

// SubmitAndWait submits cmd and waits for its result.
func (e *Engine) SubmitAndWait(ctx context.Context, cmd Command) (CommandResult, error) {
	return e.Submit(ctx, cmd).Wait(ctx)
}

// LastSequence returns the last sequence number handed out.
func (e *Engine) LastSequence() int64 {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	return e.seq
}
