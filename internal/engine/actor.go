package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketsim.com/internal/market"
	"marketsim.com/internal/matching"
	"marketsim.com/pkg/logger"
	"marketsim.com/pkg/metrics"
	"marketsim.com/pkg/xerr"
)

var tracer = otel.Tracer("marketsim.com/internal/engine")

type ActorConfig struct {
	MailboxSize int     // mailbox 容量
	BatchMax    int     // 一轮最多处理多少条
	RateLimit   float64 // 每秒准入的命令数，<=0 不限流
	RateBurst   int
}

// Actor 单写者：所有写命令进 mailbox，由 Run 协程按顺序执行
type Actor struct {
	mk      Market
	in      chan Command
	cfg     ActorConfig
	sink    EventSink
	limiter *rate.Limiter
	onBatch func() // 每批命令执行完回调，用来刷 gauge

	seq  uint64 // 命令序号，只在 Run 协程里改
	reqs atomic.Uint64

	mailboxFull atomic.Uint64
	eventsDrop  atomic.Uint64
	done        chan struct{}
}

type ActorOption func(*Actor)

// WithBatchHook runs fn on the actor goroutine after every drained batch.
func WithBatchHook(fn func()) ActorOption {
	return func(a *Actor) { a.onBatch = fn }
}

func NewActor(mk Market, sink EventSink, cfg ActorConfig, opts ...ActorOption) *Actor {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	if sink == nil {
		sink = noopSink{}
	}
	a := &Actor{
		mk:   mk,
		in:   make(chan Command, cfg.MailboxSize),
		cfg:  cfg,
		sink: sink,
		done: make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = max(1, int(cfg.RateLimit))
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TryEnqueue 非阻塞入队；限流返回 ErrRateLimited，mailbox 满返回 ErrEngineBusy
func (a *Actor) TryEnqueue(cmd Command) error {
	if cmd.Type != CmdPlace && cmd.Type != CmdCancel {
		return ErrBadCommand
	}
	if a.limiter != nil && !a.limiter.Allow() {
		metrics.RateLimitedTotal.Inc()
		return ErrRateLimited
	}
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	if cmd.ReqID == 0 {
		cmd.ReqID = a.reqs.Add(1)
	}
	select {
	case a.in <- cmd:
		return nil
	default:
		a.mailboxFull.Add(1)
		metrics.MailboxFullTotal.Inc()
		return ErrEngineBusy
	}
}

// Place 下单并等待结果
func (a *Actor) Place(ctx context.Context, side matching.Side, price matching.Price, qty int64) (market.PlacementOutcome, error) {
	ctx, span := tracer.Start(ctx, "engine.place", trace.WithAttributes(
		attribute.String("order.side", side.String()),
		attribute.String("order.price", price.String()),
		attribute.Int64("order.qty", qty),
	))
	defer span.End()

	res, err := a.request(ctx, Command{Type: CmdPlace, Side: side, Price: price, Qty: qty})
	if err == nil {
		err = res.Err
	}
	if err != nil {
		failSpan(span, err)
		return market.PlacementOutcome{}, err
	}
	out := res.Outcome
	span.SetAttributes(
		attribute.Int64("order.id", int64(out.OrderID)),
		attribute.Int("order.fills", len(out.Fills)),
		attribute.Int64("order.dropped_qty", out.DroppedQty),
	)
	return out, nil
}

// Cancel 撤单并等待结果；订单不存在返回 false，不是错误
func (a *Actor) Cancel(ctx context.Context, orderID uint64) (matching.Order, bool, error) {
	ctx, span := tracer.Start(ctx, "engine.cancel", trace.WithAttributes(
		attribute.Int64("order.id", int64(orderID)),
	))
	defer span.End()

	res, err := a.request(ctx, Command{Type: CmdCancel, CancelOrderID: orderID})
	if err == nil {
		err = res.Err
	}
	if err != nil {
		failSpan(span, err)
		return matching.Order{}, false, err
	}
	span.SetAttributes(attribute.Bool("order.found", res.Cancelled != nil))
	if res.Cancelled == nil {
		return matching.Order{}, false, nil
	}
	return *res.Cancelled, true, nil
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Int("error.code", xerr.CodeOf(err)))
}

func (a *Actor) request(ctx context.Context, cmd Command) (Result, error) {
	cmd.reply = make(chan Result, 1)
	cmd.TraceID = logger.TraceID(ctx)
	if cmd.ReqID == 0 {
		cmd.ReqID = a.reqs.Add(1)
	}
	if err := a.TryEnqueue(cmd); err != nil {
		return Result{}, err
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-a.done:
		// Run 退出前可能刚好回了结果
		select {
		case res := <-cmd.reply:
			return res, nil
		default:
			return Result{}, ErrStopped
		}
	}
}

func (a *Actor) MailboxFull() uint64   { return a.mailboxFull.Load() }
func (a *Actor) EventsDropped() uint64 { return a.eventsDrop.Load() }
func (a *Actor) Done() <-chan struct{} { return a.done }

// Run 先阻塞拿 1 条，再非阻塞尽量多拿，凑成一批执行。ctx 取消后退出。
func (a *Actor) Run(ctx context.Context) {
	logger.Info(ctx, "engine actor started",
		zap.Int("mailbox", a.cfg.MailboxSize), zap.Int("batch_max", a.cfg.BatchMax))
	defer func() {
		close(a.done)
		a.drainStopped()
		logger.Info(ctx, "engine actor stopped", zap.Uint64("last_seq", a.seq))
	}()

	// 复用 batch slice，避免每轮分配
	batch := make([]Command, 0, a.cfg.BatchMax)
	for {
		var first Command
		select {
		case <-ctx.Done():
			return
		case first = <-a.in:
		}

		batch = batch[:0]
		batch = append(batch, first)
	fill:
		for len(batch) < a.cfg.BatchMax {
			select {
			case cmd := <-a.in:
				batch = append(batch, cmd)
			default:
				break fill
			}
		}

		for i := range batch {
			a.seq++
			res := a.apply(ctx, batch[i], a.seq)
			if batch[i].reply != nil {
				batch[i].reply <- res
			}
			batch[i] = Command{} // 释放 reply chan
		}
		if a.onBatch != nil {
			a.onBatch()
		}
	}
}

// drainStopped 退出后把 mailbox 里剩下的命令都回 ErrStopped
func (a *Actor) drainStopped() {
	for {
		select {
		case cmd := <-a.in:
			if cmd.reply != nil {
				cmd.reply <- Result{ReqID: cmd.ReqID, Err: ErrStopped}
			}
		default:
			return
		}
	}
}

func (a *Actor) apply(ctx context.Context, cmd Command, seq uint64) Result {
	emit := &sinkEmitter{sink: a.sink, seq: seq, dropped: &a.eventsDrop}
	res := Result{ReqID: cmd.ReqID}
	if cmd.TraceID != "" {
		ctx = logger.WithTrace(ctx, cmd.TraceID)
	}

	switch cmd.Type {
	case CmdPlace:
		out, err := a.mk.PlaceOrder(cmd.Side, cmd.Price, cmd.Qty)
		if err != nil {
			emit.Rejected(cmd.ReqID, 0, cmd.Side, xerr.CodeOf(err), err.Error())
			logger.Debug(ctx, "order rejected",
				zap.Uint64("req_id", cmd.ReqID), zap.Stringer("side", cmd.Side),
				zap.Stringer("price", cmd.Price), zap.Int64("qty", cmd.Qty), zap.Error(err))
			res.Err = err
			return res
		}
		emit.Accepted(cmd.ReqID, out.OrderID, cmd.Side, cmd.Price, cmd.Qty)
		for _, t := range out.Fills {
			emit.Trade(cmd.ReqID, t)
		}
		if out.Resting != nil {
			emit.Added(cmd.ReqID, *out.Resting)
		}
		if out.DroppedQty > 0 {
			emit.Dropped(cmd.ReqID, out.OrderID, cmd.Side, out.DroppedQty)
			logger.Info(ctx, "remainder dropped to keep minimum spread",
				zap.Uint64("order_id", out.OrderID), zap.Int64("qty", out.DroppedQty))
		}
		res.Outcome = out

	case CmdCancel:
		o, ok := a.mk.RemoveOrder(cmd.CancelOrderID)
		if !ok {
			emit.Rejected(cmd.ReqID, cmd.CancelOrderID, 0, xerr.NotFound, "order not found")
			return res
		}
		emit.Cancelled(cmd.ReqID, o)
		res.Cancelled = &o

	default:
		res.Err = ErrBadCommand
	}
	return res
}

// IsBackpressure 是否是可重试的准入失败
func IsBackpressure(err error) bool {
	return errors.Is(err, ErrEngineBusy) || errors.Is(err, ErrRateLimited)
}
