package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketsim.com/internal/engine"
	"marketsim.com/internal/kline"
	"marketsim.com/internal/market"
	"marketsim.com/internal/matching"
	"marketsim.com/pkg/logger"
	"marketsim.com/pkg/safe"
)

// Exchange CLI 背后的交易接口，*engine.Engine 满足它
type Exchange interface {
	Place(ctx context.Context, side matching.Side, price matching.Price, qty int64) (market.PlacementOutcome, error)
	Cancel(ctx context.Context, orderID uint64) (matching.Order, bool, error)
	Status() market.MarketStatus
	Depth(levels int) (bids, asks []matching.Level)
	RecentTrades(n int) []matching.Trade
	TradeHistory() []matching.Trade
	Order(orderID uint64) (matching.Order, bool)
}

// Seed 启动时预挂的订单，来自配置
type Seed struct {
	Side  string `mapstructure:"side"`
	Price string `mapstructure:"price"`
	Qty   int64  `mapstructure:"qty"`
}

type Shell struct {
	ex        Exchange
	in        io.Reader
	out       io.Writer
	minSpread decimal.Decimal
	prompt    string
	traceID   func() string
}

type Option func(*Shell)

func WithPrompt(p string) Option { return func(s *Shell) { s.prompt = p } }

// WithTraceIDs replaces the per-command trace id generator.
func WithTraceIDs(fn func() string) Option {
	return func(s *Shell) {
		if fn != nil {
			s.traceID = fn
		}
	}
}

func New(ex Exchange, in io.Reader, out io.Writer, minSpread decimal.Decimal, opts ...Option) *Shell {
	s := &Shell{
		ex:        ex,
		in:        in,
		out:       out,
		minSpread: minSpread,
		prompt:    "> ",
		traceID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Shell) Banner() { writeBanner(s.out, s.minSpread) }

// Seed 挂初始订单；单条失败只提示，不中断启动
func (s *Shell) Seed(ctx context.Context, seeds []Seed) error {
	if len(seeds) == 0 {
		return nil
	}
	fmt.Fprintln(s.out, "Adding some initial orders...")
	for i, sd := range seeds {
		side, err := matching.ParseSide(sd.Side)
		if err != nil {
			return fmt.Errorf("seed #%d: %w", i, err)
		}
		price, err := matching.ParsePrice(sd.Price)
		if err != nil {
			return fmt.Errorf("seed #%d: %w", i, err)
		}
		out, err := s.ex.Place(ctx, side, price, sd.Qty)
		if err != nil {
			if isEngineErr(err) {
				return fmt.Errorf("seed #%d: %w", i, err)
			}
			fmt.Fprintf(s.out, "Skipped initial %s order %d@%s: %s\n", side, sd.Qty, price, userMessage(err))
			logger.Warn(ctx, "seed order rejected", zap.Int("index", i), zap.Error(err))
			continue
		}
		fmt.Fprintf(s.out, "Placed initial %s order: %d shares at $%s (ID: %d)\n",
			sideWord(side), sd.Qty, price, out.OrderID)
	}
	return nil
}

// Run 读命令直到 quit、输入结束或 ctx 取消
func (s *Shell) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	safe.GoCtx(ctx, "cli-reader", func(ctx context.Context) {
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	})

	for {
		fmt.Fprint(s.out, s.prompt)
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case err := <-readErr:
			fmt.Fprintln(s.out)
			return err
		case line := <-lines:
			if quit := s.Exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// Exec 执行一行命令，返回是否退出
func (s *Shell) Exec(ctx context.Context, line string) (quit bool) {
	cmd, err := Parse(line)
	if errors.Is(err, ErrEmpty) {
		return false
	}
	if err != nil {
		fmt.Fprintln(s.out, err.Error())
		return false
	}

	ctx = logger.WithTrace(ctx, s.traceID())
	logger.Debug(ctx, "cli command", zap.String("line", line))

	switch cmd.Kind {
	case KindQuit:
		fmt.Fprintln(s.out, "Goodbye!")
		return true

	case KindHelp:
		writeHelp(s.out)

	case KindPlace:
		out, err := s.ex.Place(ctx, cmd.Side, cmd.Price, cmd.Qty)
		if err != nil {
			s.fail(ctx, err)
			return false
		}
		writePlacement(s.out, cmd.Side, cmd.Price, cmd.Qty, out, s.minSpread)
		logger.Info(ctx, "order placed",
			zap.Uint64("order_id", out.OrderID), zap.Stringer("side", cmd.Side),
			zap.Stringer("price", cmd.Price), zap.Int64("qty", cmd.Qty),
			zap.Int("fills", len(out.Fills)), zap.Int64("dropped", out.DroppedQty))

	case KindCancel:
		o, ok, err := s.ex.Cancel(ctx, cmd.OrderID)
		if err != nil {
			s.fail(ctx, err)
			return false
		}
		if !ok {
			fmt.Fprintf(s.out, "Order %d not found\n", cmd.OrderID)
			return false
		}
		writeCancelled(s.out, o)
		logger.Info(ctx, "order cancelled", zap.Uint64("order_id", o.ID))

	case KindOrder:
		o, ok := s.ex.Order(cmd.OrderID)
		if !ok {
			fmt.Fprintf(s.out, "Order %d not found\n", cmd.OrderID)
			return false
		}
		writeOrder(s.out, o)

	case KindStatus:
		bids, asks := s.ex.Depth(statusDepthLevels)
		writeStatus(s.out, s.ex.Status(), bids, asks, s.ex.RecentTrades(statusRecentTrades))

	case KindDepth:
		bids, asks := s.ex.Depth(cmd.N)
		writeDepth(s.out, bids, asks)

	case KindTrades:
		trades := s.ex.RecentTrades(cmd.N)
		if cmd.JSON {
			if err := writeTradesJSON(s.out, trades); err != nil {
				s.fail(ctx, err)
			}
			return false
		}
		writeTrades(s.out, trades)

	case KindCandles:
		bars := kline.Build(s.ex.TradeHistory(), cmd.Interval, true)
		if len(bars) > cmd.N {
			bars = bars[len(bars)-cmd.N:]
		}
		writeCandles(s.out, bars)
	}
	return false
}

func (s *Shell) fail(ctx context.Context, err error) {
	fmt.Fprintf(s.out, "Error: %s\n", userMessage(err))
	if isEngineErr(err) {
		logger.Warn(ctx, "command not executed", zap.Error(err))
		return
	}
	logger.Info(ctx, "command rejected", zap.Error(err))
}

// isEngineErr 引擎层面的失败（忙、限流、已停止、超时），不是业务拒单
func isEngineErr(err error) bool {
	return engine.IsBackpressure(err) ||
		errors.Is(err, engine.ErrStopped) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func sideWord(s matching.Side) string {
	if s == matching.Buy {
		return "buy"
	}
	return "sell"
}
