package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketsim.com/internal/matching"
)

type Kind uint8

const (
	KindPlace Kind = iota + 1
	KindCancel
	KindStatus
	KindDepth
	KindTrades
	KindOrder
	KindCandles
	KindHelp
	KindQuit
)

const (
	defaultDepthLevels = 5
	defaultTradeCount  = 10
	defaultCandleCount = 10
	defaultInterval    = time.Minute
)

// Command 一行输入解析后的结果
type Command struct {
	Kind     Kind
	Side     matching.Side
	Price    matching.Price
	Qty      int64
	OrderID  uint64
	N        int  // depth 档数 / trades 条数 / candles 根数
	JSON     bool // trades json
	Interval time.Duration
}

// UsageError 参数个数或格式不对，Error() 就是给用户看的提示
type UsageError struct{ Msg string }

func (e *UsageError) Error() string { return e.Msg }

var ErrEmpty = errors.New("empty line")

func usage(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// Parse 解析一行命令，大小写不敏感
func Parse(line string) (Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, ErrEmpty
	}
	verb := strings.ToLower(parts[0])
	args := parts[1:]

	switch verb {
	case "buy", "sell":
		if len(args) != 2 {
			return Command{}, usage("Usage: %s <price> <quantity>", verb)
		}
		side, _ := matching.ParseSide(verb)
		price, err := matching.ParsePrice(args[0])
		if err != nil || price <= 0 {
			return Command{}, usage("Invalid price %q: must be a positive number with at most %d decimals", args[0], matching.PriceDecimals)
		}
		qty, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || qty <= 0 || qty > matching.MaxQty {
			return Command{}, usage("Invalid quantity %q: must be a positive integer up to %d", args[1], matching.MaxQty)
		}
		return Command{Kind: KindPlace, Side: side, Price: price, Qty: qty}, nil

	case "cancel":
		if len(args) != 1 {
			return Command{}, usage("Usage: cancel <order_id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindCancel, OrderID: id}, nil

	case "order":
		if len(args) != 1 {
			return Command{}, usage("Usage: order <order_id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindOrder, OrderID: id}, nil

	case "status":
		if len(args) != 0 {
			return Command{}, usage("Usage: status")
		}
		return Command{Kind: KindStatus}, nil

	case "depth":
		n, err := optionalCount(args, defaultDepthLevels, "Usage: depth [levels]")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindDepth, N: n}, nil

	case "trades":
		cmd := Command{Kind: KindTrades, N: defaultTradeCount}
		if len(args) > 0 && strings.EqualFold(args[len(args)-1], "json") {
			cmd.JSON = true
			args = args[:len(args)-1]
		}
		n, err := optionalCount(args, defaultTradeCount, "Usage: trades [n] [json]")
		if err != nil {
			return Command{}, err
		}
		cmd.N = n
		return cmd, nil

	case "candles":
		const msg = "Usage: candles [interval] [n]"
		cmd := Command{Kind: KindCandles, Interval: defaultInterval, N: defaultCandleCount}
		if len(args) > 2 {
			return Command{}, usage("%s", msg)
		}
		if len(args) > 0 {
			d, err := time.ParseDuration(args[0])
			if err != nil || d < time.Second {
				return Command{}, usage("%s (interval like 1s, 5m, 1h; at least 1s)", msg)
			}
			cmd.Interval = d
		}
		if len(args) == 2 {
			n, err := optionalCount(args[1:], defaultCandleCount, msg)
			if err != nil {
				return Command{}, err
			}
			cmd.N = n
		}
		return cmd, nil

	case "help", "?":
		return Command{Kind: KindHelp}, nil

	case "quit", "exit":
		return Command{Kind: KindQuit}, nil
	}
	return Command{}, usage("Unknown command %q. Type 'help' for available commands.", parts[0])
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, usage("Invalid order ID %q", s)
	}
	return id, nil
}

func optionalCount(args []string, def int, msg string) (int, error) {
	switch len(args) {
	case 0:
		return def, nil
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return 0, usage("%s (n must be a positive integer)", msg)
		}
		return n, nil
	default:
		return 0, usage("%s", msg)
	}
}
