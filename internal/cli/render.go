package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"

	"marketsim.com/internal/kline"
	"marketsim.com/internal/market"
	"marketsim.com/internal/matching"
	"marketsim.com/pkg/xerr"
)

const (
	statusDepthLevels  = 5
	statusRecentTrades = 3
	timeLayout         = "2006-01-02 15:04:05.000"
)

func writeHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  buy <price> <quantity>\tPlace buy limit order")
	fmt.Fprintln(tw, "  sell <price> <quantity>\tPlace sell limit order")
	fmt.Fprintln(tw, "  cancel <order_id>\tCancel order")
	fmt.Fprintln(tw, "  order <order_id>\tShow a resting order")
	fmt.Fprintln(tw, "  status\tShow market status")
	fmt.Fprintln(tw, "  depth [levels]\tShow order book depth (default 5)")
	fmt.Fprintln(tw, "  trades [n] [json]\tShow recent trades, newest first (default 10)")
	fmt.Fprintln(tw, "  candles [interval] [n]\tShow the last n OHLCV bars (default 1m, 10)")
	fmt.Fprintln(tw, "  help\tShow this help")
	fmt.Fprintln(tw, "  quit | exit\tExit")
	_ = tw.Flush()
}

func writeBanner(w io.Writer, minSpread decimal.Decimal) {
	fmt.Fprintln(w, "=== Market Simulator ===")
	fmt.Fprintf(w, "Minimum spread: %s%%\n", minSpread.String())
	writeHelp(w)
	fmt.Fprintln(w)
}

func writePlacement(w io.Writer, side matching.Side, price matching.Price, qty int64, out market.PlacementOutcome, minSpread decimal.Decimal) {
	fmt.Fprintf(w, "%s order placed: %d shares at $%s (ID: %d)\n", sideTitle(side), qty, price, out.OrderID)
	for _, t := range out.Fills {
		fmt.Fprintf(w, "TRADE EXECUTED: %d shares at $%s (maker %d, taker %d)\n", t.Qty, t.Price, t.MakerOrderID, t.TakerOrderID)
	}
	if out.Resting != nil && len(out.Fills) > 0 {
		fmt.Fprintf(w, "Remaining %d shares resting at $%s\n", out.Resting.Qty, out.Resting.Price)
	}
	if out.DroppedQty > 0 {
		fmt.Fprintf(w, "Dropped %d unfilled shares: resting them would break the %s%% minimum spread\n", out.DroppedQty, minSpread.String())
	}
}

func writeCancelled(w io.Writer, o matching.Order) {
	fmt.Fprintf(w, "Cancelled order %d: %s %d/%d shares at $%s\n", o.ID, o.Side, o.Qty, o.OrigQty, o.Price)
}

func writeOrder(w io.Writer, o matching.Order) {
	fmt.Fprintf(w, "Order %d: %s %d/%d shares at $%s, %s, placed %s\n",
		o.ID, o.Side, o.Qty, o.OrigQty, o.Price, o.Status(), o.CreatedAt.Format(timeLayout))
}

func writeStatus(w io.Writer, st market.MarketStatus, bids, asks []matching.Level, recent []matching.Trade) {
	fmt.Fprintln(w, "\n=== MARKET STATUS ===")
	if !st.HasBid && !st.HasAsk {
		fmt.Fprintln(w, "No active orders in the book")
	} else {
		fmt.Fprintf(w, "Best Bid: %s\n", optPrice(st.BestBid, st.HasBid))
		fmt.Fprintf(w, "Best Ask: %s\n", optPrice(st.BestAsk, st.HasAsk))
		if st.HasSpread {
			fmt.Fprintf(w, "Spread: $%s\n", st.Spread)
			fmt.Fprintf(w, "Spread %%: %s%%\n", st.SpreadPercent.StringFixed(2))
		}
	}

	fmt.Fprintf(w, "\nMarket Depth (Top %d levels):\n", statusDepthLevels)
	writeDepth(w, bids, asks)

	if len(recent) > 0 {
		fmt.Fprintln(w, "\nRecent Trades:")
		for _, t := range recent {
			fmt.Fprintf(w, "Price: $%s, Quantity: %d, Time: %s\n", t.Price, t.Qty, t.Time.Format(timeLayout))
		}
	}
	fmt.Fprintln(w, "====================")
}

// writeDepth 买卖两侧并排
func writeDepth(w io.Writer, bids, asks []matching.Level) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BID QTY\tBID\t|\tASK\tASK QTY")
	for i := 0; i < max(len(bids), len(asks)); i++ {
		var bq, bp, ap, aq string
		if i < len(bids) {
			bq, bp = fmt.Sprint(bids[i].Qty), bids[i].Price.String()
		}
		if i < len(asks) {
			ap, aq = asks[i].Price.String(), fmt.Sprint(asks[i].Qty)
		}
		fmt.Fprintf(tw, "%s\t%s\t|\t%s\t%s\n", bq, bp, ap, aq)
	}
	_ = tw.Flush()
}

func writeTrades(w io.Writer, trades []matching.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(w, "No trades yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tPRICE\tQTY\tBUY\tSELL")
	for _, t := range trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n", t.ID, t.Time.Format(timeLayout), t.Price, t.Qty, t.BuyOrderID, t.SellOrderID)
	}
	_ = tw.Flush()
}

func writeCandles(w io.Writer, bars []kline.Bar) {
	if len(bars) == 0 {
		fmt.Fprintln(w, "No trades yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\tTRADES")
	for _, b := range bars {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			b.Start().Format(timeLayout), b.Open, b.High, b.Low, b.Close, b.Volume, b.Count)
	}
	_ = tw.Flush()
}

type tradeJSON struct {
	ID          uint64         `json:"id"`
	BuyOrderID  uint64         `json:"buy_order_id"`
	SellOrderID uint64         `json:"sell_order_id"`
	Maker       uint64         `json:"maker_order_id"`
	Price       matching.Price `json:"price"`
	Qty         int64          `json:"qty"`
	Time        string         `json:"time"`
}

func writeTradesJSON(w io.Writer, trades []matching.Trade) error {
	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeJSON{
			ID: t.ID, BuyOrderID: t.BuyOrderID, SellOrderID: t.SellOrderID, Maker: t.MakerOrderID,
			Price: t.Price, Qty: t.Qty, Time: t.Time.UTC().Format(time.RFC3339Nano),
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// userMessage 去掉错误码前缀，只留给人看的部分
func userMessage(err error) string {
	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		return ce.Msg + strings.TrimPrefix(err.Error(), ce.Error())
	}
	return err.Error()
}

func optPrice(p matching.Price, ok bool) string {
	if !ok {
		return "-"
	}
	return "$" + p.String()
}

func sideTitle(s matching.Side) string {
	if s == matching.Buy {
		return "Buy"
	}
	return "Sell"
}
