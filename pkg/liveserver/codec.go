package liveserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pnl_engine/internal/core"
)

// Inbound frame types accepted on the feed endpoint.
const (
	FrameOrderRegister  = "order_register"
	FrameOrderReplace   = "order_replace"
	FrameExecution      = "execution"
	FrameLevel1         = "level1"
	FrameQuotes         = "quotes"
	FrameCandle         = "candle"
	FramePositionChange = "position_change"
	FrameReset          = "reset"
)

// frame is the wire envelope for inbound analytics messages.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type orderRegisterWire struct {
	TransactionID int64           `json:"transactionId"`
	SecurityID    string          `json:"securityId"`
	Portfolio     string          `json:"portfolio"`
	Side          string          `json:"side"`
	Volume        decimal.Decimal `json:"volume"`
}

type orderReplaceWire struct {
	TransactionID         int64           `json:"transactionId"`
	OriginalTransactionID int64           `json:"originalTransactionId"`
	SecurityID            string          `json:"securityId"`
	Portfolio             string          `json:"portfolio"`
	Side                  string          `json:"side"`
	Volume                decimal.Decimal `json:"volume"`
}

type executionWire struct {
	Class                 string           `json:"class"`
	TransactionID         int64            `json:"transactionId"`
	OriginalTransactionID int64            `json:"originalTransactionId"`
	SecurityID            string           `json:"securityId"`
	Portfolio             string           `json:"portfolio"`
	Side                  string           `json:"side"`
	OrderID               int64            `json:"orderId"`
	OrderStringID         string           `json:"orderStringId"`
	OrderState            string           `json:"orderState"`
	OrderVolume           *decimal.Decimal `json:"orderVolume"`
	Balance               *decimal.Decimal `json:"balance"`
	TradeID               int64            `json:"tradeId"`
	TradeStringID         string           `json:"tradeStringId"`
	TradePrice            *decimal.Decimal `json:"tradePrice"`
	TradeVolume           *decimal.Decimal `json:"tradeVolume"`
	ServerTime            time.Time        `json:"serverTime"`
}

type level1Wire struct {
	SecurityID     string           `json:"securityId"`
	PriceStep      *decimal.Decimal `json:"priceStep"`
	StepPrice      *decimal.Decimal `json:"stepPrice"`
	LotMultiplier  *decimal.Decimal `json:"lotMultiplier"`
	LastTradePrice *decimal.Decimal `json:"lastTradePrice"`
	BestBidPrice   *decimal.Decimal `json:"bestBidPrice"`
	BestAskPrice   *decimal.Decimal `json:"bestAskPrice"`
}

type quotesWire struct {
	SecurityID  string           `json:"securityId"`
	BestBid     *decimal.Decimal `json:"bestBid"`
	BestAsk     *decimal.Decimal `json:"bestAsk"`
	Incremental bool             `json:"incremental"`
}

type candleWire struct {
	SecurityID string          `json:"securityId"`
	ClosePrice decimal.Decimal `json:"closePrice"`
	Finished   bool            `json:"finished"`
}

type positionChangeWire struct {
	SecurityID string           `json:"securityId"`
	Portfolio  string           `json:"portfolio"`
	Leverage   *decimal.Decimal `json:"leverage"`
	IsMoney    bool             `json:"isMoney"`
}

// DecodeFrame parses one inbound JSON frame into an analytics message.
func DecodeFrame(raw []byte) (core.Message, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch f.Type {
	case FrameOrderRegister:
		var w orderRegisterWire
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", f.Type, err)
		}
		side, err := parseSide(w.Side)
		if err != nil {
			return nil, err
		}
		return &core.OrderRegister{
			TransactionID: w.TransactionID,
			SecurityID:    w.SecurityID,
			PortfolioName: w.Portfolio,
			Side:          side,
			Volume:        w.Volume,
		}, nil

	case FrameOrderReplace:
		var w orderReplaceWire
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", f.Type, err)
		}
		side, err := parseSide(w.Side)
		if err != nil {
			return nil, err
		}
		return &core.OrderReplace{
			TransactionID:         w.TransactionID,
			OriginalTransactionID: w.OriginalTransactionID,
			SecurityID:            w.SecurityID,
			PortfolioName:         w.Portfolio,
			Side:                  side,
			Volume:                w.Volume,
		}, nil

	case FrameExecution:
		var w executionWire
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", f.Type, err)
		}
		side, err := parseSide(w.Side)
		if err != nil {
			return nil, err
		}
		class, err := parseClass(w.Class)
		if err != nil {
			return nil, err
		}
		state, err := parseOrderState(w.OrderState)
		if err != nil {
			return nil, err
		}
		return &core.Execution{
			Class:                 class,
			TransactionID:         w.TransactionID,
			OriginalTransactionID: w.OriginalTransactionID,
			SecurityID:            w.SecurityID,
			PortfolioName:         w.Portfolio,
			Side:                  side,
			OrderID:               w.OrderID,
			OrderStringID:         w.OrderStringID,
			OrderState:            state,
			OrderVolume:           w.OrderVolume,
			Balance:               w.Balance,
			TradeID:               w.TradeID,
			TradeStringID:         w.TradeStringID,
			TradePrice:            w.TradePrice,
			TradeVolume:           w.TradeVolume,
			ServerTime:            w.ServerTime,
		}, nil

	case FrameLevel1:
		var w level1Wire
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", f.Type, err)
		}
		return &core.Level1Change{
			SecurityID:     w.SecurityID,
			PriceStep:      w.PriceStep,
			StepPrice:      w.StepPrice,
			LotMultiplier:  w.LotMultiplier,
			LastTradePrice: w.LastTradePrice,
			BestBidPrice:   w.BestBidPrice,
			BestAskPrice:   w.BestAskPrice,
		}, nil

	case FrameQuotes:
		var w quotesWire
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", f.Type, err)
		}
		msg := &core.QuoteChange{
			SecurityID: w.SecurityID,
			BestBid:    w.BestBid,
			BestAsk:    w.BestAsk,
		}
		if w.Incremental {
			state := core.QuoteIncrement
			msg.State = &state
		}
		return msg, nil

	case FrameCandle:
		var w candleWire
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", f.Type, err)
		}
		state := core.CandleActive
		if w.Finished {
			state = core.CandleFinished
		}
		return &core.Candle{
			SecurityID: w.SecurityID,
			ClosePrice: w.ClosePrice,
			State:      state,
		}, nil

	case FramePositionChange:
		var w positionChangeWire
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", f.Type, err)
		}
		return &core.PositionChange{
			SecurityID:    w.SecurityID,
			PortfolioName: w.Portfolio,
			Leverage:      w.Leverage,
			IsMoney:       w.IsMoney,
		}, nil

	case FrameReset:
		return &core.Reset{}, nil

	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}

func parseSide(s string) (core.Side, error) {
	switch s {
	case "buy", "BUY", "":
		return core.SideBuy, nil
	case "sell", "SELL":
		return core.SideSell, nil
	default:
		return core.SideBuy, fmt.Errorf("unknown side %q", s)
	}
}

func parseClass(s string) (core.DataClass, error) {
	switch s {
	case "transactions", "":
		return core.ClassTransactions, nil
	case "ticks":
		return core.ClassTicks, nil
	case "order_log":
		return core.ClassOrderLog, nil
	default:
		return core.ClassTransactions, fmt.Errorf("unknown data class %q", s)
	}
}

func parseOrderState(s string) (core.OrderState, error) {
	switch s {
	case "", "none":
		return core.OrderStateNone, nil
	case "pending":
		return core.OrderStatePending, nil
	case "active":
		return core.OrderStateActive, nil
	case "done":
		return core.OrderStateDone, nil
	case "failed":
		return core.OrderStateFailed, nil
	default:
		return core.OrderStateNone, fmt.Errorf("unknown order state %q", s)
	}
}
