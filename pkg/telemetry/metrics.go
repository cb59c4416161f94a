package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricPnLRealizedTotal     = "pnl_engine_realized_total"
	MetricPnLUnrealized        = "pnl_engine_unrealized"
	MetricTradesProcessedTotal = "pnl_engine_trades_processed_total"
	MetricTradesDuplicateTotal = "pnl_engine_trades_duplicate_total"
	MetricMessagesTotal        = "pnl_engine_messages_total"
	MetricPortfoliosActive     = "pnl_engine_portfolios_active"
	MetricPositionSize         = "pnl_engine_position_size"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	PnLRealizedTotal     metric.Float64Counter
	PnLUnrealized        metric.Float64ObservableGauge
	TradesProcessedTotal metric.Int64Counter
	TradesDuplicateTotal metric.Int64Counter
	MessagesTotal        metric.Int64Counter
	PortfoliosActive     metric.Int64ObservableGauge
	PositionSize         metric.Float64ObservableGauge

	// State for observable gauges
	mu               sync.RWMutex
	unrealizedPnLMap map[string]float64
	positionSizeMap  map[string]float64
	portfoliosActive int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			unrealizedPnLMap: make(map[string]float64),
			positionSizeMap:  make(map[string]float64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss"))
	if err != nil {
		return err
	}

	m.TradesProcessedTotal, err = meter.Int64Counter(MetricTradesProcessedTotal, metric.WithDescription("Total own trades applied"))
	if err != nil {
		return err
	}

	m.TradesDuplicateTotal, err = meter.Int64Counter(MetricTradesDuplicateTotal, metric.WithDescription("Total redelivered trades detected and not re-counted"))
	if err != nil {
		return err
	}

	m.MessagesTotal, err = meter.Int64Counter(MetricMessagesTotal, metric.WithDescription("Total messages processed by type"))
	if err != nil {
		return err
	}

	// Observables
	m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for pf, val := range m.unrealizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("portfolio", pf)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PortfoliosActive, err = meter.Int64ObservableGauge(MetricPortfoliosActive, metric.WithDescription("Number of tracked portfolios"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.portfoliosActive)
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionSize, err = meter.Float64ObservableGauge(MetricPositionSize, metric.WithDescription("Current net position size"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for key, val := range m.positionSizeMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("position", key)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

func (m *MetricsHolder) SetUnrealizedPnL(portfolio string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap[portfolio] = value
}

func (m *MetricsHolder) SetPositionSize(key string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSizeMap[key] = size
}

func (m *MetricsHolder) SetPortfoliosActive(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfoliosActive = count
}

// ResetGauges clears all observable gauge state, mirroring an engine reset.
func (m *MetricsHolder) ResetGauges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap = make(map[string]float64)
	m.positionSizeMap = make(map[string]float64)
	m.portfoliosActive = 0
}

func (m *MetricsHolder) GetUnrealizedPnL() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.unrealizedPnLMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetPositionSize() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.positionSizeMap {
		res[k] = v
	}
	return res
}
