package main

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"pnl_engine/internal/core"
	"pnl_engine/internal/engine"
	"pnl_engine/pkg/concurrency"
	"pnl_engine/pkg/liveserver"
)

// Outbound payloads. All money figures travel as decimal strings.
type portfolioDTO struct {
	Portfolio  string `json:"portfolio"`
	Realized   string `json:"realized"`
	Unrealized string `json:"unrealized"`
	Total      string `json:"total"`
}

type tradeDTO struct {
	ServerTime   time.Time `json:"serverTime"`
	ClosedVolume string    `json:"closedVolume"`
	PnL          string    `json:"pnl"`
}

type positionDTO struct {
	SecurityID string `json:"securityId"`
	Portfolio  string `json:"portfolio"`
	Value      string `json:"value"`
}

type snapshotDTO struct {
	Realized   string         `json:"realized"`
	Total      string         `json:"total"`
	Portfolios []portfolioDTO `json:"portfolios"`
	Positions  []positionDTO  `json:"positions"`
}

// Broadcaster fans analytics updates out to the hub. Per-update events go
// through a worker pool so a burst of fills does not stall the feed reader;
// full snapshots are paced by a rate limiter.
type Broadcaster struct {
	hub     *liveserver.Hub
	eng     *engine.Engine
	pool    *concurrency.WorkerPool
	limiter *rate.Limiter
	logger  core.ILogger
}

func NewBroadcaster(hub *liveserver.Hub, eng *engine.Engine, pool *concurrency.WorkerPool, snapshotsPerSecond float64, logger core.ILogger) *Broadcaster {
	return &Broadcaster{
		hub:     hub,
		eng:     eng,
		pool:    pool,
		limiter: rate.NewLimiter(rate.Limit(snapshotsPerSecond), 1),
		logger:  logger.WithField("component", "broadcaster"),
	}
}

// Publish pushes the observable effects of one message to subscribers.
func (b *Broadcaster) Publish(update *engine.Update) {
	if update == nil || update.IsEmpty() {
		return
	}

	err := b.pool.Submit(func() {
		if update.Trade != nil {
			b.hub.Broadcast(liveserver.NewTradeEventMessage(tradeDTO{
				ServerTime:   update.Trade.ServerTime,
				ClosedVolume: update.Trade.ClosedVolume.String(),
				PnL:          update.Trade.PnL.String(),
			}))
		}
		for _, snap := range update.Portfolios {
			b.hub.Broadcast(liveserver.NewPortfolioMessage(portfolioDTO{
				Portfolio:  snap.PortfolioName,
				Realized:   snap.RealizedPnL.String(),
				Unrealized: snap.UnrealizedPnL.String(),
				Total:      snap.Total().String(),
			}))
		}
		if update.Position != nil {
			b.hub.Broadcast(liveserver.NewPositionMessage(positionDTO{
				SecurityID: update.Position.SecurityID,
				Portfolio:  update.Position.PortfolioName,
				Value:      update.Position.Value.String(),
			}))
		}
	})
	if err != nil {
		b.logger.Warn("Broadcast pool full, dropping update", "error", err)
	}
}

// Run periodically broadcasts a full snapshot while subscribers are
// connected. The limiter sets the pace.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		if err := b.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if b.hub.ClientCount() == 0 {
			continue
		}

		b.hub.Broadcast(liveserver.NewSnapshotMessage(b.buildSnapshot()))
	}
}

func (b *Broadcaster) buildSnapshot() snapshotDTO {
	snaps := b.eng.Snapshots()
	positions := b.eng.Positions()

	dto := snapshotDTO{
		Realized:   b.eng.RealizedPnL(),
		Total:      b.eng.PnL(),
		Portfolios: make([]portfolioDTO, 0, len(snaps)),
		Positions:  make([]positionDTO, 0, len(positions)),
	}
	for _, snap := range snaps {
		dto.Portfolios = append(dto.Portfolios, portfolioDTO{
			Portfolio:  snap.PortfolioName,
			Realized:   snap.RealizedPnL.String(),
			Unrealized: snap.UnrealizedPnL.String(),
			Total:      snap.Total().String(),
		})
	}
	for _, pos := range positions {
		dto.Positions = append(dto.Positions, positionDTO{
			SecurityID: pos.SecurityID,
			Portfolio:  pos.PortfolioName,
			Value:      pos.Value.String(),
		})
	}
	return dto
}
