// Package reconcile sweeps PROCESSING orders against the venue. An order
// stuck in PROCESSING means the service died between venue-accept and
// local commit; the venue position carries the order number in its
// comment, which is what the sweep matches on.
package reconcile

import (
	"context"
	"log"
	"time"

	"goldtrade/internal/engine"
	"goldtrade/internal/metrics"
	"goldtrade/internal/model"
	"goldtrade/internal/store"
	"goldtrade/internal/types"
	"goldtrade/internal/venue"

	"github.com/robfig/cron/v3"
)

// StaleAfter is how long a PROCESSING order may wait for a venue match
// before the sweep fails it.
var StaleAfter = 10 * time.Minute

// Updater is the slice of the engine the sweep resolves orders through.
type Updater interface {
	UpdateTrade(ctx context.Context, tx store.Tx, adminID, orderID string, patch engine.Patch) (engine.UpdateResult, error)
}

type Sweeper struct {
	store   store.Store
	venue   venue.Gateway
	updater Updater
	now     func() time.Time
}

func NewSweeper(st store.Store, gw venue.Gateway, updater Updater) *Sweeper {
	return &Sweeper{store: st, venue: gw, updater: updater, now: time.Now}
}

// Schedule registers the sweep on the given cron.
func (s *Sweeper) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.Sweep(ctx); err != nil {
			log.Printf("reconcile: sweep failed: %v", err)
		}
	})
	return err
}

// Sweep resolves every PROCESSING order it can: matched orders are
// promoted to OPEN with their venue ticket attached, orders past the
// stale window with no venue position are failed, recent unmatched
// orders are left for the next run.
func (s *Sweeper) Sweep(ctx context.Context) error {
	orders, err := s.store.ListProcessingOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}
	positions, err := s.venue.GetPositions(ctx)
	if err != nil {
		return err
	}
	byComment := make(map[string]venue.Position, len(positions))
	for _, p := range positions {
		if p.Comment != "" {
			byComment[p.Comment] = p
		}
	}
	for _, order := range orders {
		s.resolve(ctx, order, byComment)
	}
	return nil
}

func (s *Sweeper) resolve(ctx context.Context, order model.Order, byComment map[string]venue.Position) {
	if pos, ok := byComment[order.OrderNo]; ok {
		open := types.OrderStatusOpen
		_, err := s.updater.UpdateTrade(ctx, nil, order.AdminID, order.ID, engine.Patch{
			Status: &open,
			Ticket: &pos.Ticket,
			Volume: &pos.Volume,
		})
		if err != nil {
			log.Printf("reconcile: promote %s: %v", order.OrderNo, err)
			return
		}
		log.Printf("reconcile: promoted %s to OPEN (ticket %d)", order.OrderNo, pos.Ticket)
		metrics.ReconcileMatches.WithLabelValues("promoted").Inc()
		return
	}
	if s.now().Sub(order.OpenDate) < StaleAfter {
		metrics.ReconcileMatches.WithLabelValues("pending").Inc()
		return
	}
	failed := types.OrderStatusFailed
	comment := order.Comment
	if comment != "" {
		comment += " | "
	}
	comment += "no venue position found by reconciliation"
	_, err := s.updater.UpdateTrade(ctx, nil, order.AdminID, order.ID, engine.Patch{
		Status:  &failed,
		Comment: &comment,
	})
	if err != nil {
		log.Printf("reconcile: fail %s: %v", order.OrderNo, err)
		return
	}
	log.Printf("reconcile: failed stale order %s", order.OrderNo)
	metrics.ReconcileMatches.WithLabelValues("failed").Inc()
}
