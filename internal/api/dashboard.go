package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/store"
)

// handleDashboard returns recent history, usage stats and the subscription.
// The three reads run concurrently and the result is cached briefly.
func (s *Server) handleDashboard(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	if s.cache != nil {
		dash, ok, err := s.cache.GetDashboard(ctx, who.UserID)
		if err != nil {
			s.logger.Warn("Failed to read dashboard cache", "user_id", who.UserID, "error", err)
		} else if ok {
			return c.JSON(dash)
		}
	}

	var dash models.DashboardResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.store.ListPrescriptions(gctx, who.UserID, historyLimit)
		dash.Prescriptions = list
		return err
	})
	g.Go(func() error {
		stats, err := s.store.PrescriptionStats(gctx, who.UserID, s.monthStart())
		dash.Stats = stats
		return err
	})
	g.Go(func() error {
		sub, err := s.store.GetSubscription(gctx, who.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		dash.Subscription = &sub
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.SetDashboard(ctx, who.UserID, dash); err != nil {
			s.logger.Warn("Failed to cache dashboard", "user_id", who.UserID, "error", err)
		}
	}
	return c.JSON(dash)
}

// monthStart is midnight on the first day of the current month in the
// prescription timezone.
func (s *Server) monthStart() time.Time {
	now := s.now().In(s.cfg.Location())
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

func (s *Server) handleBilling(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	sub, err := s.store.GetSubscription(ctx, who.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(models.BillingResponse{Events: []models.BillingEvent{}})
	}
	if err != nil {
		return err
	}

	events, err := s.store.ListBillingEvents(ctx, sub.ID, billingEventsLimit)
	if err != nil {
		return err
	}
	return c.JSON(models.BillingResponse{Subscription: &sub, Events: events})
}
