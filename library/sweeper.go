package library

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"library-lending/logger"
)

// SweepFines recomputes the balance of every member from their loans on
// record and returns how many balances changed.
func (lm *LibraryManager) SweepFines(ctx context.Context) (int, error) {
	members, err := lm.members.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep fines: %w", err)
	}
	catalog, err := lm.books.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep fines: %w", err)
	}

	changed := 0
	for _, m := range members {
		if m.Loans, err = lm.loans.LoadForMember(ctx, m.ID, catalog); err != nil {
			return changed, fmt.Errorf("sweep fines: %w", err)
		}
		before := m.Balance
		if err := lm.UpdateMemberFines(ctx, m); err != nil {
			return changed, fmt.Errorf("sweep fines: %w", err)
		}
		if !before.Equal(m.Balance) {
			changed++
		}
	}
	return changed, nil
}

// FineSweeper runs SweepFines on a cron schedule.
type FineSweeper struct {
	manager *LibraryManager
	cron    *cron.Cron
}

// NewFineSweeper schedules sweeps with a standard five-field cron spec or a
// descriptor such as "@daily".
func NewFineSweeper(lm *LibraryManager, schedule string) (*FineSweeper, error) {
	s := &FineSweeper{manager: lm, cron: cron.New()}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("fine sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *FineSweeper) Start() {
	logger.Info("Fine sweeper started")
	s.cron.Start()
}

// Stop halts scheduling and returns a context done once a running sweep finishes.
func (s *FineSweeper) Stop() context.Context {
	ctx := s.cron.Stop()
	logger.Info("Fine sweeper stopped")
	return ctx
}

func (s *FineSweeper) sweep() {
	changed, err := s.manager.SweepFines(context.Background())
	if err != nil {
		logger.Error("Fine sweep failed", "error", err)
		return
	}
	logger.Info("Fine sweep completed", "changed", changed)
}
