package sweep

import (
	"context"

	"marketplace-core/internal/usecase"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper schedules the subscription renewal pass. Renewals also happen
// lazily when a lapsed user is looked at, so a missed run only delays
// charging, never loses it.
type Sweeper struct {
	cron   *cron.Cron
	subUC  *usecase.SubscriptionUsecase
	logger *zap.Logger
}

func NewSweeper(subUC *usecase.SubscriptionUsecase, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		cron:   cron.New(),
		subUC:  subUC,
		logger: logger,
	}
}

// Start registers the renewal job on the given cron spec and launches the
// scheduler.
func (s *Sweeper) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("renewal sweep starting")
		if err := s.subUC.RenewDue(context.Background()); err != nil {
			s.logger.Error("renewal sweep aborted", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("renewal sweep scheduled", zap.String("spec", spec))
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
