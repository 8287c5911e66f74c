package bot

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// ============================================================
// Планировщик мультипутей
// ============================================================
//
// Раз в тик выбирает из хранилища нетерминальные планы (старые первыми)
// и отдаёт в работу те, что можно исполнять одновременно:
//
//   - план уже в работе (executing) - пропускается;
//   - любая точка касания плана на паузе - пропускается;
//   - план конфликтует по стаканам с уже выбранным - пропускается;
//   - выборка обрезается до лимита параллельности.
//
// Выбранные планы исполняются параллельно; планировщик ждёт завершения
// всей партии перед следующим тиком, поэтому лимит никогда не
// превышается суммарно.

// Scheduler управляет параллельным исполнением мультипутей
type Scheduler struct {
	runner *PathRunner
	store  MultipathStore
	pauses *PauseTable

	tick        time.Duration
	concurrency int

	logger *zap.Logger
}

// NewScheduler создаёт планировщик
func NewScheduler(runner *PathRunner, store MultipathStore, pauses *PauseTable, tick time.Duration, concurrency int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:      runner,
		store:       store,
		pauses:      pauses,
		tick:        tick,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run крутит цикл планирования до отмены контекста
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		plans, err := s.store.LoadMultipaths(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to load multipath plans", zap.Error(err))
		} else {
			s.runBatch(ctx, s.Select(plans, time.Now()))
		}

		if !sleepCtx(ctx, s.tick) {
			return
		}
	}
}

// Select выбирает планы, которые можно исполнять одновременно.
// Вход упорядочен старые-первыми; порядок сохраняется, поэтому при
// конфликте приоритет всегда у более старого плана.
func (s *Scheduler) Select(plans []*models.Multipath, now time.Time) []*models.Multipath {
	selected := make([]*models.Multipath, 0, s.concurrency)

plans:
	for _, plan := range plans {
		if len(selected) >= s.concurrency {
			break
		}
		if models.MultipathTerminal(plan.Status) || plan.Executing {
			continue
		}
		for _, tp := range plan.TouchPoints() {
			if s.pauses.Paused(tp.Exchange, tp.Market, tp.Coin, now) {
				continue plans
			}
		}
		for _, picked := range selected {
			if plan.Clashes(picked) {
				continue plans
			}
		}
		selected = append(selected, plan)
	}

	return selected
}

// runBatch исполняет партию планов параллельно и ждёт всю партию
func (s *Scheduler) runBatch(ctx context.Context, batch []*models.Multipath) {
	if len(batch) == 0 {
		return
	}
	s.logger.Debug("scheduling multipath batch", zap.Int("plans", len(batch)))

	g, gctx := errgroup.WithContext(ctx)
	for _, plan := range batch {
		plan := plan
		g.Go(func() error {
			s.runner.Run(gctx, plan)
			return nil
		})
	}
	// Воркеры ошибок не возвращают: сбои планов терминализуются внутри Run
	_ = g.Wait()
}
