package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/shenikar/incident_coordination_system/internal/service"
	"github.com/sirupsen/logrus"
)

// Sweeper - опциональный фоновый сброс просроченных оповещений по
// cron-расписанию. По умолчанию выключен: канонический механизм -
// ленивый перевод в expired при чтении. Свипер идет тем же путем,
// что и чтение, поэтому запись expire в аудите остается ровно одной
type Sweeper struct {
	alerts service.AlertService
	logger *logrus.Logger
	cron   *cron.Cron
	spec   string
}

// New создает Sweeper с указанным cron-расписанием
func New(alerts service.AlertService, logger *logrus.Logger, spec string) *Sweeper {
	return &Sweeper{
		alerts: alerts,
		logger: logger,
		cron:   cron.New(),
		spec:   spec,
	}
}

// Start регистрирует задачу и запускает тикер
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		expired, err := s.alerts.SweepExpired(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Expiry sweep failed")
			return
		}
		if expired > 0 {
			s.logger.WithField("expired", expired).Info("Expiry sweep flipped alerts")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("spec", s.spec).Info("Expiry sweeper started")
	return nil
}

// Stop останавливает тикер и ждет завершения запущенной задачи
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
