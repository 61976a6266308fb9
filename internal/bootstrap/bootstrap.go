package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/document-validity-gateway/internal/config"
	"github.com/kirillkom/document-validity-gateway/internal/core/ports"
	"github.com/kirillkom/document-validity-gateway/internal/core/usecase"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/extraction"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/preflight"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/report"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/resilience"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/validity"
	"github.com/kirillkom/document-validity-gateway/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.GatewayMetrics

	Sessions ports.SessionDirectory
	IntakeUC ports.IntakeService
	BatchUC  ports.BatchService
	CheckUC  ports.ValidityService
	Exporter ports.ReportExporter

	closeFn func()
}

// New wires the gateway. The audit log and the event publisher are optional:
// an empty Postgres DSN or NATS URL leaves that port nil and the usecases
// skip it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	policy := resilience.DefaultPolicy()
	if cfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.BreakerOpenTimeoutSec > 0 {
		policy.BreakerOpenTimeout = time.Duration(cfg.BreakerOpenTimeoutSec) * time.Second
	}
	executor := resilience.NewExecutor(policy)

	var (
		db       *sql.DB
		auditLog ports.AuditLog
	)
	if cfg.PostgresDSN != "" {
		opened, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db = opened
		repo := postgres.NewAuditRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure audit schema: %w", err)
		}
		auditLog = repo
	}

	var (
		publisher *nats.Publisher
		events    ports.EventPublisher
	)
	if cfg.NATSURL != "" {
		connected, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		publisher = connected
		events = publisher
	}

	extractor := extraction.New(cfg.ExtractorBaseURL, time.Duration(cfg.ExtractorTimeoutSeconds)*time.Second, executor)
	evaluator := validity.New(cfg.ValidatorBaseURL, time.Duration(cfg.ValidatorTimeoutSeconds)*time.Second, executor)

	sessions := usecase.NewSessionManager()
	intakeUC := usecase.NewIntakeUseCase(sessions, preflight.NewPDFInspector())
	batchUC := usecase.NewSubmitBatchUseCase(sessions, extractor, auditLog, events)
	checkUC := usecase.NewCheckValidityUseCase(sessions, evaluator, auditLog, events)

	return &App{
		Config:  cfg,
		Metrics: metrics.NewGatewayMetrics("gateway"),

		Sessions: sessions,
		IntakeUC: intakeUC,
		BatchUC:  batchUC,
		CheckUC:  checkUC,
		Exporter: report.NewXLSXExporter(),

		closeFn: func() {
			if publisher != nil {
				publisher.Close()
			}
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
