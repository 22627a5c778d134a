package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cemeteryapp "github.com/municipal/backoffice/internal/application/cemetery"
	documentapp "github.com/municipal/backoffice/internal/application/document"
	fleetapp "github.com/municipal/backoffice/internal/application/fleet"
	libraryapp "github.com/municipal/backoffice/internal/application/library"
	"github.com/municipal/backoffice/internal/application/orchestration"
	payrollapp "github.com/municipal/backoffice/internal/application/payroll"
	workflowapp "github.com/municipal/backoffice/internal/application/workflow"
	"github.com/municipal/backoffice/internal/bootstrap"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/infrastructure/cache"
	"github.com/municipal/backoffice/internal/infrastructure/event"
	"github.com/municipal/backoffice/internal/infrastructure/iam"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/infrastructure/printing"
	"github.com/municipal/backoffice/internal/infrastructure/scheduler"
	"github.com/municipal/backoffice/internal/infrastructure/storage"
	"github.com/municipal/backoffice/internal/interfaces/http/handler"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"go.uber.org/zap"

	"github.com/municipal/backoffice/docs"
)

//	@title						Municipal Back-Office API
//	@version					1.0
//	@description				Payroll, fleet, documents, approval workflows, library and cemetery records of the municipality
//	@host						localhost:8080
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token issued by the IAM service. Format: "Bearer {token}"

const defaultDashboardTTL = 5 * time.Minute

func main() {
	ctx := context.Background()

	platform, err := bootstrap.Start(ctx, "backoffice")
	if err != nil {
		panic("Failed to start back-office server: " + err.Error())
	}
	defer platform.Close(ctx)
	log := platform.Logger.Logger
	cfg := platform.Config
	metrics := platform.Telemetry.Metrics

	docs.SwaggerInfo.Host = "localhost:" + cfg.App.Port
	docs.SwaggerInfo.BasePath = "/api/v1"

	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewLoggingHandler(log))

	db := platform.Database.DB

	var dashboardCache cache.Cache = cache.NewMemoryCache()
	if platform.Redis != nil {
		dashboardCache = cache.NewRedisCache(platform.Redis, "backoffice:")
	}

	var renderer printing.PDFRenderer = printing.DisabledRenderer{}
	if cfg.Printing.Enabled {
		chrome := printing.NewChromedpRenderer(cfg.Printing, log)
		defer func() {
			if err := chrome.Close(); err != nil {
				log.Warn("Error closing PDF renderer", zap.Error(err))
			}
		}()
		renderer = chrome
	}

	objects, err := newObjectStorage(ctx, platform, log)
	if err != nil {
		log.Error("Object storage unavailable", zap.Error(err))
		platform.Close(ctx)
		os.Exit(1)
	}

	// payroll
	rates, minimumWage, err := payrollapp.RatesFromConfig(cfg.Payroll)
	if err != nil {
		log.Error("Invalid payroll configuration", zap.Error(err))
		platform.Close(ctx)
		os.Exit(1)
	}
	ttl := cfg.Payroll.DashboardCacheTTL
	if ttl <= 0 {
		ttl = defaultDashboardTTL
	}
	employeeRepo := persistence.NewGormEmployeeRepository(db)
	payrollRepo := persistence.NewGormPayrollRepository(db)
	activityRepo := persistence.NewGormActivityRepository(db)

	employees := payrollapp.NewEmployeeService(employeeRepo, eventBus, log)
	settings := payrollapp.NewSettingsService(persistence.NewGormSettingsRepository(db),
		payroll.NewCalculator(rates), minimumWage, eventBus, log)
	dashboard := payrollapp.NewDashboardService(employeeRepo, payrollRepo, activityRepo, dashboardCache, ttl, log)
	eventBus.Subscribe(payrollapp.NewActivityRecorder(activityRepo))
	eventBus.Subscribe(dashboard)

	payrollHandler := handler.NewPayrollHandler(
		employees,
		settings,
		payrollapp.NewPayrollService(payrollRepo, employeeRepo, settings, eventBus, metrics, log),
		dashboard,
		payrollapp.NewPayslipService(payrollRepo, printing.NewTemplateEngine(), renderer, log),
	)

	// orchestration
	orchestrationHandler := handler.NewOrchestrationHandler(
		orchestration.NewService(iam.NewClient(cfg.IAM, log), employees, platform.Database, metrics, log))

	// fleet
	fuelRepo := persistence.NewGormFuelRepository(db)
	fleetHandler := handler.NewFleetHandler(fleetapp.NewService(fleetapp.Repositories{
		Vehicles:    persistence.NewGormVehicleRepository(db),
		Drivers:     persistence.NewGormDriverRepository(db),
		Assignments: persistence.NewGormAssignmentRepository(db),
		Maintenance: persistence.NewGormMaintenanceRepository(db),
		Fuel:        fuelRepo,
		Costs:       fuelRepo,
	}, metrics, log))

	// documents and their approval workflows
	documents := documentapp.NewService(documentapp.Repositories{
		Documents: persistence.NewGormDocumentRepository(db),
		Versions:  persistence.NewGormDocumentVersionRepository(db),
		Access:    persistence.NewGormDocumentAccessRepository(db),
		Logs:      persistence.NewGormDocumentLogRepository(db),
	}, objects, employeeRepo, metrics, log)
	documentHandler := handler.NewDocumentHandler(documents)
	workflowHandler := handler.NewWorkflowHandler(workflowapp.NewService(
		persistence.NewGormWorkflowTemplateRepository(db),
		persistence.NewGormWorkflowRepository(db),
		persistence.NewGormWorkflowActionRepository(db),
		documents,
		employeeRepo,
		metrics,
		log,
	))

	// library
	rules, err := libraryapp.RulesFromConfig(cfg.Library)
	if err != nil {
		log.Error("Invalid library configuration", zap.Error(err))
		platform.Close(ctx)
		os.Exit(1)
	}
	loanRepo := persistence.NewGormLoanRepository(db)
	library := libraryapp.NewService(libraryapp.Repositories{
		Books:        persistence.NewGormBookRepository(db),
		Copies:       persistence.NewGormBookCopyRepository(db),
		Members:      persistence.NewGormMemberRepository(db),
		Loans:        loanRepo,
		Reservations: persistence.NewGormReservationRepository(db),
		Fines:        persistence.NewGormFineRepository(db),
		Circulation:  loanRepo,
		Statistics:   persistence.NewGormLibraryStatisticsRepository(db),
	}, rules, metrics, log)
	libraryHandler := handler.NewLibraryHandler(library)

	housekeeping := newHousekeeping(cfg.Library.HousekeepingInterval, library, log)
	if err := housekeeping.Start(ctx); err != nil {
		log.Error("Failed to start scheduler", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = housekeeping.Stop(stopCtx)
	}()

	// cemetery
	cemeteryHandler := handler.NewCemeteryHandler(cemeteryapp.NewService(cemeteryapp.Repositories{
		Cemeteries: persistence.NewGormCemeteryRepository(db),
		Blocks:     persistence.NewGormBlockRepository(db),
		Graves:     persistence.NewGormGraveRepository(db),
		Burials:    persistence.NewGormBurialRepository(db),
		Visitors:   persistence.NewGormVisitorRepository(db),
	}, metrics, log))

	engine := platform.NewEngine("backoffice")
	authn := platform.Authn()
	routes := router.NewRouter(engine).Register(
		payrollHandler.Routes(authn),
		orchestrationHandler.Routes(authn),
		fleetHandler.Routes(authn),
		documentHandler.Routes(authn),
		workflowHandler.Routes(authn),
		libraryHandler.Routes(authn),
		cemeteryHandler.Routes(authn),
	).Setup()

	log.Info("Starting back-office server",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("redis", platform.Redis != nil),
		zap.Bool("pdf", cfg.Printing.Enabled),
		zap.Int("routes", len(routes)),
	)
	if err := platform.Serve(engine, cfg.App.Port); err != nil {
		log.Error("Server failed", zap.Error(err))
		platform.Close(ctx)
		os.Exit(1)
	}
}

// newObjectStorage connects the S3 bucket, or keeps uploads in memory when
// storage is not configured
func newObjectStorage(ctx context.Context, platform *bootstrap.Platform, log *zap.Logger) (documentapp.ObjectStorage, error) {
	cfg := platform.Config.Storage
	if !cfg.Enabled() {
		log.Warn("Object storage not configured, documents are kept in process memory")
		return storage.NewMemoryStore(""), nil
	}
	s3, err := storage.NewS3Store(ctx, cfg, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("Object storage connected", zap.String("bucket", s3.Bucket()))
	return s3, nil
}

// newHousekeeping schedules the library sweeps. A negative interval leaves
// the scheduler disabled; overdue loans are then refreshed on request only.
func newHousekeeping(interval time.Duration, library *libraryapp.Service, log *zap.Logger) *scheduler.Scheduler {
	cfg := scheduler.DefaultConfig()
	cfg.Enabled = interval > 0
	s := scheduler.New(log, cfg)
	if !cfg.Enabled {
		return s
	}
	_ = s.Register(scheduler.Task{
		Name:     "library.overdue",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return library.RefreshOverdue(ctx, uuid.Nil)
		},
	})
	_ = s.Register(scheduler.Task{
		Name:     "library.reservations",
		Interval: interval,
		Run:      library.ExpireReservations,
	})
	return s
}
