package main

import (
	"context"
	"os"

	identityapp "github.com/municipal/backoffice/internal/application/identity"
	"github.com/municipal/backoffice/internal/bootstrap"
	"github.com/municipal/backoffice/internal/infrastructure/event"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/interfaces/http/handler"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"go.uber.org/zap"

	"github.com/municipal/backoffice/docs"
)

//	@title						Municipal IAM API
//	@version					1.0
//	@description				Users, access tokens and registration requests shared by the back-office services
//	@host						localhost:8001
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

func main() {
	ctx := context.Background()

	platform, err := bootstrap.Start(ctx, "iam")
	if err != nil {
		panic("Failed to start IAM service: " + err.Error())
	}
	defer platform.Close(ctx)
	log := platform.Logger.Logger
	cfg := platform.Config

	docs.SwaggerInfo.Title = "Municipal IAM API"
	docs.SwaggerInfo.Host = "localhost:" + cfg.App.IAMPort
	docs.SwaggerInfo.BasePath = "/"

	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewLoggingHandler(log))

	db := platform.Database.DB
	userRepo := persistence.NewGormUserRepository(db)
	registrationRepo := persistence.NewGormRegistrationRepository(db)

	userService := identityapp.NewUserService(userRepo, platform.JWT, platform.Revocations, eventBus, log)
	registrationService := identityapp.NewRegistrationService(userRepo, registrationRepo, eventBus, log)
	iamHandler := handler.NewIAMHandler(userService, registrationService)

	engine := platform.NewEngine("iam")
	r := router.NewRouter(engine, router.WithBasePath(""))
	for _, group := range iamHandler.Routes(platform.Authn(), cfg.IAM.InternalKey) {
		r.Register(group)
	}
	for _, route := range r.Setup() {
		log.Debug("Route mounted", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	log.Info("Starting IAM service", zap.String("env", cfg.App.Env), zap.String("port", cfg.App.IAMPort))
	if err := platform.Serve(engine, cfg.App.IAMPort); err != nil {
		log.Error("Server failed", zap.Error(err))
		platform.Close(ctx)
		os.Exit(1)
	}
}
