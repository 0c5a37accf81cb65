package router

import (
	"github.com/contactly/accounts/internal/application"
	"github.com/contactly/accounts/internal/container"
	pginfra "github.com/contactly/accounts/internal/infrastructure/postgres"
	handlers "github.com/contactly/accounts/internal/interface/http"
	"github.com/contactly/accounts/internal/router/modules"
)

func buildService() *application.Service {
	repo := pginfra.NewUserRepository(container.GetPGPool())
	cfg := container.GetConfig()

	svc := application.NewService(
		repo,
		container.GetJWT(),
		container.GetGravatar(),
		container.GetGCS(),
		cfg.GCSBucket,
		container.GetRedis(),
		container.GetLogger(),
		container.GetES(),
		cfg.ESUsersIndex,
	)
	svc.Pub = container.GetRabbitPub()
	svc.ConfirmEmailURL = cfg.ConfirmEmailURL
	svc.MailEnabled = cfg.MailSendEnabled
	return svc
}

// InitModules builds the application service and registers all feature
// modules with the router registry. Called once during startup.
func InitModules(r *Registry) {
	svc := buildService()
	cfg := container.GetConfig()

	userHandler := handlers.NewUserHandler(svc, container.GetLogger(), cfg.CookieDomain, cfg.CookieSecure)
	authHandler := handlers.NewAuthHandler(svc, container.GetRedis(), container.GetLogger(), cfg, container.GetRabbitPub())

	r.Add(modules.NewUserModule(userHandler, container.GetJWT()))
	r.Add(modules.NewAuthModule(authHandler, container.GetJWT()))
}
