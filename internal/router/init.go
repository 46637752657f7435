package router

import (
	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/config"
	"github.com/oksasatya/tourauth/internal/application"
	"github.com/oksasatya/tourauth/internal/container"
	"github.com/oksasatya/tourauth/internal/domain/repository"
	handlers "github.com/oksasatya/tourauth/internal/interface/http"
	"github.com/oksasatya/tourauth/internal/router/modules"
	"github.com/oksasatya/tourauth/pkg/helpers"
	"github.com/oksasatya/tourauth/pkg/mailer"
)

// Deps are the infrastructure pieces the modules are built from.
type Deps struct {
	Cfg    *config.Config
	Logger *logrus.Logger
	Repo   repository.UserRepository
	Redis  *redis.Client
	JWT    *helpers.JWTManager
	Mail   mailer.Sender
	Events application.EventPublisher
	GCS    *storage.Client
	ES     *elasticsearch.Client
}

// DepsFromContainer collects the singletons registered at startup.
func DepsFromContainer() Deps {
	d := Deps{
		Cfg:    container.GetConfig(),
		Logger: container.GetLogger(),
		Repo:   container.GetUserRepo(),
		Redis:  container.GetRedis(),
		JWT:    container.GetJWT(),
		Mail:   container.GetMailSender(),
		GCS:    container.GetGCS(),
		ES:     container.GetES(),
	}
	if pub := container.GetRabbitPub(); pub != nil {
		d.Events = pub
	}
	return d
}

// Services are the application services built for the modules.
type Services struct {
	Accounts *application.AccountService
	Users    *application.UserService
	Guard    *application.Guard
}

func buildServices(d Deps) Services {
	users := application.NewUserService(d.Repo, d.GCS, d.Cfg.GCSBucket, d.ES, d.Cfg.ESUsersIndex, d.Logger)
	accounts := application.NewAccountService(
		d.Cfg,
		d.Repo,
		helpers.NewHasher(d.Cfg.BcryptCost, d.Cfg.HashConcurrency),
		helpers.NewRecoveryTokens(d.Cfg.ResetTokenTTL),
		application.NewSessionIssuer(d.JWT, d.Cfg.CookieExpiresIn),
		d.Mail,
		d.Events,
		users,
		d.Logger,
	)
	return Services{Accounts: accounts, Users: users, Guard: application.NewGuard(d.Repo, d.JWT)}
}

// InitModules initializes all application modules from the container and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) Services {
	return InitModulesWith(r, DepsFromContainer())
}

// InitModulesWith wires the modules from explicit dependencies.
func InitModulesWith(r *Registry, d Deps) Services {
	svc := buildServices(d)
	cookies := helpers.NewCookie(d.Cfg.CookieDomain, d.Cfg.CookieSecure)

	r.Add(modules.NewAuthModule(handlers.NewAuthHandler(svc.Accounts, d.Logger, cookies), svc.Guard, d.Redis, d.Logger))
	r.Add(modules.NewUserModule(handlers.NewUserHandler(svc.Users, d.Logger), svc.Guard, d.Redis, d.Logger))
	if d.Cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(d.Redis))
	}
	return svc
}
