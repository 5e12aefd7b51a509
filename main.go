package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"
	"github.com/nmkhang/authcore/internal/audit"
	"github.com/nmkhang/authcore/internal/auth"
	"github.com/nmkhang/authcore/internal/common"
	"github.com/nmkhang/authcore/internal/config"
	"github.com/nmkhang/authcore/internal/credentials"
	"github.com/nmkhang/authcore/internal/geo"
	"github.com/nmkhang/authcore/internal/handlers/api"
	"github.com/nmkhang/authcore/internal/lockout"
	"github.com/nmkhang/authcore/internal/mail"
	"github.com/nmkhang/authcore/internal/mfa"
	"github.com/nmkhang/authcore/internal/middlewares"
	"github.com/nmkhang/authcore/internal/middlewares/sessionauth"
	"github.com/nmkhang/authcore/internal/principals"
	"github.com/nmkhang/authcore/internal/ratelimit"
	"github.com/nmkhang/authcore/internal/sessions"
	"github.com/nmkhang/authcore/internal/store"
	"github.com/nmkhang/authcore/model"
	"github.com/nmkhang/authcore/params"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "authcore - authentication and session security server"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if dbConfig.ReplicaDsn != "" {
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: []gorm.Dialector{mysql.Open(dbConfig.ReplicaDsn)},
		}))
		if err != nil {
			slog.Error("Failed to register read replica", "error", err)
			os.Exit(1)
		}
	}

	if err := db.AutoMigrate(model.Models...); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitNotifier(mailCfg config.MailConfig) mail.Notifier {
	switch mailCfg.Backend {
	case "", "null":
		return mail.NullNotifier{}
	case "smtp":
		from := mailCfg.From
		if from == "" {
			from = mailCfg.SMTP.From
		}
		notifier, err := mail.NewSMTPNotifier(mailCfg.SMTP, from)
		if err != nil {
			log.Fatalf("Failed to initialize SMTP notifier: %v", err)
		}
		return notifier
	default:
		log.Fatalf("Unsupported mail backend %s", mailCfg.Backend)
		return nil
	}
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func mustParseAllowedNets(cidrs []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			log.Fatalf("Invalid allowed network %q: %v", cidr, err)
		}
		nets = append(nets, ipNet)
	}
	return nets
}

func setupAPIRoutes(
	router fiber.Router,
	coordinator *auth.Coordinator,
	registry *sessions.Registry) {

	// handlers
	var (
		authHandler    = api.NewAuthHandler(coordinator)
		accountHandler = api.NewAccountHandler(coordinator)
		mfaHandler     = api.NewMFAHandler(coordinator)
		sessionHandler = api.NewSessionHandler(coordinator)
	)

	v1 := router.Group("/api/v1")
	v1.Post("/login", authHandler.PostLogin)
	v1.Post("/password/forgot", accountHandler.PostForgotPassword)
	v1.Post("/password/reset", accountHandler.PostResetPassword)

	v1.Use(sessionauth.New(registry))
	v1.Post("/logout", authHandler.PostLogout)
	v1.Post("/password/change", accountHandler.PostChangePassword)
	v1.Post("/mfa/enroll", mfaHandler.PostEnroll)
	v1.Post("/mfa/confirm", mfaHandler.PostConfirm)
	v1.Post("/mfa/disable", mfaHandler.PostDisable)
	v1.Get("/sessions", sessionHandler.GetSessions)
	v1.Delete("/sessions", sessionHandler.DeleteSessions)
	v1.Delete("/sessions/:id", sessionHandler.DeleteSession)
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	notifier := mustInitNotifier(cfg.Mail)
	db := mustInitDatabase(cfg.MySQL)

	var cacheStorage store.Storage
	var redisStorage *redis.Storage
	if cfg.StorageBackend == config.StorageBackendMemory {
		cacheStorage = store.NewMemoryStorage()
	} else {
		redisStorage = mustInitRedisStorage(cfg.Redis)
		cacheStorage = store.NewRedisStorage(redisStorage.Conn())
	}

	// repositories
	var (
		principalRepo  = principals.NewRepository(db)
		sessionRepo    = sessions.NewRepository(db)
		factorRepo     = mfa.NewFactorRepository(db)
		backupCodeRepo = mfa.NewBackupCodeRepository(db)
		auditRepo      = audit.NewRepository(db)
	)

	// services
	var (
		credentialStore = credentials.NewStore(principalRepo, cfg.PasswordPolicy, cfg.MasterKey)
		mfaService      = mfa.NewService(cfg.MFA.Issuer, cfg.MasterKey, cacheStorage, factorRepo, backupCodeRepo)
		tracker         = lockout.NewTracker(cacheStorage, principalRepo, cfg.Lockout)
		limiter         = ratelimit.NewLimiter(cacheStorage, cfg.RateLimit)
		registry        = sessions.NewRegistry(sessionRepo, geo.NullResolver{}, cfg.Session)
		auditLog        = audit.NewLog(auditRepo)
	)

	coordinator := auth.NewCoordinator(
		principalRepo,
		credentialStore,
		mfaService,
		tracker,
		limiter,
		registry,
		auditLog,
		notifier,
		cfg.SiteName,
		mustParseAllowedNets(cfg.AllowedIPNets),
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	setupAPIRoutes(router, coordinator, registry)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	var healthRedis goredis.UniversalClient
	if redisStorage != nil {
		healthRedis = redisStorage.Conn()
	}
	go common.StartHealthCheckServer(healthCheckCtx, done, cfg.HealthCheckAddr, healthRedis, db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
