package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"tiny-bank/internal/auth"
	"tiny-bank/internal/config"
	"tiny-bank/internal/exporter"
	apphttp "tiny-bank/internal/http"
	"tiny-bank/internal/repository"
	"tiny-bank/internal/repository/memory"
	"tiny-bank/internal/repository/sqlite"
	"tiny-bank/internal/service"
	"tiny-bank/internal/storage"
)

type stores struct {
	users        repository.UserRepository
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	credentials  repository.CredentialRepository
	db           *sql.DB
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	if st.db != nil {
		defer st.db.Close()
	}

	ledger := service.NewLedgerService(st.accounts, st.transactions, logger)
	credentials := auth.NewCredentialStore(st.credentials, bcrypt.DefaultCost)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)

	var (
		exports  exporter.Manager
		archiver service.StatementArchiver
		store    storage.Service
	)
	if cfg.Storage.Bucket != "" {
		store, err = buildStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
		exports = exporter.NewManager(exporter.Config{
			Bucket:        cfg.Storage.Bucket,
			KeyPrefix:     cfg.Storage.KeyPrefix,
			MaxConcurrent: cfg.Export.MaxConcurrent,
			Logger:        logger,
		}, ledger, store)
		if err := exports.Start(ctx); err != nil {
			logger.Fatalf("start exporter: %v", err)
		}
		archiver = exports
	} else {
		logger.Info("no storage bucket configured, statement export disabled")
	}

	users := service.NewUserService(st.users, ledger, credentials, archiver, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apphttp.NewHandler(users, ledger, tokens, exports, store, cfg.Storage.Bucket, cfg.Storage.KeyPrefix).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if exports != nil {
		exports.Shutdown()
	}

	logger.Info("bye")
}

func openStores(ctx context.Context, cfg config.Config, logger *logrus.Logger) (stores, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using in-memory stores, data is lost on restart")
		return stores{
			users:        memory.NewUserRepository(),
			accounts:     memory.NewAccountRepository(),
			transactions: memory.NewTransactionRepository(),
			credentials:  memory.NewCredentialRepository(),
		}, nil
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return stores{}, fmt.Errorf("open database: %w", err)
	}
	st := stores{
		users:        sqlite.NewUserRepository(db),
		accounts:     sqlite.NewAccountRepository(db),
		transactions: sqlite.NewTransactionRepository(db),
		credentials:  sqlite.NewCredentialRepository(db),
		db:           db,
	}

	inits := []struct {
		name string
		init func(context.Context) error
	}{
		{"user", st.users.Init},
		{"account", st.accounts.Init},
		{"transaction", st.transactions.Init},
		{"credential", st.credentials.Init},
	}
	for _, repo := range inits {
		if err := repo.init(ctx); err != nil {
			db.Close()
			return stores{}, fmt.Errorf("init %s repository: %w", repo.name, err)
		}
	}
	logger.Infof("using sqlite database %s", cfg.Database.Path)
	return st, nil
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
