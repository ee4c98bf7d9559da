package app

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/handlers"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/service"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
	"github.com/caarlos0/env/v6"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func Start() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Missing .env is fine; env vars may come from the environment proper.
	_ = godotenv.Load()

	var cfg internal.Config
	var secretFilePath string
	flag.StringVar(&cfg.Address, "a", "localhost:8080", "address to listen on")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database connection string")
	flag.StringVar(&cfg.AdminKey, "k", "", "admin API key")
	flag.StringVar(&cfg.NotifyAddress, "n", "", "notification collaborator address")
	flag.StringVar(&secretFilePath, "s", "", "path to file with secret")
	flag.Parse()
	err = env.Parse(&cfg)
	if err != nil {
		logger.Fatal("parse env error", zap.Error(err))
	}

	db, userStore, referralStore, commissionStore := initStore(cfg, logger)
	defer db.Close()
	defer userStore.Close()
	defer referralStore.Close()
	defer commissionStore.Close()

	secretKey, err := getSecret(secretFilePath)
	if err != nil {
		logger.Fatal("read secret key error", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := &service.CodeRegistry{Store: userStore, Prefix: cfg.Commission.CodePrefix}
	ledger := &service.Ledger{Store: commissionStore, Logger: logger}
	calculator := &service.Calculator{Config: cfg.Commission}
	var notifier service.Notifier
	if cfg.NotifyAddress != "" {
		notifier = service.NewHTTPNotifier(cfg.NotifyAddress)
	}

	authService := &service.AuthServiceImpl{Store: userStore, Registry: registry, SecretKey: secretKey}
	referralService := &service.ReferralServiceImpl{
		Registry:   registry,
		Referrals:  referralStore,
		Users:      userStore,
		Ledger:     ledger,
		Calculator: calculator,
		Notifier:   notifier,
		Config:     cfg.Commission,
		Logger:     logger,
	}
	payoutService := &service.PayoutServiceImpl{
		Users:    userStore,
		Ledger:   ledger,
		Notifier: notifier,
		Config:   cfg.Commission,
		Logger:   logger,
	}
	adminService := &service.AdminServiceImpl{Store: userStore, Registry: registry, Logger: logger}

	r := handlers.NewRouter(handlers.RouterDeps{
		AuthService:     authService,
		ReferralService: referralService,
		PayoutService:   payoutService,
		AdminService:    adminService,
		Ledger:          ledger,
		Users:           userStore,
		Config:          cfg,
		Logger:          logger,
	})

	expirer := service.NewExpirer(referralStore, cfg.Commission.SweepInterval, logger)
	go expirer.Run(ctx)

	logger.Info("started server", zap.String("address", cfg.Address))
	err = http.ListenAndServe(cfg.Address, r)
	logger.Fatal("server stopped", zap.Error(err))
}

func initStore(cfg internal.Config, logger *zap.Logger) (*sql.DB, storage.UserStorage, storage.ReferralStorage, storage.CommissionStorage) {
	if cfg.DatabaseURI == "" {
		logger.Fatal("database URI must be configured")
	}
	db, err := sql.Open("pgx", cfg.DatabaseURI)
	if err != nil {
		logger.Fatal("database connection error", zap.Error(err))
	}
	err = storage.DoMigrations(db)
	if err != nil {
		logger.Fatal("running migrations error", zap.Error(err))
	}
	logger.Info("using database storage", zap.String("uri", cfg.DatabaseURI))
	userStore, err := storage.NewDBUserStorage(db)
	if err != nil {
		logger.Fatal("create user store error", zap.Error(err))
	}
	referralStore, err := storage.NewDBReferralStorage(db)
	if err != nil {
		logger.Fatal("create referral store error", zap.Error(err))
	}
	commissionStore, err := storage.NewDBCommissionStorage(db)
	if err != nil {
		logger.Fatal("create commission store error", zap.Error(err))
	}
	return db, userStore, referralStore, commissionStore
}

func getSecret(path string) ([]byte, error) {
	if path == "" {
		// Only for tests.
		return []byte("my secret key"), nil
	}
	return os.ReadFile(path)
}
