package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/fintrack/internal/config"
	"github.com/templui/fintrack/internal/db"
	"github.com/templui/fintrack/internal/model"
	"github.com/templui/fintrack/internal/repository"
	"github.com/templui/fintrack/internal/service"
	"github.com/templui/fintrack/internal/storage"
)

type App struct {
	Cfg            *config.Config
	DB             *sqlx.DB
	AuthService    *service.AuthService
	ExpenseService *service.RecordService
	IncomeService  *service.RecordService
}

func New(cfg *config.Config) (*App, error) {
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	fileStorage, err := storage.New(cfg)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return NewWithDeps(cfg, database, fileStorage), nil
}

// NewWithDeps wires repositories and services on top of an open database and storage
func NewWithDeps(cfg *config.Config, database *sqlx.DB, fileStorage storage.Storage) *App {
	// Repositories
	userRepository := repository.NewUserRepository(database)
	expenseRepository := repository.NewRecordRepository(database, model.KindExpense)
	incomeRepository := repository.NewRecordRepository(database, model.KindIncome)

	// Services
	authService := service.NewAuthService(userRepository, cfg.JWTSecret, cfg.IsProduction(), cfg.JWTExpiry)
	expenseService := service.NewRecordService(model.KindExpense, expenseRepository, fileStorage, cfg.DefaultCurrency, cfg.MaxUploadSize)
	incomeService := service.NewRecordService(model.KindIncome, incomeRepository, fileStorage, cfg.DefaultCurrency, cfg.MaxUploadSize)

	return &App{
		Cfg:            cfg,
		DB:             database,
		AuthService:    authService,
		ExpenseService: expenseService,
		IncomeService:  incomeService,
	}
}

// RecordServices returns one service per record kind
func (a *App) RecordServices() []*service.RecordService {
	return []*service.RecordService{a.ExpenseService, a.IncomeService}
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
