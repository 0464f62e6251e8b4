package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/mes/catalog"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// app 命令共用的配置与日志，在 PersistentPreRunE 中初始化
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:          "nimo-mes",
		Short:        "Manufacturing order tracking service",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 加载 .env 文件
			envFile := config.GetEnvOrDefault("MES_ENV_FILE", ".env")
			if err := godotenv.Load(envFile); err != nil {
				log.Printf("Warning: %s not found, using environment variables", envFile)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			zapLogger, err := initLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			a.cfg = cfg
			a.logger = zapLogger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}

	root.AddCommand(a.serveCommand(), a.migrateCommand(), a.seedCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the MES tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := initDatabase(a.cfg.Database)
			if err != nil {
				return err
			}
			if err := entity.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.logger.Info("MES tables migrated")
			return nil
		},
	}
}

func (a *app) seedCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import products, raw material stock and role grants from a YAML catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = a.cfg.Production.CatalogFile
			}
			c, err := catalog.Load(file)
			if err != nil {
				return err
			}
			db, err := initDatabase(a.cfg.Database)
			if err != nil {
				return err
			}
			if err := entity.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			sum, err := catalog.Seed(cmd.Context(), repository.NewRepositories(db), c, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products, %d raw materials, %d fg stock rows, %d role grants from %s\n",
				sum.Products, sum.RawMaterials, sum.FGStock, sum.RoleGrants, file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file (default production.catalog_file)")
	return cmd
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
