package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/api/handler"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/config"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/memory"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/mysql"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/logger"
)

// store はドライバごとの永続化層の組
type store struct {
	txm          transaction.Manager
	trips        trip.Repository
	reservations reservation.Repository
	ping         handler.Checker
	close        func() error
}

// openStore は DB_DRIVER に応じてストアを開き、SQL ストアではマイグレーションを適用する
func openStore(cfg *config.Config) (*store, error) {
	dbCfg := &cfg.Database
	migrations := filepath.Join(dbCfg.MigrationsPath, dbCfg.Driver)

	switch dbCfg.Driver {
	case "postgres":
		db, err := postgres.NewConnection(dbCfg)
		if err != nil {
			return nil, err
		}
		version, err := postgres.RunMigrations(db.DB, migrations)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("マイグレーションを適用しました", zap.String("driver", dbCfg.Driver), zap.Uint("version", version))
		return &store{
			txm:          postgres.NewTxManager(db, cfg.Engine.LockTimeout),
			trips:        postgres.NewTripRepository(db),
			reservations: postgres.NewReservationRepository(db),
			ping:         func(ctx context.Context) error { return postgres.Ping(ctx, db) },
			close:        db.Close,
		}, nil
	case "mysql":
		db, err := mysql.NewConnection(dbCfg)
		if err != nil {
			return nil, err
		}
		version, err := mysql.RunMigrations(db.DB, migrations)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("マイグレーションを適用しました", zap.String("driver", dbCfg.Driver), zap.Uint("version", version))
		return &store{
			txm:          mysql.NewTxManager(db, cfg.Engine.LockTimeout),
			trips:        mysql.NewTripRepository(db),
			reservations: mysql.NewReservationRepository(db),
			ping:         func(ctx context.Context) error { return mysql.Ping(ctx, db) },
			close:        db.Close,
		}, nil
	case "memory":
		s := memory.NewStore()
		if err := seedDemo(s); err != nil {
			return nil, err
		}
		return &store{
			txm:          s,
			trips:        memory.NewTripRepository(s),
			reservations: memory.NewReservationRepository(s),
			close:        func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("未対応の DB_DRIVER: %s", dbCfg.Driver)
	}
}

// seedDemo はインメモリストアに動作確認用のバスと便を登録する
func seedDemo(s *memory.Store) error {
	buses := []*trip.Bus{
		trip.NewBus("KA-101", 50, 350000),
		trip.NewBus("KA-202", 30, 420000),
	}
	for _, b := range buses {
		if err := s.AddBus(b); err != nil {
			return err
		}
	}

	day := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	trips := []*trip.Trip{
		trip.NewTrip(buses[0], "Tokyo", "Osaka", day, "08:30:00"),
		trip.NewTrip(buses[0], "Osaka", "Tokyo", day, "18:00:00"),
		trip.NewTrip(buses[1], "Tokyo", "Sendai", day, "09:15:00"),
	}
	for _, t := range trips {
		if err := s.AddTrip(t); err != nil {
			return err
		}
	}
	return nil
}
