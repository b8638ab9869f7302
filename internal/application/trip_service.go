package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
	redisinfra "github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/logger"
)

// AvailabilityReader は便の正確な空席数を返す（BookingEngine が実装する）
type AvailabilityReader interface {
	AvailableSeats(ctx context.Context, tripID int64) (int, error)
}

// TripAvailability は便と空席数の組
type TripAvailability struct {
	Trip           *trip.Trip
	AvailableSeats int
}

// TripService は便の閲覧を提供する
// 一覧の空席数はキャッシュからの目安で、個別取得は常に正確な値を返す
type TripService struct {
	trips        trip.Repository
	availability AvailabilityReader
	cache        AvailabilityCache
	cacheTTL     time.Duration
	group        singleflight.Group
}

// NewTripService は新しい TripService を作成する。cache は nil でもよい
func NewTripService(trips trip.Repository, availability AvailabilityReader, cache AvailabilityCache, cacheTTL time.Duration) *TripService {
	return &TripService{
		trips:        trips,
		availability: availability,
		cache:        cache,
		cacheTTL:     cacheTTL,
	}
}

// ListTrips は便一覧を出発日時順に返す
func (s *TripService) ListTrips(ctx context.Context) ([]*TripAvailability, error) {
	trips, err := s.trips.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("便一覧取得に失敗: %w", err)
	}

	result := make([]*TripAvailability, 0, len(trips))
	for _, t := range trips {
		available, err := s.availabilityHint(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, &TripAvailability{Trip: t, AvailableSeats: available})
	}
	return result, nil
}

// GetTrip は便と現在の正確な空席数を返す
func (s *TripService) GetTrip(ctx context.Context, tripID int64) (*TripAvailability, error) {
	t, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	available, err := s.availability.AvailableSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return &TripAvailability{Trip: t, AvailableSeats: available}, nil
}

// RefreshAvailability は全便の空席数を再計算してキャッシュに書き込み、更新件数を返す
func (s *TripService) RefreshAvailability(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	trips, err := s.trips.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("便一覧取得に失敗: %w", err)
	}

	refreshed := 0
	for _, t := range trips {
		available, err := s.availability.AvailableSeats(ctx, t.ID)
		if err != nil {
			if errors.Is(err, trip.ErrTripNotFound) {
				continue
			}
			return refreshed, err
		}
		if err := s.cache.Set(ctx, t.ID, available, s.cacheTTL); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}

// availabilityHint はキャッシュを優先して空席数を返す
// キャッシュミス時の再計算は便ごとに1回にまとめる
func (s *TripService) availabilityHint(ctx context.Context, tripID int64) (int, error) {
	if s.cache != nil {
		available, err := s.cache.Get(ctx, tripID)
		if err == nil {
			return available, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.FromContext(ctx).Warn("空席キャッシュの取得に失敗しました", zap.Int64("trip_id", tripID), zap.Error(err))
		}
	}

	v, err, _ := s.group.Do(strconv.FormatInt(tripID, 10), func() (interface{}, error) {
		available, err := s.availability.AvailableSeats(ctx, tripID)
		if err != nil {
			return 0, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, tripID, available, s.cacheTTL); err != nil {
				logger.FromContext(ctx).Warn("空席キャッシュの保存に失敗しました", zap.Int64("trip_id", tripID), zap.Error(err))
			}
		}
		return available, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
