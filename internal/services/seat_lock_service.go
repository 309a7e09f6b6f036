package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SeatLockSet holds the per-seat lock tokens acquired for one checkout.
// Tokens guard the release: a lock that expired and was re-acquired by
// someone else is never deleted by the original holder.
type SeatLockSet struct {
	TripID primitive.ObjectID
	Seats  []int
	tokens map[int]string
}

type SeatLockService interface {
	// AcquireSeats takes short-lived locks on every requested seat, in
	// ascending order, all-or-nothing. On contention it returns a
	// SeatLockedError naming the blocked seats.
	AcquireSeats(ctx context.Context, tripID primitive.ObjectID, seats []int) (*SeatLockSet, error)

	// Release drops the locks still held by this set. Safe to call after
	// expiry; errors are logged, not returned, because release runs on
	// every checkout exit path.
	Release(ctx context.Context, set *SeatLockSet)

	// LockedSeats reports which of the given seats currently carry a lock.
	LockedSeats(ctx context.Context, tripID primitive.ObjectID, seats []int) ([]int, error)
}

type seatLockService struct {
	cache   CacheService
	lockTTL time.Duration
	logger  *logger.Logger
}

func NewSeatLockService(cache CacheService, lockTTL time.Duration, log *logger.Logger) SeatLockService {
	return &seatLockService{
		cache:   cache,
		lockTTL: lockTTL,
		logger:  log,
	}
}

func seatLockKey(tripID primitive.ObjectID, seat int) string {
	return fmt.Sprintf("seat_lock:%s:%d", tripID.Hex(), seat)
}

func (s *seatLockService) AcquireSeats(ctx context.Context, tripID primitive.ObjectID, seats []int) (*SeatLockSet, error) {
	ordered := make([]int, len(seats))
	copy(ordered, seats)
	sort.Ints(ordered)

	set := &SeatLockSet{
		TripID: tripID,
		tokens: make(map[int]string, len(ordered)),
	}

	var blocked []int
	for _, seat := range ordered {
		token := uuid.New().String()
		ok, err := s.cache.SetNX(ctx, seatLockKey(tripID, seat), token, s.lockTTL)
		if err != nil {
			s.Release(ctx, set)
			return nil, fmt.Errorf("failed to acquire seat lock: %w", err)
		}
		if !ok {
			blocked = append(blocked, seat)
			continue
		}
		set.Seats = append(set.Seats, seat)
		set.tokens[seat] = token
	}

	if len(blocked) > 0 {
		s.Release(ctx, set)
		return nil, &domain.SeatLockedError{Seats: blocked}
	}

	return set, nil
}

func (s *seatLockService) Release(ctx context.Context, set *SeatLockSet) {
	if set == nil {
		return
	}
	for _, seat := range set.Seats {
		token, ok := set.tokens[seat]
		if !ok {
			continue
		}
		released, err := s.cache.ReleaseIfHeld(ctx, seatLockKey(set.TripID, seat), token)
		if err != nil {
			s.logger.WithError(err).WithTripID(set.TripID).
				WithField("seat", seat).Warn("failed to release seat lock")
			continue
		}
		if !released {
			// Lock expired and may belong to someone else now; leaving
			// it alone is the whole point of the token check.
			s.logger.WithTripID(set.TripID).WithField("seat", seat).
				Debug("seat lock already expired")
		}
	}
	set.Seats = nil
	set.tokens = map[int]string{}
}

func (s *seatLockService) LockedSeats(ctx context.Context, tripID primitive.ObjectID, seats []int) ([]int, error) {
	var locked []int
	for _, seat := range seats {
		exists, err := s.cache.Exists(ctx, seatLockKey(tripID, seat))
		if err != nil {
			return nil, fmt.Errorf("failed to check seat lock: %w", err)
		}
		if exists {
			locked = append(locked, seat)
		}
	}
	return locked, nil
}
