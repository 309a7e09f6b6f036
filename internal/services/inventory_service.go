package services

import (
	"context"
	"fmt"
	"time"

	"transcomarapa/internal/models"
	"transcomarapa/internal/repositories/interfaces"
	"transcomarapa/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SeatState string

const (
	SeatFree SeatState = "free"
	SeatHeld SeatState = "held"
	SeatSold SeatState = "sold"
)

type SeatMapEntry struct {
	Seat  int       `json:"seat"`
	State SeatState `json:"state"`
}

// SeatMap is the per-seat view for the seat picker. Held seats are advisory:
// the lock backing them can expire at any moment.
type SeatMap struct {
	TripID primitive.ObjectID `json:"trip_id"`
	Seats  []SeatMapEntry     `json:"seats"`
}

type InventoryService interface {
	GetSeatAvailability(ctx context.Context, tripID primitive.ObjectID) (*models.SeatAvailability, error)
	GetSeatMap(ctx context.Context, tripID primitive.ObjectID) (*SeatMap, error)
	ListSellableTrips(ctx context.Context, params *utils.PaginationParams) ([]*models.Trip, int64, error)
}

type inventoryService struct {
	tripRepo   interfaces.TripRepository
	ticketRepo interfaces.TicketRepository
	seatLocks  SeatLockService
	cache      CacheService
}

func NewInventoryService(tripRepo interfaces.TripRepository, ticketRepo interfaces.TicketRepository, seatLocks SeatLockService, cache CacheService) InventoryService {
	return &inventoryService{
		tripRepo:   tripRepo,
		ticketRepo: ticketRepo,
		seatLocks:  seatLocks,
		cache:      cache,
	}
}

func availabilityCacheKey(tripID primitive.ObjectID) string {
	return fmt.Sprintf("seat_avail:%s", tripID.Hex())
}

func (s *inventoryService) GetSeatAvailability(ctx context.Context, tripID primitive.ObjectID) (*models.SeatAvailability, error) {
	var cached models.SeatAvailability
	if err := s.cache.Get(ctx, availabilityCacheKey(tripID), &cached); err == nil {
		return &cached, nil
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	sold, err := s.ticketRepo.CountByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	availability := &models.SeatAvailability{
		TripID:    trip.ID,
		Total:     trip.TotalSeats,
		Sold:      int(sold),
		Available: trip.TotalSeats - int(sold),
	}

	// Short TTL: the snapshot is advisory, checkout re-validates under locks.
	_ = s.cache.Set(ctx, availabilityCacheKey(tripID), availability, 5*time.Second)

	return availability, nil
}

func (s *inventoryService) GetSeatMap(ctx context.Context, tripID primitive.ObjectID) (*SeatMap, error) {
	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	soldSeats, err := s.ticketRepo.SoldSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}
	sold := make(map[int]bool, len(soldSeats))
	for _, seat := range soldSeats {
		sold[seat] = true
	}

	var unsold []int
	for seat := 1; seat <= trip.TotalSeats; seat++ {
		if !sold[seat] {
			unsold = append(unsold, seat)
		}
	}

	lockedSeats, err := s.seatLocks.LockedSeats(ctx, tripID, unsold)
	if err != nil {
		return nil, err
	}
	locked := make(map[int]bool, len(lockedSeats))
	for _, seat := range lockedSeats {
		locked[seat] = true
	}

	seatMap := &SeatMap{
		TripID: trip.ID,
		Seats:  make([]SeatMapEntry, 0, trip.TotalSeats),
	}
	for seat := 1; seat <= trip.TotalSeats; seat++ {
		state := SeatFree
		switch {
		case sold[seat]:
			state = SeatSold
		case locked[seat]:
			state = SeatHeld
		}
		seatMap.Seats = append(seatMap.Seats, SeatMapEntry{Seat: seat, State: state})
	}

	return seatMap, nil
}

func (s *inventoryService) ListSellableTrips(ctx context.Context, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	return s.tripRepo.ListSellable(ctx, time.Now(), params)
}
