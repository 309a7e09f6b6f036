package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripStatus string

const (
	TripStatusScheduled  TripStatus = "scheduled"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusFinished   TripStatus = "finished"
	TripStatusCancelled  TripStatus = "cancelled"
)

// Trip is one scheduled run of a route by a vehicle. The sales engine only
// reads trips; route/vehicle/trip CRUD is owned by the scheduling back office.
type Trip struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RouteID    primitive.ObjectID `json:"route_id" bson:"route_id"`
	RouteName  string             `json:"route_name" bson:"route_name"`
	VehicleID  primitive.ObjectID `json:"vehicle_id" bson:"vehicle_id"`
	Departure  time.Time          `json:"departure" bson:"departure"`
	Arrival    time.Time          `json:"arrival" bson:"arrival"`
	Price      float64            `json:"price" bson:"price"`
	Currency   string             `json:"currency" bson:"currency" default:"BOB"`
	TotalSeats int                `json:"total_seats" bson:"total_seats"`
	Status     TripStatus         `json:"status" bson:"status" default:"scheduled"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" bson:"updated_at"`
}

// Sellable reports whether seats on this trip may still be sold.
func (t *Trip) Sellable(now time.Time) bool {
	return t.Status == TripStatusScheduled && t.Departure.After(now)
}

// Departed reports whether the trip has left the terminal; departed trips
// can no longer have their sales cancelled.
func (t *Trip) Departed(now time.Time) bool {
	return t.Status != TripStatusScheduled || !t.Departure.After(now)
}

// SeatAvailability is the availability snapshot served to seat pickers.
type SeatAvailability struct {
	TripID    primitive.ObjectID `json:"trip_id"`
	Total     int                `json:"total"`
	Sold      int                `json:"sold"`
	Available int                `json:"available"`
}
