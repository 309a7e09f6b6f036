package utils

import "time"

// Application Constants
const (
	AppName    = "TransComarapa"
	AppVersion = "1.0.0"

	// Default values
	DefaultCurrency = "BOB"
	DefaultTimeZone = "America/La_Paz"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Sales
	DefaultSeatLockTTL     = 10 * time.Second
	DefaultMaxSeatsPerSale = 10
	DefaultReaperInterval  = 10 * time.Minute
	DefaultReaperGrace     = 30 * time.Minute

	// HTTP
	RequestTimeout  = 30 * time.Second
	ShutdownTimeout = 10 * time.Second
)

// Response statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error messages
const (
	ErrInternalServer   = "internal server error"
	ErrValidationFailed = "validation failed"
)
