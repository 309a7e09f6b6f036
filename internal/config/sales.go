package config

import "time"

// SalesConfig carries the seat inventory and reaper tunables.
type SalesConfig struct {
	SeatLockTTL     time.Duration `yaml:"seat_lock_ttl"`
	MaxSeatsPerSale int           `yaml:"max_seats_per_sale"`
	ReaperInterval  time.Duration `yaml:"reaper_interval"`
	ReaperGrace     time.Duration `yaml:"reaper_grace"`
}

func loadSalesConfig() *SalesConfig {
	return &SalesConfig{
		SeatLockTTL:     getEnvAsDuration("SEAT_LOCK_TTL", 10*time.Second),
		MaxSeatsPerSale: getEnvAsInt("MAX_SEATS_PER_SALE", 10),
		ReaperInterval:  getEnvAsDuration("REAPER_INTERVAL", 10*time.Minute),
		ReaperGrace:     getEnvAsDuration("REAPER_GRACE", 30*time.Minute),
	}
}
