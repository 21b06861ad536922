package matcher

import (
	"errors"
	"fmt"
	"math"
)

// Config holds the search policy. It is built once by the process wiring and
// handed to NewService; nothing in this package reads the environment.
type Config struct {
	MaxDeviationKm     float64
	DefaultDeviationKm float64
	CandidateBufferKm  float64
	CandidateLimit     int
	DefaultPageSize    int
	MaxPageSize        int
	TruckSpeedKmh      float64
}

func DefaultConfig() Config {
	return Config{
		MaxDeviationKm:     100,
		DefaultDeviationKm: 50,
		CandidateBufferKm:  50,
		CandidateLimit:     200,
		DefaultPageSize:    20,
		MaxPageSize:        100,
		TruckSpeedKmh:      45,
	}
}

func (c Config) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"max deviation", c.MaxDeviationKm},
		{"default deviation", c.DefaultDeviationKm},
		{"candidate buffer", c.CandidateBufferKm},
		{"truck speed", c.TruckSpeedKmh},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			errs = append(errs, fmt.Errorf("%s must be a finite number, got %v", f.name, f.v))
		}
	}
	if c.MaxDeviationKm <= 0 || c.MaxDeviationKm > 1000 {
		errs = append(errs, fmt.Errorf("max deviation must be in (0, 1000] km, got %v", c.MaxDeviationKm))
	}
	if c.DefaultDeviationKm <= 0 || c.DefaultDeviationKm > c.MaxDeviationKm {
		errs = append(errs, fmt.Errorf("default deviation must be in (0, max deviation], got %v", c.DefaultDeviationKm))
	}
	if c.CandidateBufferKm < 0 {
		errs = append(errs, fmt.Errorf("candidate buffer cannot be negative, got %v", c.CandidateBufferKm))
	}
	if c.CandidateLimit <= 0 {
		errs = append(errs, fmt.Errorf("candidate limit must be > 0, got %d", c.CandidateLimit))
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		errs = append(errs, fmt.Errorf("default page size must be in (0, max page size], got %d", c.DefaultPageSize))
	}
	if c.TruckSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("truck speed must be > 0, got %v", c.TruckSpeedKmh))
	}
	return errors.Join(errs...)
}
