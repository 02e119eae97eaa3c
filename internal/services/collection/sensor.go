package collection

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"fieldcollect-backend/internal/models"
)

// Reading is one bin sensor measurement
type Reading struct {
	Weight    float64 // Kilograms
	FillLevel int     // Percent
	WasteType string
}

// Sensor weighs a bin at collection time
type Sensor interface {
	Read(ctx context.Context, bin models.Bin) (Reading, error)
}

// DefaultFailureProbability is the simulated sensor failure rate
const DefaultFailureProbability = 0.1

const defaultWasteType = "General"

// SimulatedSensor fails with a fixed probability and otherwise produces a
// synthetic reading. All randomness comes from the injected generator so a
// seeded source gives reproducible sessions.
type SimulatedSensor struct {
	mu                 sync.Mutex
	rng                *rand.Rand
	failureProbability float64
}

// NewSimulatedSensor creates a sensor; a nil rng is seeded from the clock
func NewSimulatedSensor(rng *rand.Rand, failureProbability float64) *SimulatedSensor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimulatedSensor{
		rng:                rng,
		failureProbability: math.Max(0, math.Min(1, failureProbability)),
	}
}

// Read returns ErrSensorFailure with the configured probability
func (s *SimulatedSensor) Read(ctx context.Context, _ models.Bin) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.failureProbability {
		return Reading{}, ErrSensorFailure
	}

	weight := 5 + s.rng.Float64()*45
	return Reading{
		Weight:    math.Round(weight*10) / 10,
		FillLevel: 20 + s.rng.Intn(81),
		WasteType: defaultWasteType,
	}, nil
}
