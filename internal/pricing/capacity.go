package pricing

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

// Availability is the response of GET /weekender/pass-status.
type Availability struct {
	PassType  model.PassType `json:"passType"`
	Day       string         `json:"day,omitempty"`
	Completed int            `json:"completed"`
	Limit     int            `json:"limit"`
	SoldOut   bool           `json:"soldOut"`
}

// CapacityChecker enforces fixed integer limits on pass types. The day pass
// limit applies to each day separately.
type CapacityChecker struct {
	counter CompletedCounter
	limits  map[model.PassType]int
}

// NewCapacityChecker builds a checker. Pass types without a positive limit
// are unlimited.
func NewCapacityChecker(counter CompletedCounter, limits map[model.PassType]int) *CapacityChecker {
	return &CapacityChecker{counter: counter, limits: limits}
}

// Availability counts complete registrations for the pass (and day, for the
// day pass) against its limit.
func (c *CapacityChecker) Availability(ctx context.Context, pass model.PassType, day string) (Availability, error) {
	if pass != model.PassDay {
		day = ""
	}
	n, err := c.counter.CountComplete(ctx, pass, day)
	if err != nil {
		return Availability{}, fmt.Errorf("count %s passes: %w", pass, err)
	}
	limit := c.limits[pass]
	return Availability{
		PassType:  pass,
		Day:       day,
		Completed: n,
		Limit:     limit,
		SoldOut:   limit > 0 && n >= limit,
	}, nil
}
