// Package pricing decides what a weekender pass costs right now and whether
// fixed-capacity passes are still available.
package pricing

import (
	"fmt"
	"strconv"
	"strings"
)

// Tier is one step of the weekend price ladder. Threshold is the cumulative
// number of complete registrations after which the tier is sold out; zero
// means the tier never sells out.
type Tier struct {
	Name      string
	Threshold int
	Single    int64
	Couple    int64
}

// Tiers is the ordered price ladder, cheapest first.
type Tiers []Tier

// Decode parses "name:threshold:single:couple" entries separated by commas.
// It satisfies envconfig.Decoder.
func (t *Tiers) Decode(value string) error {
	var out Tiers
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 4 {
			return fmt.Errorf("tier %q: want name:threshold:single:couple", raw)
		}
		threshold, err := strconv.Atoi(parts[1])
		if err != nil || threshold < 0 {
			return fmt.Errorf("tier %q: invalid threshold", raw)
		}
		single, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || single < 0 {
			return fmt.Errorf("tier %q: invalid single price", raw)
		}
		couple, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil || couple < 0 {
			return fmt.Errorf("tier %q: invalid couple price", raw)
		}
		out = append(out, Tier{
			Name:      strings.TrimSpace(parts[0]),
			Threshold: threshold,
			Single:    single,
			Couple:    couple,
		})
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*t = out
	return nil
}

// Validate checks that thresholds increase and only the last tier is
// unlimited.
func (t Tiers) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("no price tiers defined")
	}
	prev := 0
	for i, tier := range t {
		if tier.Name == "" {
			return fmt.Errorf("tier %d has no name", i)
		}
		last := i == len(t)-1
		if tier.Threshold == 0 && !last {
			return fmt.Errorf("tier %s: only the last tier may be unlimited", tier.Name)
		}
		if tier.Threshold != 0 && tier.Threshold <= prev {
			return fmt.Errorf("tier %s: threshold %d must exceed %d", tier.Name, tier.Threshold, prev)
		}
		prev = tier.Threshold
	}
	return nil
}

// IndexFor returns the tier that applies once completed passes are sold.
func (t Tiers) IndexFor(completed int) int {
	for i, tier := range t {
		if tier.Threshold == 0 || completed < tier.Threshold {
			return i
		}
	}
	return len(t) - 1
}

// Lookup finds a tier by name, ignoring case.
func (t Tiers) Lookup(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for i, tier := range t {
		if strings.EqualFold(tier.Name, name) {
			return i, true
		}
	}
	return 0, false
}

// Default is the ladder used when nothing is configured.
var Default = Tiers{
	{Name: "now", Threshold: 40, Single: 160000, Couple: 320000},
	{Name: "now-now", Threshold: 80, Single: 180000, Couple: 360000},
	{Name: "just-now", Threshold: 120, Single: 200000, Couple: 400000},
	{Name: "ai-tog", Threshold: 0, Single: 220000, Couple: 440000},
}
