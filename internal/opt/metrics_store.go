package opt

import "sync"

// Counters accumulate route builder outcomes per strategy.
type Counters struct {
	Routes    int     `json:"routes"`
	Swaps     int     `json:"swaps"`
	Failures  int     `json:"failures"`
	DistanceM float64 `json:"distanceM"`
}

var (
	mu    sync.Mutex
	store = map[Strategy]Counters{}
)

func RecordStrategyStats(s Strategy, r Route, err error) {
	mu.Lock()
	c := store[s]
	if err != nil {
		c.Failures++
	} else {
		c.Routes++
		c.Swaps += r.Swaps
		c.DistanceM += r.DistanceM
	}
	store[s] = c
	mu.Unlock()
}

func StrategyStats() map[Strategy]Counters {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[Strategy]Counters, len(store))
	for k, v := range store {
		out[k] = v
	}
	return out
}

func resetStrategyStats() {
	mu.Lock()
	store = map[Strategy]Counters{}
	mu.Unlock()
}
