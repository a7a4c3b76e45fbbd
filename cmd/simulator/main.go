package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Synthetic walkers for demos and load checks. Each walker wanders from a
// shared center, reports its position every tick and sometimes tries to
// claim the cell it is standing on.

const metersPerDegreeLat = 111320.0

type walker struct {
	id      string
	name    string
	lat     float64
	lon     float64
	heading float64 // radians, clockwise from north
	speed   float64 // meters per second
	homeLat float64
	homeLon float64
}

func (w *walker) step(interval time.Duration) {
	w.heading += (rand.Float64() - 0.5) * math.Pi / 4

	// Turn back once a walker drifts ~2km from home.
	if distanceMeters(w.lat, w.lon, w.homeLat, w.homeLon) > 2000 {
		w.heading += math.Pi
	}

	dist := w.speed * interval.Seconds()
	w.lat += dist * math.Cos(w.heading) / metersPerDegreeLat
	w.lon += dist * math.Sin(w.heading) / (metersPerDegreeLat * math.Cos(w.lat*math.Pi/180))
}

func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * metersPerDegreeLat
	dLon := (lon2 - lon1) * metersPerDegreeLat * math.Cos(lat1*math.Pi/180)
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

type apiClient struct {
	base string
	hc   *http.Client
}

func (c *apiClient) post(ctx context.Context, path string, w *walker, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Player-ID", w.id)
	req.Header.Set("X-Player-Name", w.name)

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

type counters struct {
	positions atomic.Int64
	rejected  atomic.Int64
	claimed   atomic.Int64
	denied    atomic.Int64
	errors    atomic.Int64
}

func main() {
	var (
		base        = flag.String("base", "http://localhost:8080", "API base URL")
		walkers     = flag.Int("walkers", 25, "number of simulated players")
		interval    = flag.Duration("interval", 3*time.Second, "tick interval")
		claimChance = flag.Float64("claim-chance", 0.15, "per-tick probability a walker claims its cell")
		centerLat   = flag.Float64("lat", 43.2630, "center latitude")
		centerLon   = flag.Float64("lon", -2.9350, "center longitude")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &apiClient{
		base: *base,
		hc:   &http.Client{Timeout: 10 * time.Second},
	}

	pop := make([]*walker, *walkers)
	for i := range pop {
		// Scatter starts within ~500m of the center.
		lat := *centerLat + (rand.Float64()-0.5)*1000/metersPerDegreeLat
		lon := *centerLon + (rand.Float64()-0.5)*1000/(metersPerDegreeLat*math.Cos(*centerLat*math.Pi/180))
		pop[i] = &walker{
			id:      fmt.Sprintf("sim-walker-%02d", i+1),
			name:    fmt.Sprintf("Walker %02d", i+1),
			lat:     lat,
			lon:     lon,
			heading: rand.Float64() * 2 * math.Pi,
			speed:   1.0 + rand.Float64()*1.5,
			homeLat: *centerLat,
			homeLon: *centerLon,
		}
	}

	log.Printf("[sim] %d walkers against %s, tick %s", len(pop), *base, *interval)

	var stats counters
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	report := time.NewTicker(30 * time.Second)
	defer report.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sem := make(chan struct{}, 8)
	for {
		select {
		case <-quit:
			log.Printf("[sim] stopping: positions=%d rejected=%d claimed=%d denied=%d errors=%d",
				stats.positions.Load(), stats.rejected.Load(), stats.claimed.Load(), stats.denied.Load(), stats.errors.Load())
			cancel()
			return
		case <-report.C:
			log.Printf("[sim] positions=%d rejected=%d claimed=%d denied=%d errors=%d",
				stats.positions.Load(), stats.rejected.Load(), stats.claimed.Load(), stats.denied.Load(), stats.errors.Load())
		case <-ticker.C:
			var wg sync.WaitGroup
			for _, w := range pop {
				wg.Add(1)
				sem <- struct{}{}
				go func(w *walker) {
					defer wg.Done()
					defer func() { <-sem }()
					tick(ctx, client, w, *interval, *claimChance, &stats)
				}(w)
			}
			wg.Wait()
		}
	}
}

func tick(ctx context.Context, client *apiClient, w *walker, interval time.Duration, claimChance float64, stats *counters) {
	w.step(interval)

	status, err := client.post(ctx, "/v1/positions", w, map[string]any{
		"lat":      w.lat,
		"lon":      w.lon,
		"accuracy": 5 + rand.Float64()*10,
		"speed":    w.speed,
	})
	switch {
	case err != nil:
		stats.errors.Add(1)
		return
	case status == http.StatusUnprocessableEntity:
		stats.rejected.Add(1)
	case status >= 300:
		stats.errors.Add(1)
	default:
		stats.positions.Add(1)
	}

	if rand.Float64() >= claimChance {
		return
	}

	status, err = client.post(ctx, "/v1/claims", w, map[string]any{
		"lat": w.lat,
		"lon": w.lon,
	})
	switch {
	case err != nil:
		stats.errors.Add(1)
	case status == http.StatusOK:
		stats.claimed.Add(1)
	case status == http.StatusConflict || status == http.StatusForbidden || status == http.StatusTooManyRequests:
		stats.denied.Add(1)
	default:
		stats.errors.Add(1)
	}
}
