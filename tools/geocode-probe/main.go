// Command geocode-probe replays addresses against the geocoding provider at a fixed
// rate, to check how a batch size and delay hold up against the provider's quota.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/agenda-ingest/internal/adapter/geocoding"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/pkg/logger"
)

func main() {
	baseURL := flag.String("url", "https://api.openrouteservice.org", "Provider base URL")
	apiKey := flag.String("api-key", os.Getenv("ORS_API_KEY"), "Provider API key")
	country := flag.String("country", "FR", "Country boundary hint")
	concurrency := flag.Int("c", 4, "Number of concurrent workers")
	duration := flag.Duration("d", 2*time.Minute, "Maximum duration of the probe")
	rpm := flag.Int("rpm", 40, "Requests per minute limit")
	flag.Parse()

	var addresses []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			addresses = append(addresses, line)
		}
	}
	if len(addresses) == 0 {
		log.Fatal("no addresses on stdin (one free-text address per line)")
	}

	log.Printf("Probing %s with %d addresses", *baseURL, len(addresses))
	log.Printf("Concurrency: %d, Duration: %s, RPM: %d", *concurrency, *duration, *rpm)

	client := geocoding.NewClient(geocoding.Options{
		BaseURL:     *baseURL,
		APIKey:      *apiKey,
		CountryHint: *country,
	}, logger.New("warn"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(*rpm)), 1)
	jobs := make(chan string)
	var found, notFound, transient atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				switch client.Geocode(ctx, domain.Address{Street: q}).Status {
				case domain.GeocodeFound:
					found.Add(1)
				case domain.GeocodeNotFound:
					notFound.Add(1)
				default:
					transient.Add(1)
				}
			}
		}()
	}

feed:
	for _, q := range addresses {
		select {
		case jobs <- q:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	total := found.Load() + notFound.Load() + transient.Load()
	elapsed := time.Since(start)

	log.Println("Probe finished.")
	log.Printf("Total Requests: %d", total)
	log.Printf("Found: %d", found.Load())
	log.Printf("Not found: %d", notFound.Load())
	log.Printf("Transient (429/5xx/network): %d", transient.Load())
	log.Printf("Actual RPM: %.2f", float64(total)/elapsed.Minutes())
}
