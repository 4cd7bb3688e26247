// Command staticd-top periodically polls a running staticd instance's
// /api/stats endpoint and prints a snapshot, the Go/HTTP equivalent of
// original_source/src/stats_reader.c (which instead attached directly
// to the server's shared-memory segment — /api/stats is the
// process-external view this core actually exposes).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

type statusCodes struct {
	Status200 uint64 `json:"200"`
	Status404 uint64 `json:"404"`
	Status500 uint64 `json:"500"`
}

type cacheStats struct {
	Items     int64   `json:"items"`
	BytesUsed int64   `json:"bytes_used"`
	Capacity  int64   `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

type statsResponse struct {
	TotalRequests     uint64      `json:"total_requests"`
	BytesTransferred  uint64      `json:"bytes_transferred"`
	ActiveConnections int64       `json:"active_connections"`
	AvgResponseTimeMS float64     `json:"avg_response_time_ms"`
	StatusCodes       statusCodes `json:"status_codes"`
	Cache             cacheStats  `json:"cache"`
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "base URL of the running server")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	once := flag.Bool("once", false, "print a single snapshot and exit")
	flag.Parse()

	client := &http.Client{Timeout: 3 * time.Second}
	url := *addr + "/api/stats"

	for {
		snap, err := fetch(client, url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "staticd-top: %v\n", err)
		} else {
			print(snap)
		}
		if *once {
			return
		}
		time.Sleep(*interval)
	}
}

func fetch(client *http.Client, url string) (statsResponse, error) {
	var s statsResponse
	resp, err := client.Get(url)
	if err != nil {
		return s, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return s, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return s, fmt.Errorf("decoding response: %w", err)
	}
	return s, nil
}

func print(s statsResponse) {
	fmt.Printf("total_requests=%d bytes_transferred=%d active_connections=%d avg_response_time_ms=%.2f status_200=%d status_404=%d status_500=%d cache_items=%d cache_bytes=%d cache_hit_rate=%.2f%%\n",
		s.TotalRequests, s.BytesTransferred, s.ActiveConnections, s.AvgResponseTimeMS,
		s.StatusCodes.Status200, s.StatusCodes.Status404, s.StatusCodes.Status500,
		s.Cache.Items, s.Cache.BytesUsed, s.Cache.HitRate)
}
