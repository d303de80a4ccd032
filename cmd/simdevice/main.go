// Command simdevice emits synthetic TTN-style uplinks against a running
// flood-watch service. It random-walks the measured distance so a long run
// crosses the WARN and ALERT thresholds and exercises transitions, and signs
// each body when a secret is given.
//
// Usage:
//
//	go run ./cmd/simdevice \
//	  -url http://localhost:8080/v1/uplink \
//	  -device sim-river-01 -count 20 -interval 5s -secret dev-secret
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/couchcryptid/flood-watch-service/internal/signature"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	url := flag.String("url", "http://localhost:8080/v1/uplink", "ingestion endpoint URL")
	device := flag.String("device", "sim-river-01", "device identifier")
	secret := flag.String("secret", "", "webhook secret; empty sends unsigned uplinks")
	count := flag.Int("count", 10, "number of uplinks to send")
	interval := flag.Duration("interval", 5*time.Second, "delay between uplinks")
	startCm := flag.Float64("start-cm", 180, "initial measured distance in cm")
	snake := flag.Bool("snake-case", false, "emit snake_case payload field names")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	distance := *startCm

	for i := 0; i < *count; i++ {
		// Drift downward on average so the simulated water rises.
		distance += rand.Float64()*10 - 7
		if distance < 0 {
			distance = 0
		}

		body, err := buildUplink(*device, distance, *snake)
		if err != nil {
			return err
		}
		if err := send(client, *url, *secret, body); err != nil {
			return err
		}

		if i < *count-1 {
			time.Sleep(*interval)
		}
	}
	return nil
}

func buildUplink(deviceID string, distanceCm float64, snakeCase bool) ([]byte, error) {
	decoded := map[string]any{}
	if snakeCase {
		decoded["distance_cm"] = round1(distanceCm)
		decoded["battery_v"] = 3.6
	} else {
		decoded["distanceCm"] = round1(distanceCm)
		decoded["batteryV"] = 3.6
	}

	envelope := map[string]any{
		"end_device_ids": map[string]any{"device_id": deviceID},
		"received_at":    time.Now().UTC().Format(time.RFC3339Nano),
		"uplink_message": map[string]any{
			"decoded_payload": decoded,
			"rx_metadata": []map[string]any{
				{"gateway_ids": map[string]any{"gateway_id": "sim-gw-1"}, "rssi": -97.0, "snr": 7.5},
				{"gateway_ids": map[string]any{"gateway_id": "sim-gw-2"}, "rssi": -104.0, "snr": 4.25},
			},
		},
	}
	return json.Marshal(envelope)
}

func send(client *http.Client, url, secret string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Uplink-Signature", signature.Sign(body, secret))
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	log.Printf("%d %s", resp.StatusCode, bytes.TrimSpace(respBody))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error: %d", resp.StatusCode)
	}
	return nil
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
