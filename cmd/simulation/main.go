// Command simulation drives a running control-plane server end to end: it
// authenticates, pauses and resumes the system, submits a batch of test
// orders, and polls until every command reaches a terminal state.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	serverAddress = "http://localhost:8787"
	numOrders     = 10
	pollTimeout   = 30 * time.Second
)

var (
	symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}
	sides   = []string{"BUY", "SELL"}
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	token := authenticate()

	call(token, "POST", "/api/v1/state/pause", nil)
	log.Info().Msg("system paused")
	call(token, "POST", "/api/v1/state/resume", nil)
	log.Info().Msg("system resumed")

	ids := make([]int64, 0, numOrders)
	for i := 0; i < numOrders; i++ {
		payload := map[string]interface{}{
			"symbol":   symbols[rand.Intn(len(symbols))],
			"side":     sides[rand.Intn(len(sides))],
			"quantity": float64(rand.Intn(100) + 1),
		}
		raw := call(token, "POST", "/api/v1/orders/test", payload)

		var result struct {
			CommandID int64 `json:"command_id"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			log.Fatal().Err(err).Msg("bad submit response")
		}
		ids = append(ids, result.CommandID)
	}
	log.Info().Int("orders", len(ids)).Msg("test orders submitted")

	deadline := time.Now().Add(pollTimeout)
	done := 0
	failed := 0
	for _, id := range ids {
		for {
			if time.Now().After(deadline) {
				log.Fatal().Int64("command_id", id).Msg("timed out waiting for command")
			}
			raw := call(token, "GET", fmt.Sprintf("/api/v1/commands/%d", id), nil)
			var result struct {
				Command struct {
					Status string `json:"status"`
				} `json:"command"`
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				log.Fatal().Err(err).Msg("bad command response")
			}
			if result.Command.Status == "DONE" {
				done++
				break
			}
			if result.Command.Status == "ERR" {
				failed++
				break
			}
			time.Sleep(500 * time.Millisecond)
		}
	}

	log.Info().Int("done", done).Int("failed", failed).Msg("simulation complete")
	if done == 0 {
		os.Exit(1)
	}
}

func authenticate() string {
	raw := call("", "POST", "/api/v1/auth/token", map[string]interface{}{
		"api_key":    getenv("API_KEY", "centrix-api-key"),
		"api_secret": getenv("API_SECRET", "centrix-api-secret"),
	})
	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(raw, &result); err != nil || result.Token == "" {
		log.Fatal().Msg("authentication failed")
	}
	return result.Token
}

func call(token, method, path string, payload map[string]interface{}) json.RawMessage {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to marshal payload")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, serverAddress+path, body)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read response")
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("bad response body")
	}
	if !parsed.Success {
		message := "unknown error"
		if parsed.Error != nil {
			message = parsed.Error.Message
		}
		log.Fatal().Str("path", path).Str("error", message).Msg("request rejected")
	}
	return parsed.Data
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
