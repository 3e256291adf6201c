package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agendazap/agendazap/internal/models"
)

// DefaultHTTPTimeout bounds calls to the remote order backend so a slow
// collaborator cannot hold a conversation turn indefinitely.
const DefaultHTTPTimeout = 10 * time.Second

// HTTPBackend consumes a remote order backend over its REST contract:
// GET /slots for availability, POST /orders for the atomic commit. The
// remote side owns the re-validation; this client only surfaces the
// boolean outcome.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a client for the order backend at baseURL.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
	}
}

// AvailableSlots fetches available slots for an endpoint and date.
func (b *HTTPBackend) AvailableSlots(ctx context.Context, endpoint, date string) ([]models.Slot, error) {
	u := fmt.Sprintf("%s/slots?endpoint=%s&date=%s", b.baseURL, url.QueryEscape(endpoint), url.QueryEscape(date))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build slots request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		slog.Error("HTTPBackend AvailableSlots request failed", "error", err, "endpoint", endpoint, "date", date)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Error("HTTPBackend AvailableSlots unexpected status", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: slots returned status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	var payload struct {
		Slots []models.Slot `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode slots response: %w", err)
	}

	// Only available slots ever reach the engine.
	slots := payload.Slots[:0]
	for _, s := range payload.Slots {
		if s.Status == models.SlotAvailable {
			slots = append(slots, s)
		}
	}
	slog.Debug("HTTPBackend AvailableSlots succeeded", "endpoint", endpoint, "date", date, "count", len(slots))
	return slots, nil
}

// BookSlot posts the commit request. A 409 means the slot was lost to a
// competing booking and maps to an ordinary failure result.
func (b *HTTPBackend) BookSlot(ctx context.Context, req models.BookingRequest) (models.BookingResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.BookingResult{}, fmt.Errorf("marshal booking request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return models.BookingResult{}, fmt.Errorf("build booking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		slog.Error("HTTPBackend BookSlot request failed", "error", err, "slotID", req.SlotID)
		return models.BookingResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict, http.StatusNotFound:
		var result models.BookingResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return models.BookingResult{}, fmt.Errorf("decode booking response: %w", err)
		}
		slog.Debug("HTTPBackend BookSlot completed", "slotID", req.SlotID, "booked", result.Booked, "reason", result.Reason)
		return result, nil
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Error("HTTPBackend BookSlot unexpected status", "status", resp.StatusCode, "body", string(respBody))
		return models.BookingResult{}, fmt.Errorf("%w: orders returned status %d", ErrBackendUnavailable, resp.StatusCode)
	}
}
