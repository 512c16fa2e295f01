package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/talking-potato/booking-service/pkg/logger"
)

// HTTPStoreDirectory resolves store names from the store service's
// public lookup endpoint.
type HTTPStoreDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStoreDirectory creates a directory client against baseURL
// (e.g. https://talkingpotato.shop/api/stores).
func NewHTTPStoreDirectory(baseURL string, timeout time.Duration) *HTTPStoreDirectory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStoreDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type storeLookupResponse struct {
	StoreID string `json:"store_id"`
	Name    string `json:"name"`
}

// StoreName fetches the display name for storeID.
func (d *HTTPStoreDirectory) StoreName(ctx context.Context, storeID string) (string, error) {
	url := fmt.Sprintf("%s/%s", d.baseURL, storeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build store lookup request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("store lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("store lookup returned status %d", resp.StatusCode)
	}

	var body storeLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode store lookup response: %w", err)
	}
	return body.Name, nil
}

// StaticContactDirectory serves phone numbers from a fixed map, used in
// development and tests. Unknown users resolve to no phone number.
type StaticContactDirectory struct {
	numbers map[string]string
}

// NewStaticContactDirectory creates a directory over the given map.
func NewStaticContactDirectory(numbers map[string]string) *StaticContactDirectory {
	if numbers == nil {
		numbers = make(map[string]string)
	}
	return &StaticContactDirectory{numbers: numbers}
}

// PhoneNumber returns the mapped number, or empty when absent.
func (d *StaticContactDirectory) PhoneNumber(_ context.Context, userName string) (string, error) {
	return d.numbers[userName], nil
}

// LogSMSSender writes messages to the application log instead of an SMS
// gateway. Used where no gateway is configured.
type LogSMSSender struct {
	log *logger.Logger
}

// NewLogSMSSender creates a log-only sender.
func NewLogSMSSender(log *logger.Logger) *LogSMSSender {
	return &LogSMSSender{log: log}
}

// Send logs the message.
func (s *LogSMSSender) Send(_ context.Context, phoneNumber, message string) error {
	s.log.Info("sms (log sender)",
		"phone_number", phoneNumber,
		"message", message,
	)
	return nil
}
