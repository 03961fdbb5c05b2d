// internal/clients/marketing_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"sarpay/internal/catalog"
)

// MarketingClient posts new-release announcements to the marketing
// automation webhook. Announcements go through a circuit breaker: when
// the automation platform degrades, publishes fail the marketing step
// fast instead of stacking up timeouts inside the saga.
type MarketingClient struct {
	webhookURL string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewMarketingClient(webhookURL, token string, timeout time.Duration) *MarketingClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarketingClient{
		webhookURL: webhookURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "marketing",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
			},
		}),
	}
}

type announcement struct {
	Event    string  `json:"event"`
	BookID   string  `json:"book_id"`
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Category string  `json:"category,omitempty"`
	Edition  string  `json:"edition,omitempty"`
	Price    float64 `json:"price"`
}

// AnnounceBook fires the book-launch campaign for book. Once the webhook
// accepts the event the campaign cannot be retracted.
func (c *MarketingClient) AnnounceBook(ctx context.Context, book *catalog.Book) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, announcement{
			Event:    "book.published",
			BookID:   book.ID.String(),
			Title:    book.Title,
			Author:   book.Author,
			Category: book.Category,
			Edition:  book.Edition,
			Price:    book.Price,
		})
	})
	return err
}

func (c *MarketingClient) post(ctx context.Context, a announcement) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// TestConnection checks that the webhook endpoint is reachable. It skips
// the breaker so a health probe never trips it or gets blocked by it.
// Automation platforms answer GET on webhook URLs with anything from 200
// to 405; only transport errors and 5xx count as down.
func (c *MarketingClient) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.webhookURL, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}
