// internal/clients/embedding_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sarpay/internal/catalog"
)

// EmbeddingClient calls the Python embedding sidecar that vectorizes
// catalog entries for similarity search. The sidecar handles Myanmar
// script itself; we only ship the entry over and report the outcome.
type EmbeddingClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewEmbeddingClient(baseURL string, timeout time.Duration) *EmbeddingClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EmbeddingClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// bookPayload mirrors the sidecar's book model, which calls the title
// field "name".
type bookPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Author       string  `json:"author"`
	Description  string  `json:"description,omitempty"`
	Category     string  `json:"category,omitempty"`
	Edition      string  `json:"edition,omitempty"`
	Price        float64 `json:"price,omitempty"`
	ManuscriptID string  `json:"manuscript_id,omitempty"`
}

type processBookResponse struct {
	BookID   string `json:"book_id"`
	TextHash string `json:"text_hash"`
	Language string `json:"language"`
	Success  bool   `json:"success"`
}

// ProcessBook asks the sidecar to generate and cache an embedding for book.
func (c *EmbeddingClient) ProcessBook(ctx context.Context, book *catalog.Book) error {
	reqBody := struct {
		Book              bookPayload `json:"book"`
		GenerateEmbedding bool        `json:"generate_embedding"`
		UpdateCache       bool        `json:"update_cache"`
	}{
		Book: bookPayload{
			ID:          book.ID.String(),
			Name:        book.Title,
			Author:      book.Author,
			Description: book.Description,
			Category:    book.Category,
			Edition:     book.Edition,
			Price:       book.Price,
		},
		GenerateEmbedding: true,
		UpdateCache:       true,
	}
	if book.ManuscriptID != nil {
		reqBody.Book.ManuscriptID = book.ManuscriptID.String()
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/books/process", c.baseURL), bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result processBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("embedding service did not process book %s", book.ID)
	}

	return nil
}

// Health reports whether the sidecar's model is loaded. The sidecar
// answers 503 while the model is still warming up.
func (c *EmbeddingClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return err
	}
	if status.Status != "healthy" {
		return fmt.Errorf("embedding service status: %s", status.Status)
	}

	return nil
}
