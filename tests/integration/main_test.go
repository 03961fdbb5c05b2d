// tests/integration/main_test.go
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarpay/internal/catalog"
	"sarpay/internal/clients"
	"sarpay/internal/manuscript"
	"sarpay/internal/publication"
	"sarpay/internal/purchase"
	"sarpay/internal/steplog"
)

// TestSuite wires the whole service the way cmd/publishing does, over the
// in-memory stores and httptest stand-ins for the embedding sidecar and the
// marketing webhook.
type TestSuite struct {
	server      *httptest.Server
	books       *catalog.MemoryStore
	manuscripts *manuscript.MemoryStore
	attempts    *steplog.MemoryStore

	mu             sync.Mutex
	embeddingDown  bool
	marketingDown  bool
	marketingCalls int
}

func setupTestSuite(t *testing.T) *TestSuite {
	t.Helper()

	ts := &TestSuite{
		books:       catalog.NewMemoryStore(),
		manuscripts: manuscript.NewMemoryStore(),
		attempts:    steplog.NewMemoryStore(),
	}

	embeddingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		down := ts.embeddingDown
		ts.mu.Unlock()

		switch r.URL.Path {
		case "/health":
			json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
		case "/books/process":
			if down {
				http.Error(w, "model crashed", http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(embeddingSrv.Close)

	marketingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		down := ts.marketingDown
		if r.Method == http.MethodPost {
			ts.marketingCalls++
		}
		ts.mu.Unlock()

		if down {
			http.Error(w, "campaign engine down", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(marketingSrv.Close)

	embeddingClient := clients.NewEmbeddingClient(embeddingSrv.URL, 5*time.Second)
	marketingClient := clients.NewMarketingClient(marketingSrv.URL, "test-token", 5*time.Second)

	purchaseStore := purchase.NewMemoryStore(ts.books)

	catalogHandler := catalog.NewHandler(catalog.NewService(ts.books))
	purchaseHandler := purchase.NewHandler(purchase.NewService(purchaseStore))
	publicationHandler := publication.NewHandler(publication.NewService(
		ts.books,
		ts.manuscripts,
		ts.attempts,
		embeddingClient,
		marketingClient,
		publication.Config{},
	))

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/publish", publicationHandler.HandlePublish)
		r.Get("/books", catalogHandler.HandleSearch)
		r.Get("/books/{bookID}", catalogHandler.HandleGetBook)
		r.Post("/books/{bookID}/inventory", catalogHandler.HandleAdjustInventory)
		r.Post("/books/{bookID}/marketing/retry", publicationHandler.HandleRetryMarketing)
		r.Post("/books/{bookID}/embedding/retry", publicationHandler.HandleRetryEmbedding)
		r.Get("/books/{bookID}/attempts", publicationHandler.HandleAttemptHistory)
	})
	router.Post("/webhooks/payment", purchaseHandler.HandlePaymentWebhook)

	ts.server = httptest.NewServer(router)
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *TestSuite) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.server.URL+path, "application/json", bytes.NewBuffer(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (ts *TestSuite) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()

	resp, err := http.Get(ts.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func publishBody(totalCopies int) map[string]interface{} {
	return map[string]interface{}{
		"title":        "ရွှေအိမ်စည်",
		"author":       "Journal Kyaw Ma Ma Lay",
		"description":  "A classic novel of colonial-era Burma",
		"category":     "fiction",
		"edition":      "reprint",
		"price":        6000,
		"total_copies": totalCopies,
	}
}

func TestPublishPurchaseAndAdjustFlow(t *testing.T) {
	ts := setupTestSuite(t)

	// Publish a book with 20 declared copies.
	resp, body := ts.post(t, "/api/v1/publish", publishBody(20))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "succeeded", body["embedding"].(map[string]interface{})["status"])
	assert.Equal(t, "succeeded", body["marketing"].(map[string]interface{})["status"])

	bookID := body["book"].(map[string]interface{})["id"].(string)

	// A confirmed payment sells 5 physical copies.
	webhook := map[string]interface{}{
		"payment_ref": "pay_e2e_001",
		"buyer_id":    "buyer-1",
		"lines": []map[string]interface{}{
			{"book_id": bookID, "delivery": "physical", "quantity": 5, "unit_price": 6000},
		},
	}
	resp, body = ts.post(t, "/webhooks/payment", webhook)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines := body["lines"].([]interface{})
	require.Len(t, lines, 1)
	assert.Equal(t, "recorded", lines[0].(map[string]interface{})["status"])

	// Redelivering the same webhook changes nothing.
	resp, body = ts.post(t, "/webhooks/payment", webhook)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines = body["lines"].([]interface{})
	assert.Equal(t, "already_recorded", lines[0].(map[string]interface{})["status"])

	resp, body = ts.get(t, "/api/v1/books/"+bookID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["sold"])
	assert.Equal(t, float64(15), body["available"])

	// Deducting below the 5 sold copies is rejected, state unchanged.
	resp, body = ts.post(t, fmt.Sprintf("/api/v1/books/%s/inventory", bookID), map[string]interface{}{
		"direction": "deduct",
		"amount":    16,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_adjustment", body["error"].(map[string]interface{})["code"])

	// Deducting down to exactly the sold count is allowed.
	resp, body = ts.post(t, fmt.Sprintf("/api/v1/books/%s/inventory", bookID), map[string]interface{}{
		"direction": "deduct",
		"amount":    15,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["total_copies"])
	assert.Equal(t, float64(0), body["available"])

	// Overselling the exhausted stock is rejected per line; the digital line
	// of the same payment still records.
	resp, body = ts.post(t, "/webhooks/payment", map[string]interface{}{
		"payment_ref": "pay_e2e_002",
		"buyer_id":    "buyer-2",
		"lines": []map[string]interface{}{
			{"book_id": bookID, "delivery": "physical", "quantity": 1, "unit_price": 6000},
			{"book_id": bookID, "delivery": "digital", "quantity": 1, "unit_price": 4000},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines = body["lines"].([]interface{})
	require.Len(t, lines, 2)
	assert.Equal(t, "rejected", lines[0].(map[string]interface{})["status"])
	assert.Equal(t, "insufficient_stock", lines[0].(map[string]interface{})["code"])
	assert.Equal(t, "recorded", lines[1].(map[string]interface{})["status"])
}

func TestPublishDegradedThenRetryMarketing(t *testing.T) {
	ts := setupTestSuite(t)

	ts.mu.Lock()
	ts.marketingDown = true
	ts.mu.Unlock()

	resp, body := ts.post(t, "/api/v1/publish", publishBody(5))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Degraded, not failed: the book exists, marketing is marked failed.
	assert.Equal(t, true, body["success"])
	marketing := body["marketing"].(map[string]interface{})
	assert.Equal(t, "failed", marketing["status"])
	assert.NotEmpty(t, marketing["error"])

	bookID := body["book"].(map[string]interface{})["id"].(string)

	resp, _ = ts.get(t, "/api/v1/books/"+bookID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The failed attempt is durably queryable.
	resp, body = ts.get(t, fmt.Sprintf("/api/v1/books/%s/attempts", bookID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	attempts := body["attempts"].([]interface{})
	require.Len(t, attempts, 2)
	assert.Equal(t, "marketing", attempts[1].(map[string]interface{})["step"])
	assert.Equal(t, "failed", attempts[1].(map[string]interface{})["status"])

	// The webhook recovers; the retry fires the campaign.
	ts.mu.Lock()
	ts.marketingDown = false
	ts.mu.Unlock()

	resp, body = ts.post(t, fmt.Sprintf("/api/v1/books/%s/marketing/retry", bookID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "retried", body["status"])
	assert.Equal(t, "succeeded", body["outcome"].(map[string]interface{})["status"])

	// A second retry reports the success instead of re-firing the campaign.
	ts.mu.Lock()
	before := ts.marketingCalls
	ts.mu.Unlock()

	resp, body = ts.post(t, fmt.Sprintf("/api/v1/books/%s/marketing/retry", bookID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "already_succeeded", body["status"])

	ts.mu.Lock()
	assert.Equal(t, before, ts.marketingCalls)
	ts.mu.Unlock()
}

func TestPublishWithManuscriptLifecycle(t *testing.T) {
	ts := setupTestSuite(t)
	ctx := context.Background()

	m := &manuscript.Manuscript{
		ID:     uuid.New(),
		Title:  "သူငယ်ချင်းလို့ပဲ ဆက်ပြီးခေါ်မယ်",
		Author: "Moe Moe (Inya)",
		Status: manuscript.StatusApproved,
	}
	require.NoError(t, ts.manuscripts.Insert(ctx, m))

	body := publishBody(3)
	body["manuscript_id"] = m.ID.String()

	resp, decoded := ts.post(t, "/api/v1/publish", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, decoded["success"])

	got, err := ts.manuscripts.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, manuscript.StatusPublished, got.Status)

	// Publishing the same manuscript again is caught by the precondition
	// check: the first publish already moved it off approved.
	resp, decoded = ts.post(t, "/api/v1/publish", body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "manuscript_not_publishable", decoded["error"].(map[string]interface{})["code"])
}

func TestPublishRejectsUnapprovedManuscript(t *testing.T) {
	ts := setupTestSuite(t)
	ctx := context.Background()

	m := &manuscript.Manuscript{
		ID:     uuid.New(),
		Title:  "draft",
		Author: "a",
		Status: manuscript.StatusUnderReview,
	}
	require.NoError(t, ts.manuscripts.Insert(ctx, m))

	body := publishBody(3)
	body["manuscript_id"] = m.ID.String()

	resp, decoded := ts.post(t, "/api/v1/publish", body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decoded["error"].(map[string]interface{})
	assert.Equal(t, "manuscript_not_publishable", errBody["code"])
	assert.Equal(t, "under_review", errBody["actual"])

	// Rejected before any side effect.
	got, err := ts.manuscripts.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, manuscript.StatusUnderReview, got.Status)
}

func TestConcurrentPurchasesOfLastCopy(t *testing.T) {
	ts := setupTestSuite(t)

	resp, body := ts.post(t, "/api/v1/publish", publishBody(1))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bookID := body["book"].(map[string]interface{})["id"].(string)

	var wg sync.WaitGroup
	statuses := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			payload, _ := json.Marshal(map[string]interface{}{
				"payment_ref": fmt.Sprintf("pay_race_%d", i),
				"buyer_id":    fmt.Sprintf("buyer-%d", i),
				"lines": []map[string]interface{}{
					{"book_id": bookID, "delivery": "physical", "quantity": 1, "unit_price": 6000},
				},
			})
			resp, err := http.Post(ts.server.URL+"/webhooks/payment", "application/json", bytes.NewBuffer(payload))
			if err != nil {
				return
			}
			defer resp.Body.Close()

			var decoded map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return
			}
			lines := decoded["lines"].([]interface{})
			statuses[i] = lines[0].(map[string]interface{})["status"].(string)
		}(i)
	}
	wg.Wait()

	// Exactly one buyer gets the last copy.
	assert.ElementsMatch(t, []string{"recorded", "rejected"}, statuses)

	resp, body = ts.get(t, "/api/v1/books/"+bookID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["sold"])
	assert.Equal(t, float64(0), body["available"])
}
