// internal/clients/clients_test.go
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarpay/internal/catalog"
)

func testBook() *catalog.Book {
	mID := uuid.New()
	return &catalog.Book{
		ID:           uuid.New(),
		Title:        "မုန်တိုင်းကြားက မီးအိမ်",
		Author:       "Ma Sandar",
		Description:  "Short stories from the delta",
		Category:     "fiction",
		Edition:      "2nd",
		Price:        5500,
		TotalCopies:  20,
		ManuscriptID: &mID,
	}
}

func TestEmbeddingClientProcessBook(t *testing.T) {
	book := testBook()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/books/process", r.URL.Path)

		var req struct {
			Book              map[string]interface{} `json:"book"`
			GenerateEmbedding bool                   `json:"generate_embedding"`
			UpdateCache       bool                   `json:"update_cache"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// The sidecar's model calls the title field "name".
		assert.Equal(t, book.Title, req.Book["name"])
		assert.Equal(t, book.ID.String(), req.Book["id"])
		assert.Equal(t, book.ManuscriptID.String(), req.Book["manuscript_id"])
		assert.True(t, req.GenerateEmbedding)
		assert.True(t, req.UpdateCache)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"book_id":   book.ID.String(),
			"text_hash": "abc123",
			"language":  "my",
			"success":   true,
		})
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, 5*time.Second)
	require.NoError(t, client.ProcessBook(context.Background(), book))
}

func TestEmbeddingClientProcessBookFailures(t *testing.T) {
	t.Run("unprocessed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
		}))
		defer srv.Close()

		client := NewEmbeddingClient(srv.URL, 5*time.Second)
		assert.Error(t, client.ProcessBook(context.Background(), testBook()))
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewEmbeddingClient(srv.URL, 5*time.Second)
		assert.Error(t, client.ProcessBook(context.Background(), testBook()))
	})
}

func TestEmbeddingClientHealth(t *testing.T) {
	status := "initializing"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, 5*time.Second)
	assert.Error(t, client.Health(context.Background()))

	status = "healthy"
	assert.NoError(t, client.Health(context.Background()))
}

func TestMarketingClientAnnounceBook(t *testing.T) {
	book := testBook()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var a announcement
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		assert.Equal(t, "book.published", a.Event)
		assert.Equal(t, book.ID.String(), a.BookID)
		assert.Equal(t, book.Title, a.Title)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewMarketingClient(srv.URL, "secret-token", 5*time.Second)
	require.NoError(t, client.AnnounceBook(context.Background(), book))
}

func TestMarketingClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "campaign engine down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewMarketingClient(srv.URL, "", 5*time.Second)
	book := testBook()

	for i := 0; i < 3; i++ {
		err := client.AnnounceBook(context.Background(), book)
		require.Error(t, err)
		require.False(t, errors.Is(err, gobreaker.ErrOpenState))
	}

	// Fourth call fails fast without reaching the webhook.
	err := client.AnnounceBook(context.Background(), book)
	require.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestMarketingClientTestConnection(t *testing.T) {
	code := http.StatusMethodNotAllowed
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	defer srv.Close()

	client := NewMarketingClient(srv.URL, "", 5*time.Second)

	// Webhook platforms commonly reject GET; reachable is all we need.
	assert.NoError(t, client.TestConnection(context.Background()))

	code = http.StatusBadGateway
	assert.Error(t, client.TestConnection(context.Background()))
}
