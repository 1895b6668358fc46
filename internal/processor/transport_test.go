package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	router := chi.NewRouter()
	router.Post("/things", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk_test_x", r.Header.Get("Authorization"))
		require.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"th_1"}`))
	})
	router.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"resource_missing"}}`))
	})
	router.Get("/garbage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	client := NewClient(discardLogger(), "test", srv.URL+"/", nil)
	client.Authorize = BearerAuth("sk_test_x")
	client.DecodeError = func(status int, body []byte, e *Error) {
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			e.Code = payload.Error.Code
		}
	}
	ctx := context.Background()

	t.Run("success decodes body", func(t *testing.T) {
		var out struct {
			ID string `json:"id"`
		}
		raw, err := client.Do(ctx, Call{Op: "create", Method: http.MethodPost, Path: "/things", Body: map[string]string{"a": "b"}, IdempotencyKey: "key-1"}, &out)
		require.NoError(t, err)
		require.Equal(t, "th_1", out.ID)
		require.JSONEq(t, `{"id":"th_1"}`, string(raw))
	})

	t.Run("non-2xx is rejected with raw payload", func(t *testing.T) {
		_, err := client.Do(ctx, Call{Op: "get", Method: http.MethodGet, Path: "/things/th_2"}, nil)
		require.ErrorIs(t, err, ErrRejected)
		require.True(t, IsStatus(err, http.StatusNotFound))
		pe, _ := AsError(err)
		require.Equal(t, "resource_missing", pe.Code)
		require.Contains(t, string(pe.Raw), "resource_missing")
	})

	t.Run("undecodable success is incomplete", func(t *testing.T) {
		var out map[string]any
		_, err := client.Do(ctx, Call{Op: "garbage", Method: http.MethodGet, Path: "/garbage"}, &out)
		require.ErrorIs(t, err, ErrIncompleteResult)
	})

	t.Run("transport failure is unavailable", func(t *testing.T) {
		down := NewClient(discardLogger(), "test", "http://127.0.0.1:1", nil)
		_, err := down.Do(ctx, Call{Op: "get", Method: http.MethodGet, Path: "/things/1"}, nil)
		require.ErrorIs(t, err, ErrUnavailable)
	})
}
