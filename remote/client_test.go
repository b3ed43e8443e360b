// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPullSendsWatermarkAndTables(t *testing.T) {
	var got PullRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sync/pull", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(PullResponse{
			Changes: map[string]TableChanges{
				"products": {Created: []json.RawMessage{json.RawMessage(`{"id":"p1"}`)}},
			},
			Timestamp: 1234,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, func(ctx context.Context) (string, error) {
		return "test-token", nil
	})
	resp, err := client.Pull(context.Background(), 500, []string{"products", "categories"})
	require.NoError(t, err)

	require.Equal(t, int64(500), got.LastPulledAt)
	require.Equal(t, []string{"products", "categories"}, got.Tables)
	require.Equal(t, int64(1234), resp.Timestamp)
	require.Len(t, resp.Changes["products"].Created, 1)
}

func TestCreateStripsIDAndDecodesServerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/categories", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotContains(t, body, "id")
		require.Equal(t, "Engine", body["name"])

		body["id"] = "srv-77"
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	created, err := client.Create(context.Background(), "categories",
		json.RawMessage(`{"id":"tmp-abc","name":"Engine"}`))
	require.NoError(t, err)
	require.Equal(t, "srv-77", created.ID)
}

func TestCreateMissingServerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Engine"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Create(context.Background(), "categories", json.RawMessage(`{"name":"Engine"}`))
	require.Error(t, err)
}

func TestUpdateAndDeletePaths(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)

	require.NoError(t, client.Update(context.Background(), "car_models", "m1", json.RawMessage(`{"name":"x"}`)))
	require.Equal(t, http.MethodPut, method)
	require.Equal(t, "/api/car-models/m1", path)

	require.NoError(t, client.Delete(context.Background(), "product_brands", "b9"))
	require.Equal(t, http.MethodDelete, method)
	require.Equal(t, "/api/product-brands/b9", path)
}

func TestUnknownTableHasNoPath(t *testing.T) {
	client := NewClient("http://localhost", nil)
	err := client.Delete(context.Background(), "cart_items", "x")
	require.Error(t, err, "the cart is local-only and must never reach the API")
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	err := client.Delete(context.Background(), "categories", "ghost")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Contains(t, apiErr.Body, "not found")
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"bad request", &APIError{StatusCode: 400}, true},
		{"unauthorized", &APIError{StatusCode: 401}, true},
		{"not found", &APIError{StatusCode: 404}, true},
		{"validation", &APIError{StatusCode: 422}, true},
		{"request timeout", &APIError{StatusCode: 408}, false},
		{"throttled", &APIError{StatusCode: 429}, false},
		{"server error", &APIError{StatusCode: 500}, false},
		{"bad gateway", &APIError{StatusCode: 502}, false},
		{"network failure", errors.New("connection refused"), false},
		{"wrapped validation", errors.Join(errors.New("push"), &APIError{StatusCode: 422}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.permanent, IsPermanent(tt.err))
		})
	}
}
