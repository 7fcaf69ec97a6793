// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package imageurl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	u, err := Static{Base: "https://img.example.com/"}.Resolve(context.Background(), "abc 1")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/abc%201", u)

	u, err = Static{}.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", u)

	_, err = Static{}.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestServingURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("path")
		fmt.Fprintln(w, "https://lh3.example.com/xyz")
	}))
	defer srv.Close()

	r := NewServingURL(srv.URL, "photos", nil)
	u, err := r.Resolve(context.Background(), "img/1")
	require.NoError(t, err)
	assert.Equal(t, "https://lh3.example.com/xyz", u)
	assert.Equal(t, "photos/img/1", gotPath)
}

func TestServingURL_RejectsBadAnswers(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not a url", http.StatusOK, "error: not found"},
		{"empty", http.StatusOK, ""},
		{"server error", http.StatusInternalServerError, "https://ignored"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewServingURL(srv.URL, "", nil).Resolve(context.Background(), "img")
			assert.Error(t, err)
		})
	}
}

func TestServingURL_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, err := NewServingURL(endpoint, "", nil).Resolve(context.Background(), "img")
	assert.Error(t, err)
}

func TestServingURL_CollapsesConcurrentLookups(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		<-release
		fmt.Fprint(w, "https://lh3.example.com/shared")
	}))
	defer srv.Close()

	r := NewServingURL(srv.URL, "", nil)
	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve(context.Background(), "same")
		}(i)
	}

	require.Eventually(t, func() bool { return requests.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, u := range results {
		assert.Equal(t, "https://lh3.example.com/shared", u)
	}
	assert.Equal(t, int32(1), requests.Load())
}

func TestServingURL_HonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewServingURL(srv.URL, "", nil).Resolve(ctx, "img")
	assert.Error(t, err)
}
