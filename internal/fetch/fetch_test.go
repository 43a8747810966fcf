package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossrock-dev/kiln/internal/model"
)

// testFetcher returns a Fetcher with backoff tightened so retry tests
// finish quickly.
func testFetcher() *Fetcher {
	f := NewFetcher()
	f.client.RetryWaitMin = 10 * time.Millisecond
	f.client.RetryWaitMax = 20 * time.Millisecond
	return f
}

// --- Fetch tests ---

func TestFetch_Success(t *testing.T) {
	script := []byte("#!/usr/bin/env python3\nprint('installing')\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(script)
	}))
	defer srv.Close()

	res, err := testFetcher().Fetch(context.Background(), srv.URL+"/install.py")
	require.NoError(t, err)

	assert.Equal(t, script, res.Body)
	assert.Equal(t, digest.FromBytes(script), res.Digest)
	assert.Equal(t, srv.URL+"/install.py", res.URL)
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitFetchFailed, cliErr.Code)
	assert.Contains(t, cliErr.Message, "unexpected status")
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok after retries\n"))
	}))
	defer srv.Close()

	res, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []byte("ok after retries\n"), res.Body)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetch_GivesUpAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitFetchFailed, cliErr.Code)
	// 1 initial attempt plus RetryMax retries.
	assert.Equal(t, int32(5), attempts.Load())
}

func TestFetch_RejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), MaxScriptSize+1))
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitFetchFailed, cliErr.Code)
	assert.Contains(t, cliErr.Message, "size limit")
}

func TestFetch_RejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

// --- Result tests ---

func TestResult_Matches(t *testing.T) {
	body := []byte("pinned content\n")
	res := &Result{Body: body, Digest: digest.FromBytes(body)}
	pin := res.Digest.Encoded()

	t.Run("matching pin", func(t *testing.T) {
		assert.True(t, res.Matches(pin))
	})

	t.Run("uppercase pin", func(t *testing.T) {
		// Recipes may carry the pin in either case.
		assert.True(t, res.Matches(strings.ToUpper(pin)))
	})

	t.Run("mismatched pin", func(t *testing.T) {
		other := digest.FromString("something else").Encoded()
		assert.False(t, res.Matches(other))
	})
}
