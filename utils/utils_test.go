package utils

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermutationCoversEveryIndex(t *testing.T) {
	for _, n := range []int{0, 1, 3, 6} {
		perm, err := Permutation(n)
		require.NoError(t, err)
		sorted := append([]int(nil), perm...)
		sort.Ints(sorted)
		for i := range sorted {
			assert.Equal(t, i, sorted[i])
		}
	}
}

func TestShuffleKeepsElements(t *testing.T) {
	in := []string{"a", "b", "c", "d", "e"}
	out := append([]string(nil), in...)
	require.NoError(t, Shuffle(out))
	assert.ElementsMatch(t, in, out)
}

func TestNewHTTPClient(t *testing.T) {
	assert.Equal(t, 10*time.Second, NewHTTPClient(0).Timeout)
	assert.Equal(t, 2*time.Second, NewHTTPClient(2*time.Second).Timeout)
}

func TestR2UploaderPutJSON(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotType, gotBody = r.URL.Path, r.Header.Get("Content-Type"), string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewR2Uploader(context.Background(), R2Config{
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		Bucket:          "ledgers",
		Endpoint:        srv.URL,
	})
	require.NoError(t, err)
	require.NoError(t, up.PutJSON(context.Background(), "ledgers/test/now.json", []byte(`{"daily":[]}`)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/ledgers/ledgers/test/now.json", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Contains(t, gotBody, `{"daily":[]}`)
}

func TestNewR2UploaderNeedsBucket(t *testing.T) {
	_, err := NewR2Uploader(context.Background(), R2Config{AccountID: "acc"})
	assert.Error(t, err)
}
