package signaling_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/HMasataka/meeting/pkg/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc) *signaling.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := signaling.DefaultConfig()
	cfg.BaseURL = srv.URL + "/api/"
	cfg.Token = "secret"
	cfg.RetryInterval = 1
	cfg.RetryMax = 5

	c, err := signaling.NewClient(cfg, srv.Client())
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("不正なURLはエラー", func(t *testing.T) {
		for _, base := range []string{"", "not a url", "/relative"} {
			_, err := signaling.NewClient(signaling.Config{BaseURL: base}, nil)
			assert.ErrorIs(t, err, signaling.ErrInvalidBaseURL, base)
		}
	})
}

func TestClient_Roster(t *testing.T) {
	ctx := context.Background()

	t.Run("数値と文字列のUIDを読み取る", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/api/meetings/m-1/participants", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"participants":[
				{"uid":1001,"name":"Alice","role":"student","isTeacher":false},
				{"uid":"1002","name":"Bob","role":"teacher","isTeacher":true},
				{"uid":null}
			]}`))
		})

		roster, err := c.Roster(ctx, "m-1")

		require.NoError(t, err)
		assert.Equal(t, []meeting.RosterEntry{
			{UID: "1001", Name: "Alice", Role: "student"},
			{UID: "1002", Name: "Bob", Role: "teacher", IsTeacher: true},
			{UID: ""},
		}, roster)
	})

	t.Run("会議IDはパスとしてエスケープする", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/meetings/a%2Fb/participants", r.URL.EscapedPath())
			_, _ = w.Write([]byte(`{"participants":[]}`))
		})

		roster, err := c.Roster(ctx, "a/b")
		require.NoError(t, err)
		assert.Empty(t, roster)
	})

	t.Run("4xxはリトライせずHTTPErrorを返す", func(t *testing.T) {
		var calls atomic.Int32
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "forbidden", http.StatusForbidden)
		})

		_, err := c.Roster(ctx, "m-1")

		var httpErr *signaling.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
		assert.Equal(t, "forbidden", httpErr.Body)
		assert.False(t, httpErr.Temporary())
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("壊れたボディはErrInvalidResponse", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"participants":[{"uid":true}]}`))
		})

		_, err := c.Roster(ctx, "m-1")
		assert.ErrorIs(t, err, signaling.ErrInvalidResponse)
	})
}

func TestClient_Notify(t *testing.T) {
	ctx := context.Background()

	t.Run("退出と終了をPOSTする", func(t *testing.T) {
		var paths []string
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			paths = append(paths, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		})

		require.NoError(t, c.Leave(ctx, "m-1"))
		require.NoError(t, c.End(ctx, "m-1"))

		assert.Equal(t, []string{"/api/meetings/m-1/leave", "/api/meetings/m-1/end"}, paths)
	})

	t.Run("5xxはリトライする", func(t *testing.T) {
		var calls atomic.Int32
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		require.NoError(t, c.Leave(ctx, "m-1"))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("回数を使い切ったら最後のエラーを返す", func(t *testing.T) {
		var calls atomic.Int32
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})

		err := c.End(ctx, "m-1")

		var httpErr *signaling.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.True(t, httpErr.Temporary())
		assert.Equal(t, int32(3), calls.Load())
	})
}
