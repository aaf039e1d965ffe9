package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				msg, op, err := wsutil.ReadClientData(conn)
				if err != nil {
					return
				}
				if err := wsutil.WriteServerMessage(conn, op, msg); err != nil {
					return
				}
			}
		}()
	}))
}

func TestClientEcho(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	received := make(chan map[string]any, 1)
	client, err := Connect(ctx, ClientConfig{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		DialTimeout: time.Second,
		OnText: Json(func(x map[string]any) error {
			received <- x
			return nil
		}),
	})
	require.NoError(t, err)
	require.NotNil(t, client)

	client.WriteText([]byte(`{"type":"ping"}`))

	select {
	case msg := <-received:
		require.Equal(t, "ping", msg["type"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for echo")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer closeCancel()
	require.NoError(t, client.Close(closeCtx))
}

func TestConnectRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, ClientConfig{
		URL:         "ws://127.0.0.1:1/",
		DialTimeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
}
