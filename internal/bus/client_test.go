package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/natsserver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// connectEmbedded starts a private JetStream server and connects a client to it.
func connectEmbedded(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default().Bus
	cfg.Enabled = true
	cfg.Embedded = true
	cfg.Port = server.RANDOM_PORT
	cfg.StoreDir = t.TempDir()

	srv, err := natsserver.Start(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	client, err := Connect(context.Background(), "bus-test", cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestConnectRequiresServers(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Servers = nil
	_, err := Connect(context.Background(), "bus-test", cfg, discardLogger())
	assert.Error(t, err)
}

type upperRequest struct {
	Text string `json:"text"`
}

type upperReply struct {
	Text string `json:"text"`
}

func TestRequestJSONRoundTrip(t *testing.T) {
	client := connectEmbedded(t)

	sub, err := client.Conn().Subscribe("test.upper", func(msg *nats.Msg) {
		var req upperRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		data, _ := json.Marshal(upperReply{Text: strings.ToUpper(req.Text)})
		_ = msg.Respond(data)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, client.Conn().Flush())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var reply upperReply
	require.NoError(t, client.RequestJSON(ctx, "test.upper", upperRequest{Text: "merhaba"}, &reply))
	assert.Equal(t, "MERHABA", reply.Text)
}

func TestRequestJSONWithoutResponder(t *testing.T) {
	client := connectEmbedded(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var reply upperReply
	err := client.RequestJSON(ctx, "test.nobody", upperRequest{Text: "x"}, &reply)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request test.nobody")
}

func TestRequestJSONRejectsUndecodableReply(t *testing.T) {
	client := connectEmbedded(t)

	sub, err := client.Conn().Subscribe("test.garbage", func(msg *nats.Msg) {
		_ = msg.Respond([]byte("not json"))
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, client.Conn().Flush())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var reply upperReply
	err = client.RequestJSON(ctx, "test.garbage", upperRequest{}, &reply)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode test.garbage reply")
}

func TestPublishJSON(t *testing.T) {
	client := connectEmbedded(t)

	sub, err := client.Conn().SubscribeSync("test.events")
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, client.Conn().Flush())

	require.NoError(t, client.PublishJSON("test.events", upperReply{Text: "hi"}))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi"}`, string(msg.Data))
}

func TestEnsureStreamCreatesThenUpdates(t *testing.T) {
	client := connectEmbedded(t)

	require.NoError(t, client.EnsureStream("TEST_STATUS", []string{"test.status.>"}, time.Hour))
	require.NoError(t, client.EnsureStream("TEST_STATUS", []string{"test.status.>"}, 2*time.Hour))

	info, err := client.js.StreamInfo("TEST_STATUS")
	require.NoError(t, err)
	assert.Equal(t, []string{"test.status.>"}, info.Config.Subjects)
	assert.Equal(t, 2*time.Hour, info.Config.MaxAge)

	require.NoError(t, client.PublishJSON("test.status.abc", upperReply{Text: "queued"}))
	require.Eventually(t, func() bool {
		info, err := client.js.StreamInfo("TEST_STATUS")
		return err == nil && info.State.Msgs == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthyFollowsConnection(t *testing.T) {
	var missing *Client
	assert.False(t, missing.Healthy())

	client := connectEmbedded(t)
	assert.True(t, client.Healthy())

	client.Close()
	assert.False(t, client.Healthy())
}
