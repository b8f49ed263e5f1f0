package websocket

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vchub/relay/codec"
	"github.com/vchub/relay/coordinator"
	"github.com/vchub/relay/identity"
	"github.com/vchub/relay/service"
	store "github.com/vchub/relay/storage/memory"
)

const testReadTimeout = 2 * time.Second

func newTestServer(t *testing.T) (*httptest.Server, codec.Codec) {
	t.Helper()
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	table := store.NewTable(func(name string) *coordinator.Coordinator {
		room := coordinator.New(name, &logger)
		go room.Run(ctx)
		return room
	})
	table.Provision("main", "other")

	cdc, err := codec.New()
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	svc := service.NewService(service.Config{
		Table:    table,
		Identity: identity.NewMonotonic(),
		Codec:    cdc,
		Logger:   &logger,
	})
	srv := NewServer(Config{
		Logger:       &logger,
		RelayService: svc,
		ListenAddr:   ":0",
	})

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts, cdc
}

func dial(t *testing.T, ts *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/vc/room/" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(testReadTimeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return msgType, data
}

func readControl(t *testing.T, conn *websocket.Conn, cdc codec.Codec) codec.Control {
	t.Helper()
	msgType, data := readMessage(t, conn)
	if msgType != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", msgType)
	}
	ctl, err := cdc.DecodeControl(data)
	if err != nil {
		t.Fatalf("decode control %q: %v", data, err)
	}
	return ctl
}

func TestRelayBetweenParticipants(t *testing.T) {
	ts, cdc := newTestServer(t)

	a := dial(t, ts, "main")
	b := dial(t, ts, "main")

	// A learns that B joined, B gets the backfill for A.
	if ctl := readControl(t, a, cdc); ctl.Action != "connect" || ctl.ID != 2 {
		t.Fatalf("a control = %+v, want connect/2", ctl)
	}
	if ctl := readControl(t, b, cdc); ctl.Action != "connect" || ctl.ID != 1 {
		t.Fatalf("b control = %+v, want connect/1", ctl)
	}

	// A sends a key frame, B receives it prefixed with A's id.
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := a.WriteMessage(websocket.BinaryMessage, append([]byte{1}, payload...)); err != nil {
		t.Fatalf("write: %v", err)
	}

	msgType, data := readMessage(t, b)
	if msgType != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", msgType)
	}
	id, chunk, err := cdc.DecodeRelay(data)
	if err != nil {
		t.Fatalf("decode relay: %v", err)
	}
	if id != 1 || !chunk.KeyFrame || !bytes.Equal(chunk.Payload, payload) {
		t.Errorf("relay = id %d, key %v, payload %x", id, chunk.KeyFrame, chunk.Payload)
	}

	// A leaves, B is notified.
	_ = a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = a.Close()
	if ctl := readControl(t, b, cdc); ctl.Action != "disconnect" || ctl.ID != 1 {
		t.Fatalf("b control = %+v, want disconnect/1", ctl)
	}
}

func TestRoomIsolation(t *testing.T) {
	ts, _ := newTestServer(t)

	a := dial(t, ts, "main")
	b := dial(t, ts, "other")

	if err := a.WriteMessage(websocket.BinaryMessage, []byte{1, 0x42}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// B shares the process but not the room: nothing must arrive.
	if err := b.SetReadDeadline(time.Now().Add(300 * time.Millisecond)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	if _, data, err := b.ReadMessage(); err == nil {
		t.Errorf("cross-room delivery: %x", data)
	}
}

func TestMalformedFrameClosesConnection(t *testing.T) {
	ts, cdc := newTestServer(t)

	a := dial(t, ts, "main")
	b := dial(t, ts, "main")
	readControl(t, a, cdc) // connect/2
	readControl(t, b, cdc) // backfill connect/1

	// Empty binary frame is a protocol error: the server drops A.
	if err := a.WriteMessage(websocket.BinaryMessage, []byte{}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// B sees only the resulting disconnect, never a relayed frame.
	if ctl := readControl(t, b, cdc); ctl.Action != "disconnect" || ctl.ID != 1 {
		t.Fatalf("b control = %+v, want disconnect/1", ctl)
	}

	if err := a.SetReadDeadline(time.Now().Add(testReadTimeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			break // connection torn down by the server
		}
	}
}

func TestUnknownRoomRejectsHandshake(t *testing.T) {
	ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/vc/room/ghost"
	if conn, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		_ = conn.Close()
		t.Error("handshake to unknown room succeeded")
	}
}
