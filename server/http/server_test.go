package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vchub/relay/model"
)

type fakeRoomService struct {
	statuses []model.RoomStatus
	err      error
}

func (f *fakeRoomService) RoomOccupancy(_ context.Context) ([]model.RoomStatus, error) {
	return f.statuses, f.err
}

func newTestServer(t *testing.T, svc RoomService) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	srv := NewServer(Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  ":0",
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestListRooms(t *testing.T) {
	ts := newTestServer(t, &fakeRoomService{
		statuses: []model.RoomStatus{
			{Room: "room0", Participants: []model.ParticipantID{1, 3}},
			{Room: "room1", Participants: []model.ParticipantID{}},
		},
	})

	resp, err := http.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	var out struct {
		Data []model.RoomStatus `json:"data"`
	}
	if err = json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	if len(out.Data) != 2 || out.Data[0].Room != "room0" || len(out.Data[0].Participants) != 2 {
		t.Errorf("data = %+v", out.Data)
	}
}

func TestListRoomsError(t *testing.T) {
	ts := newTestServer(t, &fakeRoomService{err: errors.New("room table on fire")})

	resp, err := http.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestRootRedirect(t *testing.T) {
	ts := newTestServer(t, &fakeRoomService{})

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPermanentRedirect {
		t.Errorf("status = %d, want 308", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != specURL {
		t.Errorf("location = %q", loc)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("cache-control = %q", cc)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeRoomService{})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
