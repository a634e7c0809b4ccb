package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LingByte/EchoClass/pkg/classroom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalingURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:7072", "ws://localhost:7072/ws"},
		{"https://relay.example.com/", "wss://relay.example.com/ws"},
		{"ws://10.0.0.2:7072", "ws://10.0.0.2:7072/ws"},
	}
	for _, tt := range tests {
		got, err := signalingURL(tt.server)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := signalingURL("ftp://relay")
	assert.Error(t, err)
}

func TestAPIClient(t *testing.T) {
	var (
		deleted string
		reason  string
		body    map[string]interface{}
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rooms", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(classroom.RoomSnapshot{ID: "math", HostID: "teacher"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rooms": []classroom.RoomSnapshot{{ID: "math"}, {ID: "art"}},
		})
	})
	mux.HandleFunc("/api/rooms/math", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.URL.Path
		reason = r.URL.Query().Get("reason")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/rooms/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"ROOM_NOT_FOUND","message":"room ghost not found"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	api := newAPIClient(srv.URL)
	ctx := context.Background()

	rooms, err := api.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "art", rooms[1].ID)

	room, err := api.CreateRoom(ctx, "math", "teacher")
	require.NoError(t, err)
	assert.Equal(t, "teacher", room.HostID)
	assert.Equal(t, "math", body["roomId"])
	assert.Equal(t, "teacher", body["hostId"])

	require.NoError(t, api.CloseRoom(ctx, "math", "lesson over"))
	assert.Equal(t, "/api/rooms/math", deleted)
	assert.Equal(t, "lesson over", reason)

	_, err = api.GetRoom(ctx, "ghost")
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ROOM_NOT_FOUND", apiErr.Code)
}
