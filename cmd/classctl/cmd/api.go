package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/LingByte/EchoClass/pkg/classroom"
	"github.com/carlmjohnson/requests"
)

// apiError is the body the relay sends with a failed request.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// apiClient calls the relay's REST api.
type apiClient struct {
	base   string
	client *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, client: &http.Client{Timeout: 15 * time.Second}}
}

func (c *apiClient) builder(path string) (*requests.Builder, *apiError) {
	apiErr := &apiError{}
	b := requests.URL(c.base).
		Path(path).
		Client(c.client).
		AddValidator(requests.ErrorJSON(apiErr))
	return b, apiErr
}

// fetch runs b and prefers the relay's error body over the status error.
func fetch(ctx context.Context, b *requests.Builder, apiErr *apiError) error {
	if err := b.Fetch(ctx); err != nil {
		if apiErr.Code != "" {
			return apiErr
		}
		return err
	}
	return nil
}

func (c *apiClient) ListRooms(ctx context.Context) ([]classroom.RoomSnapshot, error) {
	var out struct {
		Rooms []classroom.RoomSnapshot `json:"rooms"`
	}
	b, apiErr := c.builder("/api/rooms")
	err := fetch(ctx, b.ToJSON(&out), apiErr)
	return out.Rooms, err
}

func (c *apiClient) GetRoom(ctx context.Context, id string) (classroom.RoomSnapshot, error) {
	var room classroom.RoomSnapshot
	b, apiErr := c.builder("/api/rooms/" + id)
	err := fetch(ctx, b.ToJSON(&room), apiErr)
	return room, err
}

func (c *apiClient) CreateRoom(ctx context.Context, id, hostID string) (classroom.RoomSnapshot, error) {
	var room classroom.RoomSnapshot
	body := map[string]string{"roomId": id}
	if hostID != "" {
		body["hostId"] = hostID
	}
	b, apiErr := c.builder("/api/rooms")
	err := fetch(ctx, b.BodyJSON(body).ToJSON(&room), apiErr)
	return room, err
}

func (c *apiClient) CloseRoom(ctx context.Context, id, reason string) error {
	b, apiErr := c.builder("/api/rooms/" + id)
	b = b.Method(http.MethodDelete)
	if reason != "" {
		b = b.Param("reason", reason)
	}
	return fetch(ctx, b, apiErr)
}

func (c *apiClient) ResumePlayback(ctx context.Context, id string) error {
	b, apiErr := c.builder("/api/rooms/" + id + "/playback")
	return fetch(ctx, b.Method(http.MethodPost), apiErr)
}

func (c *apiClient) SetEdgeGain(ctx context.Context, id, source, target string, gain float64) error {
	b, apiErr := c.builder("/api/rooms/" + id + "/edges")
	body := map[string]interface{}{"source": source, "target": target, "gain": gain}
	return fetch(ctx, b.Method(http.MethodPut).BodyJSON(body), apiErr)
}
