package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BioHazard786/Huddle/cli/internal/dns"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

var errRoomNotFound = errors.New("room is empty or does not exist")

// apiClient talks to the relay's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dns.DialContext

	return &apiClient{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Transport: transport, Timeout: 10 * time.Second},
	}
}

// CreateRoom asks the relay for a fresh room ID.
func (c *apiClient) CreateRoom(ctx context.Context) (*protocol.RoomInfo, error) {
	var info protocol.RoomInfo
	if err := c.do(ctx, http.MethodPost, "/rooms", http.StatusCreated, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Room returns who is currently in roomID.
func (c *apiClient) Room(ctx context.Context, roomID string) (*protocol.RoomInfo, error) {
	var info protocol.RoomInfo
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), http.StatusOK, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errRoomNotFound
	}
	if resp.StatusCode != want {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("server returned %s: %s", resp.Status, body.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// parseRoomInput accepts a bare room ID or a room link such as
// https://huddle.example/room/R7X2KQ9P.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if !strings.Contains(input, "://") && !strings.Contains(input, "/") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse room link: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part == "room" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("could not extract room ID from %s", input)
}
