package protocol

// RoomInfo is returned by the room endpoints of the HTTP API.
type RoomInfo struct {
	RoomID       string `json:"roomId"`
	URL          string `json:"url,omitempty"`
	Participants []User `json:"participants"`
}

// Health is the body of GET /health.
type Health struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Rooms        int    `json:"rooms"`
	Participants int    `json:"participants"`
	EventMirror  string `json:"eventMirror"`
	Timestamp    string `json:"timestamp"`
}
