package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultAPIURL is where a locally running daemon listens.
const DefaultAPIURL = "http://127.0.0.1:8420"

// APIClient talks to a running spawnd daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsReachable checks whether the daemon answers at all.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/servers")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// List returns all server snapshots.
func (c *APIClient) List() (json.RawMessage, error) {
	return c.get("/servers")
}

// Status returns one server snapshot.
func (c *APIClient) Status(id string) (json.RawMessage, error) {
	return c.get("/servers/" + id)
}

// Console returns the buffered console history.
func (c *APIClient) Console(id string) (json.RawMessage, error) {
	return c.get("/servers/" + id + "/console")
}

// Lifecycle invokes start, stop, restart, or kill.
func (c *APIClient) Lifecycle(id, action string) (json.RawMessage, error) {
	return c.post("/servers/"+id+"/"+action, nil)
}

// SendCommand forwards a console command to the server's stdin.
func (c *APIClient) SendCommand(id, command string) error {
	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return err
	}
	_, err = c.post("/servers/"+id+"/command", body)
	return err
}

func (c *APIClient) get(path string) (json.RawMessage, error) {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	return decode(resp)
}

func (c *APIClient) post(path string, body []byte) (json.RawMessage, error) {
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return decode(resp)
}

func decode(resp *http.Response) (json.RawMessage, error) {
	defer func() { _ = resp.Body.Close() }()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("daemon error: %s", e.Error)
		}
		return nil, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	return raw, nil
}
