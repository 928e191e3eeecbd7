package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agime-dev/agimectl/internal/mission"
	"github.com/agime-dev/agimectl/internal/stream"
)

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the team platform's agent API. REST calls share one
// http.Client with a request timeout; streams use a separate client with
// no timeout since a healthy stream is long-lived by design.
type Client struct {
	base       string
	token      string
	httpClient *http.Client
	streamHTTP *http.Client
}

// New creates a client for the API rooted at base (e.g.
// "https://team.example.com/api/team/agent/chat").
func New(base, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:       strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		streamHTTP: &http.Client{},
	}
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// do issues a JSON request and decodes the JSON response into out (out
// may be nil for status-only endpoints).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// --- Sessions ---

// ListSessions returns the caller's chat sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionListItem, error) {
	var out []SessionListItem
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession creates a new chat session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	var out CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches the authoritative snapshot for a session.
func (c *Client) GetSession(ctx context.Context, id string) (*SessionSnapshot, error) {
	var out SessionSnapshot
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSession renames or pins a session.
func (c *Client) UpdateSession(ctx context.Context, id string, req UpdateSessionRequest) error {
	return c.do(ctx, http.MethodPut, "/sessions/"+url.PathEscape(id), req, nil)
}

// DeleteSession permanently deletes a session. The server refuses while
// the session is processing.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
}

// ArchiveSession archives an idle session.
func (c *Client) ArchiveSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/archive", nil, nil)
}

// SendMessage submits a user message, which starts processing.
func (c *Client) SendMessage(ctx context.Context, id, content string) (*SendMessageResponse, error) {
	var out SendMessageResponse
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/messages",
		SendMessageRequest{Content: content}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSession requests best-effort cancellation of in-flight processing.
func (c *Client) CancelSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// OpenStream attaches to a session's event stream. A positive cursor asks
// the server to replay missed events past that id.
func (c *Client) OpenStream(ctx context.Context, sessionID string, cursor uint64) (*stream.Source, error) {
	u := c.base + "/sessions/" + url.PathEscape(sessionID) + "/stream"
	if cursor > 0 {
		u += "?last_event_id=" + fmt.Sprint(cursor)
	}
	return stream.Open(ctx, c.streamHTTP, u, c.header())
}

// --- Missions ---

// ListMissions returns the team's missions.
func (c *Client) ListMissions(ctx context.Context) ([]mission.Mission, error) {
	var out []mission.Mission
	if err := c.do(ctx, http.MethodGet, "/missions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMission creates a mission in draft/planning state.
func (c *Client) CreateMission(ctx context.Context, req CreateMissionRequest) (*mission.Mission, error) {
	var out mission.Mission
	if err := c.do(ctx, http.MethodPost, "/missions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMission fetches the full mission record, including steps and the
// goal tree.
func (c *Client) GetMission(ctx context.Context, id string) (*mission.Mission, error) {
	var out mission.Mission
	if err := c.do(ctx, http.MethodGet, "/missions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartMission starts or resumes a mission.
func (c *Client) StartMission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/missions/"+url.PathEscape(id)+"/start", nil, nil)
}

// PauseMission pauses a running mission.
func (c *Client) PauseMission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/missions/"+url.PathEscape(id)+"/pause", nil, nil)
}

// CancelMission cancels a mission.
func (c *Client) CancelMission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/missions/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// DeleteMission deletes a mission. Invalid while running.
func (c *Client) DeleteMission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/missions/"+url.PathEscape(id), nil, nil)
}

// ApproveStep approves a step awaiting approval.
func (c *Client) ApproveStep(ctx context.Context, id string, idx int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/missions/%s/steps/%d/approve", url.PathEscape(id), idx), nil, nil)
}

// RejectStep rejects a step awaiting approval.
func (c *Client) RejectStep(ctx context.Context, id string, idx int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/missions/%s/steps/%d/reject", url.PathEscape(id), idx), nil, nil)
}

// SkipStep skips a step.
func (c *Client) SkipStep(ctx context.Context, id string, idx int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/missions/%s/steps/%d/skip", url.PathEscape(id), idx), nil, nil)
}

// ApproveGoal approves a checkpoint goal in adaptive mode.
func (c *Client) ApproveGoal(ctx context.Context, id, goalID string, req GoalActionRequest) error {
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/missions/%s/goals/%s/approve", url.PathEscape(id), url.PathEscape(goalID)), req, nil)
}

// RejectGoal rejects a checkpoint goal with feedback.
func (c *Client) RejectGoal(ctx context.Context, id, goalID string, req GoalActionRequest) error {
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/missions/%s/goals/%s/reject", url.PathEscape(id), url.PathEscape(goalID)), req, nil)
}

// PivotGoal forces a pivot to an alternative approach.
func (c *Client) PivotGoal(ctx context.Context, id, goalID string, req GoalActionRequest) error {
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/missions/%s/goals/%s/pivot", url.PathEscape(id), url.PathEscape(goalID)), req, nil)
}

// OpenMissionStream attaches to a mission's event stream.
func (c *Client) OpenMissionStream(ctx context.Context, missionID string, cursor uint64) (*stream.Source, error) {
	u := c.base + "/missions/" + url.PathEscape(missionID) + "/stream"
	if cursor > 0 {
		u += "?last_event_id=" + fmt.Sprint(cursor)
	}
	return stream.Open(ctx, c.streamHTTP, u, c.header())
}
