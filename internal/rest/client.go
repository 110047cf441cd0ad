// Package rest is the HTTP collaborator of the engine: contact list,
// conversation history and group membership retrieval.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/matheus3301/simchat/internal/wire"
	"go.uber.org/zap"
)

const (
	pathContacts = "/api/chat/getAllChatBox"
	pathHistory  = "/api/chat/messages/history"
	pathMembers  = "/api/chat/group/members"

	codeOK = 200

	// maxResponseSize bounds a response body read into memory.
	maxResponseSize = 16 << 20
)

// APIError is a failure reported by the server, either through the
// envelope code or the HTTP status. Inspect it with errors.As.
type APIError struct {
	// Code is the envelope code, or the HTTP status when the body carried
	// no envelope.
	Code       int
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d (http %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("api error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the server's REST endpoints as the session's identity.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	logger     *zap.Logger
}

// New creates a client.
func New(cfg Config, sess *session.Session) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rest: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("rest: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		session:    sess,
		logger:     logger,
	}, nil
}

// get performs a GET and decodes the envelope's data into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.session.Header() {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	var env envelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Code: resp.StatusCode, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return fmt.Errorf("decode %s envelope: %w", path, jsonErr)
	}
	if env.Code != codeOK || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := env.Code
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Code: code, StatusCode: resp.StatusCode, Message: env.text()}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	c.logger.Debug("request ok", zap.String("path", path), zap.Int("bytes", len(body)))
	return nil
}

// flexBool decodes presence sent as a boolean, a number or a string.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.ToLower(string(data)), `"`)
	switch s {
	case "true", "1", "online":
		*b = true
	default:
		*b = false
	}
	return nil
}

type chatBox struct {
	Type  bool `json:"type"`
	Group *struct {
		GroupID   wire.Num `json:"groupId"`
		GroupName string   `json:"groupName"`
		Avatar    string   `json:"avatar"`
	} `json:"group"`
	UserVo *struct {
		User struct {
			UserID   wire.Num `json:"userId"`
			UserName string   `json:"userName"`
			Avatar   string   `json:"avatar"`
		} `json:"user"`
		Status *flexBool `json:"status"`
	} `json:"userVo"`
}

// Contacts returns every contact and group of the local user.
func (c *Client) Contacts(ctx context.Context) ([]chat.Contact, error) {
	me := c.session.Identity()
	var boxes []chatBox
	q := url.Values{"userId": {strconv.FormatInt(me.UserID, 10)}}
	if err := c.get(ctx, pathContacts, q, &boxes); err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}

	contacts := make([]chat.Contact, 0, len(boxes))
	for _, b := range boxes {
		switch {
		case b.Type && b.Group != nil:
			contacts = append(contacts, chat.Contact{
				ID:     int64(b.Group.GroupID),
				Kind:   chat.Group,
				Name:   b.Group.GroupName,
				Avatar: b.Group.Avatar,
			})
		case !b.Type && b.UserVo != nil:
			u := b.UserVo.User
			contact := chat.Contact{
				ID:     int64(u.UserID),
				Kind:   chat.Personal,
				Name:   u.UserName,
				Avatar: u.Avatar,
			}
			if b.UserVo.Status != nil {
				contact.Online = chat.Bool(bool(*b.UserVo.Status))
			}
			contacts = append(contacts, contact)
		default:
			c.logger.Debug("skipping malformed chat box")
		}
	}
	return contacts, nil
}

// History returns the server-side history of conversation id, oldest first.
func (c *Client) History(ctx context.Context, id chat.ID) ([]chat.Message, error) {
	me := c.session.Identity()
	q := url.Values{
		"userId":   {strconv.FormatInt(me.UserID, 10)},
		"targetId": {strconv.FormatInt(id.ID, 10)},
		"type":     {strconv.Itoa(int(id.Kind))},
	}
	var records []wire.Record
	if err := c.get(ctx, pathHistory, q, &records); err != nil {
		return nil, fmt.Errorf("fetch history of %s: %w", id, err)
	}

	msgs := make([]chat.Message, len(records))
	for i := range records {
		status := chat.StatusReceived
		if int64(records[i].Sender) == me.UserID {
			status = chat.StatusConfirmed
		}
		msgs[i] = records[i].ChatMessage(id, status)
		if msgs[i].SenderID == me.UserID && me.UserName != "" {
			msgs[i].Sender = me.UserName
		}
	}
	return msgs, nil
}

// Members returns the members of group groupID.
func (c *Client) Members(ctx context.Context, groupID int64) ([]chat.Member, error) {
	var users []struct {
		UserID   wire.Num `json:"userId"`
		UserName string   `json:"userName"`
		Avatar   string   `json:"avatar"`
	}
	q := url.Values{"groupId": {strconv.FormatInt(groupID, 10)}}
	if err := c.get(ctx, pathMembers, q, &users); err != nil {
		return nil, fmt.Errorf("fetch members of group %d: %w", groupID, err)
	}
	members := make([]chat.Member, len(users))
	for i, u := range users {
		members[i] = chat.Member{ID: int64(u.UserID), Name: u.UserName, Avatar: u.Avatar}
	}
	return members, nil
}
