package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/studychat/internal/types"
)

const defaultTimeout = 15 * time.Second

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EditMessageRequest struct {
	Text string `json:"text"`
}

// Client calls the chat backend's request/response endpoints.
type Client struct {
	log     *log.Logger
	baseURL *url.URL
	http    *http.Client

	tokenLock sync.RWMutex
	token     string
}

func NewClient(baseURL string, httpClient *http.Client, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		log:     logger,
		baseURL: u,
		http:    httpClient,
	}, nil
}

func (c *Client) SetToken(token string) {
	c.tokenLock.Lock()
	defer c.tokenLock.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.tokenLock.RLock()
	defer c.tokenLock.RUnlock()
	return c.token
}

// AuthHeader returns the headers used to authenticate the WebSocket
// handshake.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	if token := c.Token(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func roomPath(key types.RoomKey, suffix string) string {
	return "/api/rooms/" + key.Subject() + "/" + key.Slug() + suffix
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reqBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		c.log.Printf("%s %s: %d %s", method, path, apiErr.StatusCode, apiErr.Message)
		return resp, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp, nil
}

// Login authenticates with email and password and adopts the session
// token the server sets as a cookie.
func (c *Client) Login(ctx context.Context, email, password string) (types.User, string, error) {
	var user types.User
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, LoginRequest{Email: email, Password: password}, &user)
	if err != nil {
		return types.User{}, "", err
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == tokenCookieKey && cookie.Value != "" {
			c.SetToken(cookie.Value)
			return user, cookie.Value, nil
		}
	}

	return types.User{}, "", fmt.Errorf("login response did not include a session token")
}

func (c *Client) ListRooms(ctx context.Context) ([]types.Room, error) {
	var rooms []types.Room
	if _, err := c.do(ctx, http.MethodGet, "/api/rooms", nil, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) CreateRoom(ctx context.Context, req types.CreateRoomRequest) (types.Room, error) {
	var room types.Room
	if _, err := c.do(ctx, http.MethodPost, "/api/rooms", nil, req, &room); err != nil {
		return types.Room{}, err
	}
	return room, nil
}

// History returns up to limit messages older than before, oldest first.
// A zero before fetches the latest page.
func (c *Client) History(ctx context.Context, key types.RoomKey, before int64, limit int) ([]types.Message, error) {
	query := url.Values{}
	if before > 0 {
		query.Set("before", strconv.FormatInt(before, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var messages []types.Message
	if _, err := c.do(ctx, http.MethodGet, roomPath(key, "/messages"), query, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) Pins(ctx context.Context, key types.RoomKey) ([]types.Message, error) {
	var pinned []types.Message
	if _, err := c.do(ctx, http.MethodGet, roomPath(key, "/pins"), nil, nil, &pinned); err != nil {
		return nil, err
	}
	return pinned, nil
}

func (c *Client) EditMessage(ctx context.Context, id int64, text string) (types.Message, error) {
	var msg types.Message
	path := "/api/messages/" + strconv.FormatInt(id, 10)
	if _, err := c.do(ctx, http.MethodPatch, path, nil, EditMessageRequest{Text: text}, &msg); err != nil {
		return types.Message{}, err
	}
	return msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	path := "/api/messages/" + strconv.FormatInt(id, 10)
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil, nil)
	return err
}
