package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/pkg/errors"

	"staffdesk/config"
	"staffdesk/core/utils"
)

const maxErrorBody = 64 * 1024

// APIError is a non-2xx response carrying the portal's {message} envelope.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("portal %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("portal %s: status %d: %s", e.Path, e.Status, e.Message)
}

// IsForbidden reports a 403 from the portal, which callers treat as
// "not authorized" rather than a failure.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsTransient reports network failures and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *utils.Logger
}

func NewClient(cfg config.PortalConfig, logger *utils.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "portalapi"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "portalapi: encode body")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrapf(err, "portalapi: build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.Must(uuid.NewV4()).String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "portalapi: %s %s", method, path)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debugf("portal %s %s status=%d", method, path, resp.StatusCode)
		return decodeAPIError(resp, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "portalapi: decode %s", path)
	}
	return nil
}

func decodeAPIError(resp *http.Response, path string) error {
	apiErr := &APIError{Status: resp.StatusCode, Path: path}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		apiErr.Message = strings.TrimSpace(envelope.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(envelope.Error)
		}
	}
	return apiErr
}

func (c *Client) PendingApplications(ctx context.Context) ([]Application, error) {
	var resp struct {
		Applications []Application `json:"applications"`
	}
	if err := c.do(ctx, http.MethodGet, "/applications/pending", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Applications, nil
}

func (c *Client) AccessibleGroups(ctx context.Context) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/groups/accessible", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

func (c *Client) Group(ctx context.Context, id int64) (*Group, error) {
	var resp struct {
		Group *Group `json:"group"`
	}
	path := "/groups/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Group == nil {
		return nil, &APIError{Status: http.StatusNotFound, Path: path}
	}
	return resp.Group, nil
}

func (c *Client) GroupMembers(ctx context.Context, groupID int64) ([]Member, error) {
	var resp struct {
		Members []Member `json:"members"`
	}
	path := "/groups/" + strconv.FormatInt(groupID, 10) + "/members"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

func (c *Client) MyDelegationGroups(ctx context.Context) ([]DelegationGroup, error) {
	var resp struct {
		DelegationGroups []DelegationGroup `json:"delegation_groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/delegation-groups/mine", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.DelegationGroups, nil
}

func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var resp struct {
		User *Profile `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &APIError{Status: http.StatusUnauthorized, Path: "/me"}
	}
	return resp.User, nil
}

func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
	var resp struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/rooms", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

func (c *Client) Room(ctx context.Context, id int64) (*Room, error) {
	var resp struct {
		Room *Room `json:"room"`
	}
	path := "/chat/rooms/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Room == nil {
		return nil, &APIError{Status: http.StatusNotFound, Path: path}
	}
	return resp.Room, nil
}

func (c *Client) Messages(ctx context.Context, roomID int64) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	path := "/chat/rooms/" + strconv.FormatInt(roomID, 10) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, roomID int64, text string) (*Message, error) {
	var resp struct {
		Message *Message `json:"message"`
	}
	path := "/chat/rooms/" + strconv.FormatInt(roomID, 10) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"message": text}, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// Calendar returns attendance and schedule entries for a month (YYYY-MM).
func (c *Client) Calendar(ctx context.Context, month string) ([]CalendarEntry, error) {
	var resp struct {
		Entries []CalendarEntry `json:"entries"`
	}
	q := url.Values{}
	q.Set("month", month)
	if err := c.do(ctx, http.MethodGet, "/attendance/calendar", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}
