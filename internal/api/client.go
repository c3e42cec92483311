package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"reels/internal/config"
	"reels/internal/feed"
	"reels/internal/logging"
)

const (
	clientName = "Reels"
	deviceName = "Go"
	version    = "1.0.0"
)

var ErrNoMedia = errors.New("item has no downloadable media")

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

type Client struct {
	Server   string
	UserID   string
	Token    string
	DeviceID string
	http     *http.Client
	Latency  time.Duration
}

type MediaItem struct {
	ID           string        `json:"Id"`
	Name         string        `json:"Name"`
	Type         string        `json:"Type"`
	Overview     string        `json:"Overview,omitempty"`
	ParentID     string        `json:"ParentId,omitempty"`
	RunTimeTicks int64         `json:"RunTimeTicks,omitempty"`
	DateCreated  string        `json:"DateCreated,omitempty"`
	MediaSources []MediaSource `json:"MediaSources,omitempty"`
	ImageTags    ImageTags     `json:"ImageTags,omitempty"`
	Genres       []string      `json:"Genres,omitempty"`
	GenreItems   []NameID      `json:"GenreItems,omitempty"`
	ExternalUrls []ExternalURL `json:"ExternalUrls,omitempty"`
	UserData     *UserData     `json:"UserData,omitempty"`
}

func (m *MediaItem) imageID() string {
	if m.ImageTags.Primary != "" {
		return m.ID
	}
	if m.ParentID != "" {
		return m.ParentID
	}
	return m.ID
}

type NameID struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

type ExternalURL struct {
	Name string `json:"Name"`
	URL  string `json:"Url"`
}

type UserData struct {
	PlaybackPositionTicks int64  `json:"PlaybackPositionTicks"`
	Played                bool   `json:"Played"`
	IsFavorite            bool   `json:"IsFavorite"`
	LastPlayedDate        string `json:"LastPlayedDate,omitempty"`
}

type ImageTags struct {
	Primary string `json:"Primary,omitempty"`
}

type MediaSource struct {
	ID        string `json:"Id"`
	Container string `json:"Container"`
}

type ItemsResponse struct {
	Items      []MediaItem `json:"Items"`
	TotalCount int         `json:"TotalRecordCount"`
}

type AuthResponse struct {
	User        AuthUser `json:"User"`
	AccessToken string   `json:"AccessToken"`
}

type AuthUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

func New(server, deviceID string) *Client {
	return &Client{
		Server:   strings.TrimRight(server, "/"),
		DeviceID: deviceID,
		http: &http.Client{
			Timeout:   config.HTTPClientTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) authHeader() string {
	h := fmt.Sprintf(`MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="%s"`,
		clientName, deviceName, c.DeviceID, version)
	if c.Token != "" {
		h += fmt.Sprintf(`, Token="%s"`, c.Token)
	}
	return h
}

func (c *Client) request(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Server+endpoint, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Emby-Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	c.Latency = time.Since(start)

	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if logging.IsEnabled() {
		logging.HTTP(method, c.Server+endpoint, resp.StatusCode, string(respBody))
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{
		"Username": username,
		"Pw":       password,
	}

	data, err := c.request(ctx, "POST", "/emby/Users/AuthenticateByName", body)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	var resp AuthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("login: decode: %w", err)
	}

	c.UserID = resp.User.ID
	c.Token = resp.AccessToken
	return nil
}

func (c *Client) VerifyToken(ctx context.Context) bool {
	if c.UserID == "" || c.Token == "" {
		return false
	}
	_, err := c.request(ctx, "GET", "/emby/Users/"+c.UserID, nil)
	return err == nil
}

var sortFields = map[string]string{
	"date":     "DateCreated",
	"title":    "SortName",
	"name":     "SortName",
	"modified": "DateLastContentAdded",
	"random":   "Random",
	"rand":     "Random",
	"duration": "Runtime",
}

func sortParams(order, orderBy string) (string, string) {
	field, ok := sortFields[strings.ToLower(orderBy)]
	if !ok {
		field = "DateCreated"
	}
	dir := "Descending"
	if strings.EqualFold(order, "ASC") {
		dir = "Ascending"
	}
	return field, dir
}

// GetShorts fetches one page of short videos below parentID.
func (c *Client) GetShorts(ctx context.Context, parentID string, q feed.Query) ([]MediaItem, int, error) {
	sortBy, sortOrder := sortParams(q.Order, q.OrderBy)
	params := url.Values{
		"Recursive":        {"true"},
		"IncludeItemTypes": {"Video,Movie"},
		"Fields":           {"Overview,MediaSources,Genres,ExternalUrls,DateCreated"},
		"ImageTypeLimit":   {"1"},
		"EnableImageTypes": {"Primary"},
		"SortBy":           {sortBy},
		"SortOrder":        {sortOrder},
		"StartIndex":       {fmt.Sprintf("%d", q.Offset)},
		"Limit":            {fmt.Sprintf("%d", q.PageSize)},
	}
	if parentID != "" {
		params.Set("ParentId", parentID)
	}
	if q.Category != "" {
		params.Set("Genres", q.Category)
	}

	endpoint := fmt.Sprintf("/emby/Users/%s/Items?%s", c.UserID, params.Encode())
	data, err := c.request(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, 0, err
	}

	var resp ItemsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode items: %w", err)
	}
	return resp.Items, resp.TotalCount, nil
}

// StreamURL points at the static stream of the first media source, or the item itself.
func (c *Client) StreamURL(item MediaItem) string {
	if len(item.MediaSources) > 0 {
		src := item.MediaSources[0]
		return fmt.Sprintf("%s/emby/Videos/%s/stream.%s?MediaSourceId=%s&api_key=%s&Static=true",
			c.Server, item.ID, src.Container, src.ID, c.Token)
	}
	return fmt.Sprintf("%s/emby/Videos/%s/stream?api_key=%s&Static=true", c.Server, item.ID, c.Token)
}

func (c *Client) ImageURL(item MediaItem, width int) string {
	return c.ImageURLByID(item.imageID(), width)
}

func (c *Client) ImageURLByID(itemID string, width int) string {
	return fmt.Sprintf("%s/emby/Items/%s/Images/Primary?maxWidth=%d&api_key=%s",
		c.Server, itemID, width, c.Token)
}

// WebLink is the item page in the server's web client.
func (c *Client) WebLink(itemID string) string {
	return fmt.Sprintf("%s/web/index.html#!/item?id=%s", c.Server, itemID)
}

// ShareURL is the public deep link for item; opening it jumps the feed to
// the item through the short_post_id parameter.
func (c *Client) ShareURL(item feed.Item) string {
	q := url.Values{"short_post_id": {item.ID}}
	return fmt.Sprintf("%s/web/index.html?%s#!/item?id=%s", c.Server, q.Encode(), url.QueryEscape(item.ID))
}

// DownloadURL builds the original-file download link for item.
func (c *Client) DownloadURL(item feed.Item) (string, error) {
	mediaID := item.MediaID
	if mediaID == "" {
		mediaID = item.ID
	}
	if mediaID == "" {
		return "", ErrNoMedia
	}
	params := url.Values{"api_key": {c.Token}}
	return fmt.Sprintf("%s/emby/Items/%s/Download?%s", c.Server, url.PathEscape(mediaID), params.Encode()), nil
}

func (c *Client) Ping(ctx context.Context) time.Duration {
	start := time.Now()
	c.request(ctx, "GET", "/emby/System/Info/Public", nil)
	return time.Since(start)
}

func (c *Client) playbackBody(itemID, mediaSourceID, playSessionID string, positionTicks int64) map[string]any {
	return map[string]any{
		"ItemId":        itemID,
		"MediaSourceId": mediaSourceID,
		"PlaySessionId": playSessionID,
		"PositionTicks": positionTicks,
	}
}

func (c *Client) ReportPlaybackStart(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionTicks int64) error {
	body := c.playbackBody(itemID, mediaSourceID, playSessionID, positionTicks)
	body["CanSeek"] = true
	body["PlayMethod"] = "DirectStream"
	_, err := c.request(ctx, "POST", "/emby/Sessions/Playing", body)
	return err
}

func (c *Client) ReportPlaybackProgress(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionTicks int64, isPaused bool) error {
	body := c.playbackBody(itemID, mediaSourceID, playSessionID, positionTicks)
	body["CanSeek"] = true
	body["PlayMethod"] = "DirectStream"
	body["IsPaused"] = isPaused
	_, err := c.request(ctx, "POST", "/emby/Sessions/Playing/Progress", body)
	return err
}

func (c *Client) ReportPlaybackStopped(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionTicks int64) error {
	body := c.playbackBody(itemID, mediaSourceID, playSessionID, positionTicks)
	_, err := c.request(ctx, "POST", "/emby/Sessions/Playing/Stopped", body)
	return err
}
