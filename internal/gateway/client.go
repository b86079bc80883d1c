// Package gateway is the HTTP client of the remote photo service. It maps
// every transport and status failure onto the data layer error kinds.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
)

const (
	// DaysCacheTTL is how long calendar markers are reused
	DaysCacheTTL = 60 * time.Second

	daysCachePrefix = "days:"
	maxErrorBody    = 64 * 1024
)

// Client talks to the photo endpoints on behalf of the current session
type Client struct {
	baseURL string
	http    *http.Client
	tokens  oauth2.TokenSource
	days    *cache.Cache
	logger  *observability.Logger
}

// New creates a Client. tokens is usually the session state; every request
// carries its current token as a bearer credential.
func New(baseURL string, timeout time.Duration, tokens oauth2.TokenSource, logger *observability.Logger) *Client {
	if logger == nil {
		logger = observability.Component("gateway")
	}
	guarded := requireToken{src: tokens}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// Base left nil so the transport is resolved per request
			Transport: &oauth2.Transport{Source: guarded},
			Timeout:   timeout,
		},
		tokens: guarded,
		days:   cache.New(DaysCacheTTL, DaysCacheTTL*2),
		logger: logger,
	}
}

// BaseURL returns the API root the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// requireToken turns a missing session token into ErrUnauthorized before
// anything is sent.
type requireToken struct {
	src oauth2.TokenSource
}

func (r requireToken) Token() (*oauth2.Token, error) {
	if r.src == nil {
		return nil, fmt.Errorf("%w: no token source", models.ErrUnauthorized)
	}
	tok, err := r.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("%w: token is empty or expired", models.ErrUnauthorized)
	}
	return tok, nil
}

// List fetches one page. Pagination numbers are taken from the response as-is.
func (c *Client) List(ctx context.Context, q models.ListQuery) (*models.PhotoPage, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Date != "" {
		params.Set("date", q.Date)
	}
	path := "/photos"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page models.PhotoPage
	if err := c.do(ctx, http.MethodGet, path, nil, "", &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []models.Photo{}
	}
	return &page, nil
}

// Get fetches a single photo
func (c *Client) Get(ctx context.Context, id string) (*models.Photo, error) {
	if err := models.ValidatePhotoID(id); err != nil {
		return nil, err
	}
	var photo models.Photo
	if err := c.do(ctx, http.MethodGet, "/photos/"+url.PathEscape(id), nil, "", &photo); err != nil {
		return nil, err
	}
	return &photo, nil
}

// Create uploads a new photo. It is never retried automatically.
func (c *Client) Create(ctx context.Context, form *models.PhotoForm) (*models.Photo, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	body, contentType, err := encodeForm(form)
	if err != nil {
		return nil, err
	}

	var photo models.Photo
	if err := c.do(ctx, http.MethodPost, "/photos", body, contentType, &photo); err != nil {
		return nil, err
	}
	c.days.Flush()
	return &photo, nil
}

// Delete removes a photo. A photo that is already gone counts as deleted.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := models.ValidatePhotoID(id); err != nil {
		return err
	}
	err := c.do(ctx, http.MethodDelete, "/photos/"+url.PathEscape(id), nil, "", nil)
	if errors.Is(err, models.ErrNotFound) {
		err = nil
	}
	if err == nil {
		c.days.Flush()
	}
	return err
}

// DaysWithPhotos returns calendar markers, cached per token for DaysCacheTTL
func (c *Client) DaysWithPhotos(ctx context.Context) ([]models.DayCount, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	key := daysCachePrefix + tok.AccessToken
	if cached, ok := c.days.Get(key); ok {
		return cached.([]models.DayCount), nil
	}

	var days []models.DayCount
	if err := c.do(ctx, http.MethodGet, "/calendar/days-with-photos", nil, "", &days); err != nil {
		return nil, err
	}
	if days == nil {
		days = []models.DayCount{}
	}
	c.days.Set(key, days, cache.DefaultExpiration)
	return days, nil
}

// Reset drops cached responses
func (c *Client) Reset() {
	c.days.Flush()
}

func encodeForm(form *models.PhotoForm) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := form.Filename
	if filename == "" {
		filename = "photo.jpg"
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "image/jpeg"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, form.Image); err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	fields := map[string]string{
		"capturedAt": form.CapturedAt.UTC().Format(time.RFC3339),
		"address":    form.Address,
		"notes":      form.Notes,
	}
	if form.Coordinates != nil {
		fields["latitude"] = strconv.FormatFloat(form.Coordinates.Latitude, 'f', -1, 64)
		fields["longitude"] = strconv.FormatFloat(form.Coordinates.Longitude, 'f', -1, 64)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// do sends one request and decodes a JSON response into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	return doJSON(ctx, c.http, c.logger, method, c.baseURL+path, body, contentType, out)
}

func doJSON(ctx context.Context, client *http.Client, logger *observability.Logger, method, rawURL string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	ctx, span := observability.StartClientSpan(ctx, req)
	defer span.End()
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		err = transportError(err)
		logger.WithContext(ctx).Warnf("[api] %s %s → %s", method, req.URL.Path, err)
		observability.RecordError(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := statusError(resp.StatusCode, raw)
		logger.WithContext(ctx).Warnf("[api] %s %s → %d %s", method, req.URL.Path, resp.StatusCode, errorMessage(raw))
		observability.RecordError(span, err)
		return err
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			err = fmt.Errorf("%w: decode %s %s: %w", models.ErrServerError, method, req.URL.Path, err)
			observability.RecordError(span, err)
			return err
		}
	}

	observability.SetSuccess(span)
	return nil
}

// transportError classifies a failure that produced no HTTP response
func transportError(err error) error {
	if errors.Is(err, models.ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrNetworkUnavailable, err)
}

func statusError(status int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", models.ErrUnauthorized, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", models.ErrServerError, status, msg)
	}
}

// errorMessage pulls the human readable message out of an error body
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
