// Package restclient is a typed client for the admin API. It supplies the
// snapshot fetchers and mutation confirmations the dashboard caches use.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/logger"
)

var ErrNotFound = errors.New("restclient: not found")

// APIError is a non-2xx response decoded from the API's error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("api %d %s: %s (request %s)", e.Status, e.Code, msg, e.RequestID)
	}
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, msg)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type Options struct {
	HTTPClient *http.Client
	// RequestRate caps requests per second; zero means unlimited.
	RequestRate float64
	Logger      *zap.Logger
}

type Client struct {
	base string
	hc   *http.Client
	lim  *rate.Limiter
	log  *zap.Logger
}

// New returns a client for the API rooted at baseURL, e.g.
// http://127.0.0.1:38471/api.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("restclient: invalid base url %q", baseURL)
	}
	c := &Client{
		base: u.String(),
		hc:   opts.HTTPClient,
		lim:  rate.NewLimiter(rate.Inf, 1),
		log:  opts.Logger,
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RequestRate > 0 {
		c.lim = rate.NewLimiter(rate.Limit(opts.RequestRate), max(1, int(opts.RequestRate)))
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := c.lim.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	c.log.Debug("api call",
		logger.Method(method), logger.Path(path), logger.Status(res.StatusCode),
		logger.RequestID(reqID), logger.DurationMs(time.Since(start)),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeError(res)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func decodeError(res *http.Response) error {
	apiErr := &APIError{Status: res.StatusCode, RequestID: res.Header.Get("X-Request-ID")}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	var env struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		if env.Error.RequestID != "" {
			apiErr.RequestID = env.Error.RequestID
		}
		return apiErr
	}
	apiErr.Code = "http_error"
	apiErr.Message = strings.TrimSpace(string(b))
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	ct := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		ct = "application/json"
	}
	return c.do(ctx, method, path, body, ct, out)
}

// Jobs

func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	var out []domain.Job
	err := c.getJSON(ctx, "/jobs", &out)
	return out, err
}

type NewJob struct {
	JobID      string
	Position   string
	Location   string
	Experience string
	// PDF is uploaded as the job description when set.
	PDF []byte
}

func (c *Client) CreateJob(ctx context.Context, in NewJob) (domain.Job, error) {
	var out domain.Job
	if len(in.PDF) == 0 {
		err := c.sendJSON(ctx, http.MethodPost, "/jobs", map[string]string{
			"jobId":      in.JobID,
			"position":   in.Position,
			"location":   in.Location,
			"experience": in.Experience,
		}, &out)
		return out, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"jobId":      in.JobID,
		"position":   in.Position,
		"location":   in.Location,
		"experience": in.Experience,
	} {
		if err := mw.WriteField(k, v); err != nil {
			return out, err
		}
	}
	fw, err := mw.CreateFormFile("pdf", in.JobID+".pdf")
	if err != nil {
		return out, err
	}
	if _, err := fw.Write(in.PDF); err != nil {
		return out, err
	}
	if err := mw.Close(); err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, "/jobs", &buf, mw.FormDataContentType(), &out)
	return out, err
}

func (c *Client) UpdateJob(ctx context.Context, jobID string, f domain.JobFields) (domain.Job, error) {
	var out domain.Job
	err := c.sendJSON(ctx, http.MethodPut, "/jobs/"+url.PathEscape(jobID), f, &out)
	return out, err
}

func (c *Client) DeleteJob(ctx context.Context, jobID string) (domain.Tombstone, error) {
	var out domain.Tombstone
	err := c.sendJSON(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(jobID), nil, &out)
	return out, err
}

// Applications

// ListApplications lists applications, all of them when jobID is empty.
func (c *Client) ListApplications(ctx context.Context, jobID string) ([]domain.Application, error) {
	path := "/job-applications"
	if jobID != "" {
		path += "?" + url.Values{"jobId": {jobID}}.Encode()
	}
	var out []domain.Application
	err := c.getJSON(ctx, path, &out)
	return out, err
}

func (c *Client) SetApplicationStatus(ctx context.Context, id string, st domain.ApplicationStatus) (domain.Application, error) {
	var out domain.Application
	path := "/job-applications/applications/" + url.PathEscape(id) + "/status"
	err := c.sendJSON(ctx, http.MethodPatch, path, map[string]string{"status": string(st)}, &out)
	return out, err
}

// Contacts

func (c *Client) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	var out []domain.Contact
	err := c.getJSON(ctx, "/contacts", &out)
	return out, err
}

type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
}

func (c *Client) SubmitContact(ctx context.Context, f ContactForm) (domain.Contact, error) {
	var out domain.Contact
	err := c.sendJSON(ctx, http.MethodPost, "/contact", f, &out)
	return out, err
}

func (c *Client) SetContactRead(ctx context.Context, id string, read bool) (domain.Contact, error) {
	var out domain.Contact
	path := "/contacts/" + url.PathEscape(id) + "/read"
	err := c.sendJSON(ctx, http.MethodPatch, path, map[string]bool{"read": read}, &out)
	return out, err
}

func (c *Client) DeleteContact(ctx context.Context, id string) (domain.Tombstone, error) {
	var out domain.Tombstone
	err := c.sendJSON(ctx, http.MethodDelete, "/contacts/"+url.PathEscape(id), nil, &out)
	return out, err
}
