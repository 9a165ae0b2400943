// Package remote talks to the lab scheduling API that owns the subject,
// instructor, link and enrolment collections.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/maclab-sync/internal/models"
	"github.com/noah-isme/maclab-sync/pkg/config"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

const (
	maxBodyBytes  = 8 << 20
	statusSuccess = "success"
)

// Client fetches collections and submits writes over HTTP.
type Client struct {
	cfg    config.RemoteConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient constructs a Client. A nil httpClient gets one with the configured timeout.
func NewClient(cfg config.RemoteConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// envelope is the {data: [...]} | {message: "..."} wrapper used by most endpoints.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
}

// FetchSubjects returns the subject collection.
func (c *Client) FetchSubjects(ctx context.Context) models.CollectionResult[models.Subject] {
	return fetchCollection[models.Subject](ctx, c, models.CollectionSubjects, c.cfg.SubjectsPath)
}

// FetchInstructors returns the instructor collection.
func (c *Client) FetchInstructors(ctx context.Context) models.CollectionResult[models.Instructor] {
	return fetchCollection[models.Instructor](ctx, c, models.CollectionInstructors, c.cfg.InstructorsPath)
}

// FetchLinks returns the subject-instructor link collection.
func (c *Client) FetchLinks(ctx context.Context) models.CollectionResult[models.Link] {
	return fetchCollection[models.Link](ctx, c, models.CollectionLinks, c.cfg.LinksPath)
}

// FetchStudentEnrollments returns every student with their enrolled subjects.
func (c *Client) FetchStudentEnrollments(ctx context.Context) models.CollectionResult[models.StudentWithSubjects] {
	return fetchCollection[models.StudentWithSubjects](ctx, c, models.CollectionEnrollments, c.cfg.EnrollmentsPath)
}

// FetchSubject re-reads the subject collection and returns the subject with
// the given id, secret key included. The API has no single-subject endpoint.
func (c *Client) FetchSubject(ctx context.Context, id models.ID) (models.Subject, error) {
	res := c.FetchSubjects(ctx)
	if res.Kind == models.CollectionErr {
		return models.Subject{}, res.Err
	}
	for _, subject := range res.Items() {
		if subject.ID == id {
			return subject, nil
		}
	}
	return models.Subject{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s not found", id))
}

// CreateEnrollment submits a new enrolment and requires a success status back.
func (c *Client) CreateEnrollment(ctx context.Context, enrollment models.Enrollment) error {
	env, err := c.post(ctx, c.cfg.EnrollmentPostPath, enrollment)
	if err != nil {
		return err
	}
	if env.Status != statusSuccess {
		return appErrors.Clone(appErrors.ErrRemoteRejected, rejectionMessage("enrolment", env))
	}
	return nil
}

// CreateLink assigns an instructor to a subject. The endpoint answers with the
// created record, so only an explicit non-success status counts as a rejection.
func (c *Client) CreateLink(ctx context.Context, link models.Link) error {
	env, err := c.post(ctx, c.cfg.LinkPostPath, link)
	if err != nil {
		return err
	}
	if env.Status != "" && env.Status != statusSuccess {
		return appErrors.Clone(appErrors.ErrRemoteRejected, rejectionMessage("link", env))
	}
	return nil
}

// CreateLabLog records a lock or unlock event. The endpoint may echo the
// stored record, whose status is the door state, so any 2xx answer counts.
func (c *Client) CreateLabLog(ctx context.Context, entry models.LabLog) error {
	if _, err := c.post(ctx, c.cfg.LogPostPath, entry); err != nil && !errors.Is(err, appErrors.ErrMalformedResponse) {
		return err
	}
	return nil
}

// FetchPosts returns the lab guideline feed. Image paths are resolved against
// the remote storage root.
func (c *Client) FetchPosts(ctx context.Context) models.CollectionResult[models.Post] {
	res := fetchCollection[models.Post](ctx, c, models.CollectionPosts, c.cfg.PostsPath)
	for i := range res.Records {
		if image := strings.TrimLeft(res.Records[i].Image, "/"); image != "" {
			res.Records[i].ImageURL = c.url(c.cfg.StoragePath + "/" + image)
		}
	}
	return res
}

func fetchCollection[T any](ctx context.Context, c *Client, name, path string) models.CollectionResult[T] {
	body, err := c.get(ctx, path)
	if err != nil {
		return models.Failed[T](err)
	}
	return decodeCollection[T](name, body)
}

// decodeCollection maps a payload onto the tagged result. Both the wrapped
// {data: [...]} form and a bare array are accepted; a message without data is
// the server's way of saying "no results".
func decodeCollection[T any](name string, body []byte) models.CollectionResult[T] {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return models.Failed[T](malformed(name, "empty body", nil))
	}

	switch trimmed[0] {
	case '[':
		var records []T
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return models.Failed[T](malformed(name, "decode array", err))
		}
		return models.Ok(records)
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return models.Failed[T](malformed(name, "decode envelope", err))
		}
		data := bytes.TrimSpace(env.Data)
		if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
			var records []T
			if err := json.Unmarshal(data, &records); err != nil {
				return models.Failed[T](malformed(name, "decode data", err))
			}
			return models.Ok(records)
		}
		if env.Message != "" {
			return models.Empty[T](env.Message)
		}
		return models.Failed[T](malformed(name, "neither data nor message present", nil))
	default:
		return models.Failed[T](malformed(name, "unexpected payload", nil))
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build request")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return envelope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(raw))
	if err != nil {
		return envelope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		// A 4xx on a write is the store refusing it, not a transient outage.
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Status >= 400 && appErr.Status < 500 {
			return envelope{}, appErrors.Wrap(err, appErrors.ErrRemoteRejected.Code, appErrors.ErrRemoteRejected.Status, "remote store rejected the write")
		}
		return envelope{}, err
	}

	var env envelope
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return envelope{}, malformed(path, "decode write response", err)
		}
	}
	return env, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientFetch.Code, appErrors.ErrTransientFetch.Status, fmt.Sprintf("%s %s", req.Method, req.URL.Path))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientFetch.Code, appErrors.ErrTransientFetch.Status, "read response body")
	}

	c.logger.Debug("remote call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &appErrors.Error{
			Code:    appErrors.ErrTransientFetch.Code,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s %s returned %d", req.Method, req.URL.Path, resp.StatusCode),
		}
	}
	return body, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.cfg.BaseURL + path
}

func malformed(name, detail string, err error) *appErrors.Error {
	msg := fmt.Sprintf("%s: %s", name, detail)
	if err == nil {
		return appErrors.Clone(appErrors.ErrMalformedResponse, msg)
	}
	return appErrors.Wrap(err, appErrors.ErrMalformedResponse.Code, appErrors.ErrMalformedResponse.Status, msg)
}

func rejectionMessage(what string, env envelope) string {
	if env.Message != "" {
		return fmt.Sprintf("%s rejected: %s", what, env.Message)
	}
	if env.Status != "" {
		return fmt.Sprintf("%s rejected with status %q", what, env.Status)
	}
	return fmt.Sprintf("%s rejected", what)
}
