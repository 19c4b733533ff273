package client

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

	"timed-quiz/internal/domain"
)

const defaultServer = "http://127.0.0.1:8080"

// ErrServiceUnavailable wraps transport failures reaching the attempt store.
var ErrServiceUnavailable = errors.New("attempt store unavailable")

// APIError is a non-2xx answer from the attempt store.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Detail
}

// Unwrap maps well-known statuses back to domain errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusConflict:
		return domain.ErrAttemptCompleted
	case http.StatusGone:
		return domain.ErrTimeLimitExceeded
	default:
		return nil
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// HTTPClient talks to the attempt-store REST API with a bearer token.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultServer
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, token: strings.TrimSpace(token), httpClient: httpClient}
}

// Start requests (or resumes) an attempt for quizID.
func (c *HTTPClient) Start(ctx context.Context, quizID string) (domain.StartRecord, error) {
	var record domain.StartRecord
	if err := c.doJSON(ctx, http.MethodPost, quizPath(quizID, "/start"), nil, &record); err != nil {
		return domain.StartRecord{}, err
	}
	return record, nil
}

// FetchQuiz loads the student view of a quiz.
func (c *HTTPClient) FetchQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := c.doJSON(ctx, http.MethodGet, quizPath(quizID, ""), nil, &quiz); err != nil {
		return domain.Quiz{}, err
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	return quiz, nil
}

// Submit sends the answer set. An empty answer list is sent as [] and never as null.
func (c *HTTPClient) Submit(ctx context.Context, quizID string, req domain.SubmitRequest) (domain.SubmissionResult, error) {
	if req.Answers == nil {
		req.Answers = []domain.Answer{}
	}
	var result domain.SubmissionResult
	if err := c.doJSON(ctx, http.MethodPost, quizPath(quizID, "/submit"), req, &result); err != nil {
		return domain.SubmissionResult{}, err
	}
	return result, nil
}

// Result fetches a submitted attempt's result by attempt id.
func (c *HTTPClient) Result(ctx context.Context, attemptID string) (domain.SubmissionResult, error) {
	var result domain.SubmissionResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/results/"+url.PathEscape(attemptID), nil, &result); err != nil {
		return domain.SubmissionResult{}, err
	}
	return result, nil
}

// MyResult fetches the caller's latest result for a quiz.
func (c *HTTPClient) MyResult(ctx context.Context, quizID string) (domain.SubmissionResult, error) {
	var result domain.SubmissionResult
	if err := c.doJSON(ctx, http.MethodGet, quizPath(quizID, "/my-result"), nil, &result); err != nil {
		return domain.SubmissionResult{}, err
	}
	return result, nil
}

func quizPath(quizID, suffix string) string {
	return "/api/quizzes/" + url.PathEscape(quizID) + suffix
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) error {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := APIError{StatusCode: response.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(response.Body).Decode(&payload); err == nil {
			apiErr.Detail = payload.Detail
		}
		if strings.TrimSpace(apiErr.Detail) == "" {
			apiErr.Detail = response.Status
		}
		return &apiErr
	}

	if responseBody == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseBody); err != nil {
		return &domain.ProtocolError{Op: method + " " + path, Reason: "undecodable body", Err: err}
	}
	return nil
}
