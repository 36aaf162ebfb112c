package simworker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/okian/sightline/internal/domain/model"
)

// HTTPReporter delivers worker events to the relay's callback routes:
// messages to GET /message, results to GET /result.
type HTTPReporter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReporter creates a reporter for the relay at baseURL.
func NewHTTPReporter(baseURL string, client *http.Client) *HTTPReporter {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPReporter{baseURL: baseURL, client: client}
}

// Report implements worker.Reporter.
func (r *HTTPReporter) Report(ctx context.Context, sid model.SessionID, event model.Event) error {
	target, err := r.callbackURL(sid, event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback %s: %w", event.Topic, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrCallback, event.Topic, resp.StatusCode)
	}
	return nil
}

func (r *HTTPReporter) callbackURL(sid model.SessionID, event model.Event) (string, error) {
	q := url.Values{}
	q.Set("uid", sid.String())
	switch {
	case event.Topic == model.TopicMessage && event.Message != nil:
		q.Set("message", event.Message.Text)
		return r.baseURL + "/message?" + q.Encode(), nil
	case event.Topic == model.TopicResult && event.Result != nil:
		q.Set("image_name", event.Result.ImageName)
		q.Set("prediction", event.Result.Prediction)
		q.Set("confidence", event.Result.Confidence)
		if event.JobID != "" {
			q.Set("job_id", event.JobID)
		}
		return r.baseURL + "/result?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("unsupported event topic %q", event.Topic)
	}
}
