package stocktag

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"k8s.io/klog/v2"
)

// ResultRecord is one line of the result artifact.
type ResultRecord struct {
	CustomID string          `json:"custom_id"`
	Response *ResultResponse `json:"response,omitempty"`
	Error    *ResultError    `json:"error,omitempty"`
}

// ResultResponse wraps the chat completion returned for a job.
type ResultResponse struct {
	StatusCode int        `json:"status_code,omitempty"`
	Body       ResultBody `json:"body"`
}

// ResultBody is the subset of a chat completion we read.
type ResultBody struct {
	Choices []ResultChoice `json:"choices"`
}

// ResultChoice is a single completion choice.
type ResultChoice struct {
	Message ResultMessage `json:"message"`
}

// ResultMessage holds the generated text. Content is nil when the field is absent.
type ResultMessage struct {
	Content *string `json:"content"`
}

// ResultError describes a job that the remote service could not complete.
type ResultError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewResultRecord returns a successful result carrying text.
func NewResultRecord(customID string, text string) ResultRecord {
	return ResultRecord{
		CustomID: customID,
		Response: &ResultResponse{
			StatusCode: http.StatusOK,
			Body:       ResultBody{Choices: []ResultChoice{{Message: ResultMessage{Content: &text}}}},
		},
	}
}

// Text returns the generated text of a successful result.
func (r ResultRecord) Text() (string, error) {
	if r.Error != nil {
		return "", fmt.Errorf("job failed: %s %s", r.Error.Code, r.Error.Message)
	}
	if r.Response == nil {
		return "", fmt.Errorf("no response")
	}
	if sc := r.Response.StatusCode; sc != 0 && sc != http.StatusOK {
		return "", fmt.Errorf("status code %d", sc)
	}
	if len(r.Response.Body.Choices) == 0 {
		return "", fmt.Errorf("no choices")
	}
	c := r.Response.Body.Choices[0].Message.Content
	if c == nil {
		return "", fmt.Errorf("no message content")
	}
	return *c, nil
}

// Responses maps resource identifiers to raw model output. It is read-only once built.
type Responses struct {
	m map[string]string
}

// Lookup returns the raw response for a resource identifier.
func (r *Responses) Lookup(id string) (string, bool) {
	s, ok := r.m[id]
	return s, ok
}

// Len returns the number of reconciled responses.
func (r *Responses) Len() int {
	return len(r.m)
}

// Reconcile joins the job queue with the batch results on custom_id. Records that cannot
// be joined or read are logged and dropped.
func Reconcile(c *Config, tasksPath string, resultsPath string) (*Responses, error) {
	jobs, err := ReadJobs(tasksPath)
	if err != nil {
		return nil, err
	}

	idx := make(map[string]JobRecord, len(jobs))
	for _, j := range jobs {
		idx[j.CustomID] = j
	}

	rs := &Responses{m: map[string]string{}}
	dropped := 0
	err = readJSONL(resultsPath, func(line int, data []byte) {
		var r ResultRecord
		if err := json.Unmarshal(data, &r); err != nil {
			klog.Warningf("%s:%d: bad result record: %v", resultsPath, line, err)
			dropped++
			return
		}

		j, ok := idx[r.CustomID]
		if !ok {
			klog.Warningf("result %q has no matching task", r.CustomID)
			dropped++
			return
		}

		u, err := j.ImageURL()
		if err != nil {
			klog.Warningf("error processing task %s: %v", r.CustomID, err)
			dropped++
			return
		}

		text, err := r.Text()
		if err != nil {
			klog.Warningf("error processing task %s: %v", r.CustomID, err)
			dropped++
			return
		}

		id := StripSitePrefix(u, c.SiteRoot)
		if _, err := RelPath(id); err != nil {
			klog.Warningf("task %s: %s is not under site root %q: %v", r.CustomID, u, c.SiteRoot, err)
		}
		if _, dup := rs.m[id]; dup {
			klog.Warningf("task %s repeats %s, keeping the later result", r.CustomID, id)
		}
		klog.V(2).Infof("%s -> %s: %q", r.CustomID, id, text)
		rs.m[id] = text
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrNoResults, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	klog.Infof("reconciled %d responses from %d tasks (%d results dropped)", rs.Len(), len(jobs), dropped)
	return rs, nil
}
