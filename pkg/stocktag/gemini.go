package stocktag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

// Gemini runs batches through the Gemini Batch API using inlined requests. Responses
// come back in request order and are re-keyed with the submitted custom_ids.
type Gemini struct {
	c      *Config
	client *genai.Client
}

// NewGemini returns a batch service authenticated with GEMINI_API_KEY.
func NewGemini(ctx context.Context, c *Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: %w", err)
	}
	return &Gemini{c: c, client: client}, nil
}

// inlinedRequest converts a chat completion job into a Gemini request.
func inlinedRequest(j JobRecord) (*genai.InlinedRequest, error) {
	u, err := j.ImageURL()
	if err != nil {
		return nil, err
	}
	img := genai.NewPartFromURI(u, "image/jpeg")
	return &genai.InlinedRequest{
		Contents: []*genai.Content{genai.NewContentFromParts([]*genai.Part{img}, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(j.SystemPrompt(), genai.RoleUser),
		},
	}, nil
}

func (g *Gemini) Submit(ctx context.Context, tasksPath string) (string, error) {
	js, err := ReadJobs(tasksPath)
	if err != nil {
		return "", err
	}

	reqs := make([]*genai.InlinedRequest, 0, len(js))
	for _, j := range js {
		r, err := inlinedRequest(j)
		if err != nil {
			return "", fmt.Errorf("convert %s: %w", j.CustomID, err)
		}
		reqs = append(reqs, r)
	}

	b, err := g.client.Batches.Create(ctx, g.c.Model,
		&genai.BatchJobSource{InlinedRequests: reqs},
		&genai.CreateBatchJobConfig{DisplayName: "stocktag-" + uuid.New().String()})
	if err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	return b.Name, nil
}

func geminiStatus(s genai.JobState) Status {
	switch s {
	case genai.JobStateUnspecified:
		return StatusSubmitted
	case genai.JobStateQueued, genai.JobStatePending:
		return StatusValidating
	case genai.JobStateRunning, genai.JobStatePaused, genai.JobStateUpdating:
		return StatusInProgress
	case genai.JobStateCancelling:
		return StatusCancelling
	case genai.JobStateSucceeded, genai.JobStatePartiallySucceeded:
		return StatusCompleted
	case genai.JobStateFailed:
		return StatusFailed
	case genai.JobStateCancelled:
		return StatusCancelled
	case genai.JobStateExpired:
		return StatusExpired
	}
	return Status(s)
}

func (g *Gemini) Get(ctx context.Context, id string) (*Job, error) {
	b, err := g.client.Batches.Get(ctx, id, nil)
	if err != nil {
		return nil, err
	}

	j := &Job{ID: b.Name, Status: geminiStatus(b.State), ref: b}
	if b.Error != nil {
		j.Detail = b.Error.Message
	}
	return j, nil
}

func (g *Gemini) Results(_ context.Context, j *Job) (io.ReadCloser, error) {
	b, ok := j.ref.(*genai.BatchJob)
	if !ok {
		return nil, fmt.Errorf("job %s was not fetched from Gemini", j.ID)
	}
	if b.Dest == nil || len(b.Dest.InlinedResponses) == 0 {
		return nil, fmt.Errorf("job %s has no inlined responses", j.ID)
	}

	js, err := ReadJobs(TasksFor(g.c))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(js))
	for i, jr := range js {
		ids[i] = jr.CustomID
	}

	var buf bytes.Buffer
	if err := writeInlined(&buf, ids, b.Dest.InlinedResponses); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

// writeInlined renders Gemini responses as result-artifact lines.
func writeInlined(w io.Writer, ids []string, rs []*genai.InlinedResponse) error {
	if len(ids) != len(rs) {
		klog.Warningf("batch returned %d responses for %d tasks", len(rs), len(ids))
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, r := range rs {
		if i >= len(ids) {
			break
		}
		rec := ResultRecord{CustomID: ids[i]}
		switch {
		case r == nil:
			rec.Error = &ResultError{Message: "empty response"}
		case r.Error != nil:
			rec.Error = &ResultError{Message: r.Error.Message}
			if r.Error.Code != nil {
				rec.Error.Code = strconv.Itoa(int(*r.Error.Code))
			}
		case r.Response == nil:
			rec.Error = &ResultError{Message: "empty response"}
		default:
			rec = NewResultRecord(ids[i], r.Response.Text())
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode %s: %w", ids[i], err)
		}
	}
	return nil
}
