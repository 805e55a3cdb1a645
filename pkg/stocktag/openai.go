package stocktag

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAI runs batches through the OpenAI Batch API. The job-queue artifact is already
// in its input format, so it is uploaded as-is.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI returns a batch service. The API key is read from OPENAI_API_KEY unless given in opts.
func NewOpenAI(opts ...option.RequestOption) *OpenAI {
	return &OpenAI{client: openai.NewClient(opts...)}
}

type openaiRef struct {
	outputFileID string
	errorFileID  string
}

func (o *OpenAI) Submit(ctx context.Context, tasksPath string) (string, error) {
	f, err := os.Open(tasksPath)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	fo, err := o.client.Files.New(ctx, openai.FileNewParams{
		File:    f,
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", tasksPath, err)
	}

	b, err := o.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      fo.ID,
		Endpoint:         openai.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
		Metadata:         shared.Metadata{"run": uuid.New().String()},
	})
	if err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	return b.ID, nil
}

func (o *OpenAI) Get(ctx context.Context, id string) (*Job, error) {
	b, err := o.client.Batches.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rc := b.RequestCounts
	detail := fmt.Sprintf("%d/%d requests completed, %d failed", rc.Completed, rc.Total, rc.Failed)
	msgs := []string{}
	for _, e := range b.Errors.Data {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	if len(msgs) > 0 {
		detail = detail + "; " + strings.Join(msgs, "; ")
	}

	return &Job{
		ID:     b.ID,
		Status: Status(b.Status),
		Detail: detail,
		ref:    openaiRef{outputFileID: b.OutputFileID, errorFileID: b.ErrorFileID},
	}, nil
}

func (o *OpenAI) Results(ctx context.Context, j *Job) (io.ReadCloser, error) {
	ref, ok := j.ref.(openaiRef)
	if !ok {
		return nil, fmt.Errorf("job %s was not fetched from OpenAI", j.ID)
	}

	// A batch where every request failed has only an error file. Its records carry
	// error payloads, which reconciliation drops one by one.
	fileID := ref.outputFileID
	if fileID == "" {
		fileID = ref.errorFileID
	}
	if fileID == "" {
		return nil, fmt.Errorf("job %s has no output file", j.ID)
	}

	resp, err := o.client.Files.Content(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	return resp.Body, nil
}
