package stocktag

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// Status is the lifecycle state of a remote batch job.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusValidating Status = "validating"
	StatusInProgress Status = "in_progress"
	StatusFinalizing Status = "finalizing"
	StatusCancelling Status = "cancelling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions will happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Succeeded reports whether results are ready to download.
func (s Status) Succeeded() bool {
	return s == StatusCompleted
}

var (
	// ErrBatchFailed is returned when a batch reaches a terminal status other than completed.
	ErrBatchFailed = errors.New("batch did not complete")
	// ErrNoHandle is returned when polling before any batch was sent.
	ErrNoHandle = errors.New("no batch job id recorded; send a batch first")
)

// Job is a snapshot of a remote batch job.
type Job struct {
	ID     string
	Status Status
	// Detail is a human-readable summary from the service, such as request counts or errors.
	Detail string

	// ref is backend-specific state needed to fetch results.
	ref any
}

// Service is a remote batch inference service.
type Service interface {
	// Submit uploads the job-queue artifact and starts a batch, returning its id.
	Submit(ctx context.Context, tasksPath string) (string, error)
	// Get fetches the current state of a batch.
	Get(ctx context.Context, id string) (*Job, error)
	// Results streams a completed batch's output in result-artifact format.
	Results(ctx context.Context, j *Job) (io.ReadCloser, error)
}

// ArchivePath is where the job queue submitted as batch id is kept.
func ArchivePath(c *Config, id string) string {
	safe := strings.NewReplacer("/", "_", `\`, "_", ":", "_").Replace(id)
	return filepath.Join(c.ArchiveDir, safe+".jsonl")
}

// SendBatch submits the job queue and records the returned job id.
func SendBatch(ctx context.Context, c *Config, svc Service) (string, error) {
	id, err := svc.Submit(ctx, c.TasksPath)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	klog.Infof("created batch job %s", id)

	if err := os.WriteFile(c.JobIDPath, []byte(id+"\n"), 0o644); err != nil {
		return id, fmt.Errorf("write job id: %w", err)
	}

	ap := ArchivePath(c, id)
	if err := copy.Copy(c.TasksPath, ap); err != nil {
		return id, fmt.Errorf("archive tasks: %w", err)
	}
	klog.V(1).Infof("archived %s to %s", c.TasksPath, ap)

	return id, nil
}

// ReadJobID returns the job id written by the last SendBatch.
func ReadJobID(c *Config) (string, error) {
	f, err := os.Open(c.JobIDPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoHandle
	}
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		return "", ErrNoHandle
	}
	id := strings.TrimSpace(s.Text())
	if id == "" {
		return "", ErrNoHandle
	}
	return id, nil
}

// PollBatch checks the recorded batch once. When it has completed, the results are
// written to c.ResultsPath. It never waits for a status change.
func PollBatch(ctx context.Context, c *Config, svc Service) (*Job, error) {
	id, err := ReadJobID(c)
	if err != nil {
		return nil, err
	}

	j, err := svc.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	klog.Infof("batch job %s status: %s", j.ID, j.Status)

	switch {
	case j.Status.Succeeded():
	case j.Status.Terminal():
		return j, fmt.Errorf("%w: %s is %s: %s", ErrBatchFailed, j.ID, j.Status, j.Detail)
	default:
		if j.Detail != "" {
			klog.Infof("batch job %s: %s", j.ID, j.Detail)
		}
		return j, nil
	}

	rc, err := svc.Results(ctx, j)
	if err != nil {
		return j, fmt.Errorf("results: %w", err)
	}
	defer rc.Close()

	if err := writeFile(c.ResultsPath, rc); err != nil {
		return j, fmt.Errorf("write results: %w", err)
	}
	klog.Infof("results saved to %s", c.ResultsPath)
	return j, nil
}

// TasksFor returns the job queue that was submitted as the current batch, falling back to
// c.TasksPath when no archived copy exists.
func TasksFor(c *Config) string {
	id, err := ReadJobID(c)
	if err != nil {
		return c.TasksPath
	}
	ap := ArchivePath(c, id)
	if _, err := os.Stat(ap); err != nil {
		return c.TasksPath
	}
	return ap
}

// writeFile replaces path with the contents of r, leaving the old file intact on failure.
func writeFile(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
