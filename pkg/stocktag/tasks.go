package stocktag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"k8s.io/klog/v2"
)

// ChatCompletionsURL is the endpoint every job in the queue is sent to.
const ChatCompletionsURL = "/v1/chat/completions"

// maxLine bounds a single JSONL record.
const maxLine = 16 * 1024 * 1024

// JobRecord is one line of the job-queue artifact.
type JobRecord struct {
	CustomID string  `json:"custom_id"`
	Method   string  `json:"method"`
	URL      string  `json:"url"`
	Body     JobBody `json:"body"`
}

// JobBody is a chat completion request.
type JobBody struct {
	Model    string       `json:"model"`
	Messages []JobMessage `json:"messages"`
}

// JobMessage is a chat message. Content is a string for the system prompt and a list of parts for the image.
type JobMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is a single element of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef points at a publicly reachable image.
type ImageRef struct {
	URL string `json:"url"`
}

// CustomID returns the job identifier for a zero-based job index.
func CustomID(index int) string {
	return fmt.Sprintf("task-%d", index)
}

// NewJobRecord builds the request for one image.
func NewJobRecord(c *Config, index int, ic *ImageContext) JobRecord {
	return JobRecord{
		CustomID: CustomID(index),
		Method:   "POST",
		URL:      ChatCompletionsURL,
		Body: JobBody{
			Model: c.Model,
			Messages: []JobMessage{
				{Role: "system", Content: Prompt(c, ic)},
				{Role: "user", Content: []ContentPart{
					{Type: "image_url", ImageURL: &ImageRef{URL: ImageURL(c.SiteRoot, ic.RelPath)}},
				}},
			},
		},
	}
}

// SystemPrompt returns the text of the system message, if any.
func (j JobRecord) SystemPrompt() string {
	for _, m := range j.Body.Messages {
		if s, ok := m.Content.(string); ok && m.Role == "system" {
			return s
		}
	}
	return ""
}

// ImageURL returns the image URL carried by the user message.
func (j JobRecord) ImageURL() (string, error) {
	if len(j.Body.Messages) < 2 {
		return "", fmt.Errorf("%s: expected 2 messages, got %d", j.CustomID, len(j.Body.Messages))
	}
	// Content decodes as []any of map[string]any; round-trip it into parts.
	bs, err := json.Marshal(j.Body.Messages[1].Content)
	if err != nil {
		return "", fmt.Errorf("%s: marshal content: %w", j.CustomID, err)
	}
	var parts []ContentPart
	if err := json.Unmarshal(bs, &parts); err != nil {
		return "", fmt.Errorf("%s: user content: %w", j.CustomID, err)
	}
	if len(parts) == 0 || parts[0].ImageURL == nil || parts[0].ImageURL.URL == "" {
		return "", fmt.Errorf("%s: no image_url in user content", j.CustomID)
	}
	return parts[0].ImageURL.URL, nil
}

// GenerateTasks rewrites the job-queue artifact with one record per image under c.PhotoDir.
func GenerateTasks(c *Config) (int, error) {
	if err := c.CheckCorpus(); err != nil {
		return 0, err
	}

	f, err := os.Create(c.TasksPath)
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}

	n, err := writeTasks(c, f)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close: %w", cerr)
	}
	return n, err
}

func writeTasks(c *Config, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	n := 0
	for ic, err := range Scan(c.PhotoDir) {
		if err != nil {
			return n, fmt.Errorf("scan: %w", err)
		}
		j := NewJobRecord(c, n, ic)
		if err := enc.Encode(j); err != nil {
			return n, fmt.Errorf("encode %s: %w", j.CustomID, err)
		}
		klog.Infof("added task %s: %s", j.CustomID, ImageURL(c.SiteRoot, ic.RelPath))
		n++
	}

	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}
	return n, nil
}

// readJSONL calls fn with each non-empty line of path. Decoding is left to fn so that a bad
// line can be skipped without abandoning the file.
func readJSONL(path string, fn func(line int, data []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for s.Scan() {
		line++
		if len(s.Bytes()) == 0 {
			continue
		}
		fn(line, s.Bytes())
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("%s:%d: %w", path, line+1, err)
	}
	return nil
}

// ReadJobs loads the job-queue artifact. Lines that fail to decode are logged and skipped.
func ReadJobs(path string) ([]JobRecord, error) {
	js := []JobRecord{}
	err := readJSONL(path, func(line int, data []byte) {
		var j JobRecord
		if err := json.Unmarshal(data, &j); err != nil {
			klog.Warningf("%s:%d: bad job record: %v", path, line, err)
			return
		}
		js = append(js, j)
	})
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	return js, nil
}
