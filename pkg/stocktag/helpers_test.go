package stocktag

import (
	"os"
	"path/filepath"
	"testing"
)

// mkTree creates empty files under root for each slash-separated relative path.
func mkTree(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("not really a jpeg"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func testConfig(t *testing.T, photoDir string) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		PhotoDir:          photoDir,
		SiteRoot:          testSite,
		TasksPath:         filepath.Join(dir, "batch_tasks.jsonl"),
		ResultsPath:       filepath.Join(dir, "batch_tasks_output.jsonl"),
		JobIDPath:         filepath.Join(dir, "batch_job_id.txt"),
		ArchiveDir:        filepath.Join(dir, "batches"),
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o-mini",
		DescriptionLength: 200,
		KeywordsCount:     50,
	}
}

func mustWrite(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
