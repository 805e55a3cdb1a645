// Package stocktag prepares photo trees for stock distribution: it asks a vision model for
// descriptions and keywords in a batch job, then writes the results into the images.
package stocktag

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Providers of the remote batch service.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderGemini: "gemini-2.5-flash",
}

// ErrNoPhotoDir is returned by steps that walk the corpus when no photo root is configured.
var ErrNoPhotoDir = errors.New("photo directory is not configured")

// Config holds configuration for stocktag.
type Config struct {
	PhotoDir string
	SiteRoot string

	TasksPath   string
	ResultsPath string
	JobIDPath   string
	ArchiveDir  string

	Provider string
	Model    string

	DescriptionLength int
	KeywordsCount     int

	ExiftoolPath string
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	c := &Config{
		PhotoDir:     os.Getenv("STOCKTAG_PHOTO_DIR"),
		SiteRoot:     os.Getenv("STOCKTAG_SITE_ROOT"),
		TasksPath:    getEnv("STOCKTAG_TASKS_PATH", "batch_tasks.jsonl"),
		ResultsPath:  getEnv("STOCKTAG_RESULTS_PATH", "batch_tasks_output.jsonl"),
		JobIDPath:    getEnv("STOCKTAG_JOB_ID_PATH", "batch_job_id.txt"),
		ArchiveDir:   getEnv("STOCKTAG_ARCHIVE_DIR", "batches"),
		Provider:     getEnv("STOCKTAG_PROVIDER", ProviderOpenAI),
		Model:        os.Getenv("STOCKTAG_MODEL"),
		ExiftoolPath: os.Getenv("STOCKTAG_EXIFTOOL"),
	}

	var err error
	if c.DescriptionLength, err = getEnvInt("STOCKTAG_DESCRIPTION_LENGTH", 200); err != nil {
		return nil, err
	}
	if c.KeywordsCount, err = getEnvInt("STOCKTAG_KEYWORDS_COUNT", 50); err != nil {
		return nil, err
	}

	def, ok := defaultModels[c.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (want %q or %q)", c.Provider, ProviderOpenAI, ProviderGemini)
	}
	if c.Model == "" {
		c.Model = def
	}

	return c, nil
}

// CheckCorpus verifies the settings needed by steps that walk the photo tree.
func (c *Config) CheckCorpus() error {
	if c.PhotoDir == "" {
		return ErrNoPhotoDir
	}
	st, err := os.Stat(c.PhotoDir)
	if err != nil {
		return fmt.Errorf("stat photo dir: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", c.PhotoDir)
	}
	if c.SiteRoot == "" {
		return errors.New("site root is not configured")
	}
	return nil
}

func getEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return n, nil
}
