package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"course-qa/backend/internal/api"
	"course-qa/backend/internal/inference"
	"course-qa/backend/internal/paraphrase"
	"course-qa/backend/internal/retrieval"
	"course-qa/backend/internal/safety"
)

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	safetyCfg := safety.Config{
		BaseURL: os.Getenv("SAFETY_BASE_URL"),
		Timeout: envDuration("SAFETY_TIMEOUT"),
	}
	paraphraseCfg := paraphrase.Config{
		BaseURL: os.Getenv("PARAPHRASE_BASE_URL"),
		Timeout: envDuration("PARAPHRASE_TIMEOUT"),
	}
	retrievalCfg := retrieval.Config{
		BaseURL: os.Getenv("RETRIEVAL_BASE_URL"),
		Timeout: envDuration("RETRIEVAL_TIMEOUT"),
	}
	inferenceCfg := inference.Config{
		BaseURL: os.Getenv("INFERENCE_BASE_URL"),
		Timeout: envDuration("INFERENCE_TIMEOUT"),
	}

	var allowedOrigins []string
	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	cfg := api.Config{
		DBPath:           filepath.Join(dataDir, "course-qa.db"),
		AllowedOrigins:   allowedOrigins,
		SafetyConfig:     safetyCfg,
		ParaphraseConfig: paraphraseCfg,
		RetrievalConfig:  retrievalCfg,
		InferenceConfig:  inferenceCfg,
	}

	if override := strings.TrimSpace(os.Getenv("COURSE_QA_DB_PATH")); override != "" {
		cfg.DBPath = override
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	logrus.Infof("starting course-qa backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}

func envDuration(key string) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logrus.Warnf("ignoring invalid %s=%q: %v", key, value, err)
		return 0
	}
	return d
}
