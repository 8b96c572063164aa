package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/common"
	"github.com/feedvault/feedvault/internal/models"
)

const insightPrompt = `Analyze this image and respond with a single JSON object, no other text:
{
  "detected_text": "any text visible in the image, verbatim",
  "scene_description": "one or two sentences describing the scene",
  "objects_detected": ["notable", "objects"],
  "additional_context": "anything else useful for search or cataloguing"
}
Use empty strings or empty arrays for fields you cannot determine.`

// Service runs vision inference over downloaded post images.
type Service struct {
	client    *anthropic.Client
	config    common.VisionConfig
	timeout   time.Duration
	maxTokens int
	logger    arbor.ILogger
}

// NewService builds the inference service. Returns a disabled service when
// vision is off; callers check Enabled before use.
func NewService(config common.VisionConfig, logger arbor.ILogger) (*Service, error) {
	if !config.Enabled {
		return &Service{config: config, logger: logger}, nil
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("vision is enabled but no API key is set (use ANTHROPIC_API_KEY or vision.api_key)")
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid vision timeout %q: %w", config.Timeout, err)
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	client := anthropic.NewClient(option.WithAPIKey(config.APIKey))

	service := &Service{
		client:    &client,
		config:    config,
		timeout:   timeout,
		maxTokens: maxTokens,
		logger:    logger,
	}

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Vision service initialized")

	return service, nil
}

// Enabled reports whether inference is configured for this run.
func (s *Service) Enabled() bool { return s.config.Enabled }

// Infer describes the image at mediaPath. The returned insight carries zero
// values for any field the model omitted.
func (s *Service) Infer(ctx context.Context, mediaPath string) (*models.ImageInsight, error) {
	if !s.config.Enabled {
		return nil, fmt.Errorf("vision inference is disabled")
	}

	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	mimeType := imageMIMEType(mediaPath)
	if mimeType == "" {
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(mediaPath))
	}

	inferCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Messages.New(inferCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(data)),
				anthropic.NewTextBlock(insightPrompt),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}

	var completion strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			completion.WriteString(block.Text)
		}
	}

	insight, err := ParseInsight(completion.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse vision output: %w", err)
	}

	s.logger.Debug().
		Str("path", mediaPath).
		Dur("duration", time.Since(start)).
		Msg("Image inference complete")
	return insight, nil
}

func imageMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ""
}
