// Package gemini implements advice.Generator on top of the Generative Language API.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	gl "google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"

	"github.com/MrJamesThe3rd/pocketfin/internal/advice"
)

const (
	DefaultTextModel   = "gemini-pro"
	DefaultVisionModel = "gemini-pro-vision"
)

// ErrNoCandidates is returned when the model produced no usable answer.
var ErrNoCandidates = errors.New("model returned no candidates")

var _ advice.Generator = (*Client)(nil)

type Config struct {
	APIKey      string
	TextModel   string
	VisionModel string
	// Endpoint overrides the API base URL, mostly for tests and proxies.
	Endpoint string
}

type Client struct {
	svc         *gl.Service
	textModel   string
	visionModel string
}

func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	// Without a key requests go out unauthenticated and fail at call time, which
	// the summarizer reports as a failed outcome.
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithoutAuthentication())
	}

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := gl.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating generative language service: %w", err)
	}

	c := &Client{
		svc:         svc,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
	}

	if c.textModel == "" {
		c.textModel = DefaultTextModel
	}

	if c.visionModel == "" {
		c.visionModel = DefaultVisionModel
	}

	return c, nil
}

func (c *Client) Generate(ctx context.Context, req advice.Request) (string, error) {
	model := c.textModel
	parts := []*gl.Part{{Text: req.Prompt}}

	if req.Image != nil {
		model = c.visionModel
		parts = append(parts, &gl.Part{
			InlineData: &gl.Blob{
				MimeType: req.Image.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(req.Image.Data),
			},
		})
	}

	call := c.svc.Models.GenerateContent("models/"+model, &gl.GenerateContentRequest{
		Contents: []*gl.Content{{Role: "user", Parts: parts}},
	})

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("generating content with %s: %w", model, err)
	}

	return responseText(resp)
}

func responseText(resp *gl.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: blocked (%s)", ErrNoCandidates, resp.PromptFeedback.BlockReason)
		}

		return "", ErrNoCandidates
	}

	var sb strings.Builder

	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	return sb.String(), nil
}
