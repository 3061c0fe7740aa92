// Package openai implements vision.Detector on top of an OpenAI-compatible
// chat completion endpoint with image input.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/personaforge/internal/vision"
)

const defaultModel = "gpt-4o-mini"

// ErrEmptyAnswer is returned when the model produced no usable text.
var ErrEmptyAnswer = errors.New("openai: empty answer")

// Option is a functional option for [Detector].
type Option func(*Detector)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(d *Detector) { d.baseURL = url }
}

// WithModel overrides the vision model. Default: gpt-4o-mini.
func WithModel(model string) Option {
	return func(d *Detector) { d.model = model }
}

// WithTimeout sets the HTTP timeout per request.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Detector) { d.timeout = timeout }
}

// WithKnownTags restricts answers to a fixed tag list and lists it in the
// prompt.
func WithKnownTags(tags []string) Option {
	return WithVocabulary(vision.Tags(append([]string(nil), tags...)))
}

// WithVocabulary restricts answers to the tags of v, read on every call.
func WithVocabulary(v vision.Vocabulary) Option {
	return func(d *Detector) { d.vocab = v }
}

// WithRequestOptions appends raw client options, e.g. retry policy.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(d *Detector) { d.extra = append(d.extra, opts...) }
}

// Detector asks a multimodal chat model to describe an image as tags.
type Detector struct {
	client  oai.Client
	model   string
	baseURL string
	timeout time.Duration
	vocab   vision.Vocabulary
	extra   []option.RequestOption
}

var _ vision.Detector = (*Detector)(nil)

// New creates a Detector authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Detector, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	d := &Detector{model: defaultModel, timeout: 60 * time.Second}
	for _, o := range opts {
		o(d)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: d.timeout}),
	}
	if d.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(d.baseURL))
	}
	reqOpts = append(reqOpts, d.extra...)
	d.client = oai.NewClient(reqOpts...)
	return d, nil
}

// Detect implements [vision.Detector].
func (d *Detector) Detect(ctx context.Context, imagePath string) ([]string, error) {
	url, err := dataURL(imagePath)
	if err != nil {
		return nil, err
	}

	var known []string
	if d.vocab != nil {
		known = d.vocab.AllTags()
	}
	resp, err := d.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(d.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(prompt(known)),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: url}),
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyAnswer
	}
	return vision.ParseTags(resp.Choices[0].Message.Content, known), nil
}

const systemPrompt = "You label character artwork. Answer with a comma separated list of short lowercase snake_case tags and nothing else."

func prompt(known []string) string {
	if len(known) == 0 {
		return "List the visual features of this character."
	}
	return "List the visual features of this character. Use only these tags: " + strings.Join(known, ", ") + "."
}

// dataURL reads the image and encodes it as a base64 data URL.
func dataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("openai: read image: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	mt := mime.TypeByExtension(ext)
	switch {
	case ext == ".webp":
		mt = "image/webp"
	case mt == "" || !strings.HasPrefix(mt, "image/"):
		mt = "image/png"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
