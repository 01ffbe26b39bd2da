package templatestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// templateSchema validates documents coming out of the template service
// before they are decoded into the block union.
const templateSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["id", "version", "blocks"],
	"properties": {
		"id": {"type": "integer", "minimum": 1},
		"version": {"type": "integer", "minimum": 1},
		"name": {"type": "string"},
		"blocks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["key", "kind"],
				"properties": {
					"key": {"type": "string", "minLength": 1},
					"kind": {"type": "string", "minLength": 1},
					"props": {"type": "object"}
				}
			}
		}
	}
}`

// Config contains connection settings for the template service.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Service fetches and validates carnet templates from the template service.
type Service struct {
	baseURL string
	client  *http.Client
	schema  *jsonschema.Schema
	logger  zerolog.Logger
}

// New constructs a template store client.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("template store base url must be provided")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("template.schema.json", strings.NewReader(templateSchema)); err != nil {
		return nil, fmt.Errorf("failed to register template schema: %w", err)
	}

	schema, err := compiler.Compile("template.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile template schema: %w", err)
	}

	return &Service{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		schema:  schema,
		logger:  logger.With().Str("component", "templatestore").Logger(),
	}, nil
}

// GetTemplate fetches one template version and decodes its blocks.
func (s *Service) GetTemplate(ctx context.Context, id uint, version int) (Template, error) {
	url := fmt.Sprintf("%s/templates/%d?version=%d", s.baseURL, id, version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Template{}, fmt.Errorf("failed to build template request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Template{}, fmt.Errorf("failed to fetch template %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Template{}, fmt.Errorf("template service returned status %d for template %d", resp.StatusCode, id)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read template payload: %w", err)
	}

	return s.decode(payload)
}

func (s *Service) decode(payload []byte) (Template, error) {
	var document interface{}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return Template{}, fmt.Errorf("template payload is not valid json: %w", err)
	}

	if err := s.schema.Validate(document); err != nil {
		return Template{}, fmt.Errorf("template payload failed schema validation: %w", err)
	}

	var template Template
	if err := json.Unmarshal(payload, &template); err != nil {
		return Template{}, fmt.Errorf("failed to decode template: %w", err)
	}

	s.logger.Debug().Uint("template_id", template.ID).Int("version", template.Version).Int("blocks", len(template.Blocks)).Msg("template fetched")

	return template, nil
}
