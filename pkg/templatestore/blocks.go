package templatestore

import (
	"encoding/json"
	"fmt"
)

// BlockKind discriminates the template block union.
type BlockKind string

// Known block kinds. Unknown kinds are preserved but carry no payload.
const (
	BlockKindText           BlockKind = "text"
	BlockKindLanguageToggle BlockKind = "language_toggle"
	BlockKindGradeGrid      BlockKind = "grade_grid"
)

// Template is the read-only document fetched from the template service.
type Template struct {
	ID      uint    `json:"id"`
	Version int     `json:"version"`
	Name    string  `json:"name"`
	Blocks  []Block `json:"blocks"`
}

// Block is a tagged union over the template block kinds. Exactly one payload
// field is populated, matching Kind.
type Block struct {
	Key  string    `json:"key"`
	Kind BlockKind `json:"kind"`

	text           *TextBlock
	languageToggle *LanguageToggleBlock
	gradeGrid      *GradeGridBlock
}

// TextBlock carries free-form carnet prose.
type TextBlock struct {
	Body string `json:"body"`
}

// LanguageToggleBlock lists per-language toggle items; it drives category
// eligibility.
type LanguageToggleBlock struct {
	Items []ToggleItem `json:"items"`
}

// ToggleItem is one language entry in a toggle block. An empty Levels set
// means the item applies at every level.
type ToggleItem struct {
	Code   string   `json:"code"`
	Label  string   `json:"label"`
	Levels []string `json:"levels,omitempty"`
}

// GradeGridBlock holds the competency grid rows rendered on the carnet.
type GradeGridBlock struct {
	Rows []string `json:"rows"`
}

// Text returns the text payload when Kind is text.
func (b Block) Text() (*TextBlock, bool) {
	return b.text, b.text != nil
}

// LanguageToggle returns the toggle payload when Kind is language_toggle.
func (b Block) LanguageToggle() (*LanguageToggleBlock, bool) {
	return b.languageToggle, b.languageToggle != nil
}

// GradeGrid returns the grid payload when Kind is grade_grid.
func (b Block) GradeGrid() (*GradeGridBlock, bool) {
	return b.gradeGrid, b.gradeGrid != nil
}

// NewTextBlock builds a text block.
func NewTextBlock(key, body string) Block {
	return Block{Key: key, Kind: BlockKindText, text: &TextBlock{Body: body}}
}

// NewLanguageToggleBlock builds a language toggle block.
func NewLanguageToggleBlock(key string, items ...ToggleItem) Block {
	return Block{Key: key, Kind: BlockKindLanguageToggle, languageToggle: &LanguageToggleBlock{Items: items}}
}

// NewGradeGridBlock builds a grade grid block.
func NewGradeGridBlock(key string, rows ...string) Block {
	return Block{Key: key, Kind: BlockKindGradeGrid, gradeGrid: &GradeGridBlock{Rows: rows}}
}

type blockEnvelope struct {
	Key   string          `json:"key"`
	Kind  BlockKind       `json:"kind"`
	Props json.RawMessage `json:"props"`
}

// UnmarshalJSON decodes the envelope and the kind-specific payload.
func (b *Block) UnmarshalJSON(data []byte) error {
	var envelope blockEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	b.Key = envelope.Key
	b.Kind = envelope.Kind
	b.text = nil
	b.languageToggle = nil
	b.gradeGrid = nil

	if len(envelope.Props) == 0 {
		return nil
	}

	switch envelope.Kind {
	case BlockKindText:
		payload := &TextBlock{}
		if err := json.Unmarshal(envelope.Props, payload); err != nil {
			return fmt.Errorf("decode text block %q: %w", envelope.Key, err)
		}
		b.text = payload
	case BlockKindLanguageToggle:
		payload := &LanguageToggleBlock{}
		if err := json.Unmarshal(envelope.Props, payload); err != nil {
			return fmt.Errorf("decode language toggle block %q: %w", envelope.Key, err)
		}
		b.languageToggle = payload
	case BlockKindGradeGrid:
		payload := &GradeGridBlock{}
		if err := json.Unmarshal(envelope.Props, payload); err != nil {
			return fmt.Errorf("decode grade grid block %q: %w", envelope.Key, err)
		}
		b.gradeGrid = payload
	}

	return nil
}

// MarshalJSON encodes the block back into its envelope form.
func (b Block) MarshalJSON() ([]byte, error) {
	envelope := blockEnvelope{Key: b.Key, Kind: b.Kind}

	var payload interface{}
	switch {
	case b.text != nil:
		payload = b.text
	case b.languageToggle != nil:
		payload = b.languageToggle
	case b.gradeGrid != nil:
		payload = b.gradeGrid
	}

	if payload != nil {
		props, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		envelope.Props = props
	}

	return json.Marshal(envelope)
}
