package pipeline

import (
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop the record.
	Process(rec *types.RawRecord) (*types.RawRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the record pipeline every harvest run uses: sanitize, trim, require a
// title, validate numeric fields, then drop duplicates by detail URL or title.
func Default(logger *slog.Logger) (*Pipeline, *DedupMiddleware) {
	p := New(logger)
	dedup := NewDedupMiddleware()
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(&TrimMiddleware{})
	p.Use(&RequiredFieldsMiddleware{Fields: []string{types.FieldTitle}})
	p.Use(NewFieldValidateMiddleware(map[string]*regexp.Regexp{
		types.FieldYear:      regexp.MustCompile(`^(1[89]|20)\d{2}$`),
		types.FieldCitations: regexp.MustCompile(`^\d[\d,.]*$`),
	}))
	p.Use(dedup)
	return p, dedup
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *types.RawRecord) (*types.RawRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				Title: current.Title.Value,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "title", rec.Title.Value)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// TrimMiddleware collapses whitespace in every present field.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.RawRecord) (*types.RawRecord, error) {
	for _, name := range rec.Names() {
		if f := rec.Get(name); f.Present {
			rec.Set(name, strings.Join(strings.Fields(f.Value), " "))
		}
	}
	return rec, nil
}

// HTMLSanitizeMiddleware strips leftover tags and decodes entities.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(rec *types.RawRecord) (*types.RawRecord, error) {
	for _, name := range rec.Names() {
		f := rec.Get(name)
		if !f.Present || f.Value == "" {
			continue
		}
		cleaned := m.stripRe.ReplaceAllString(f.Value, "")
		cleaned = html.UnescapeString(cleaned)
		rec.Set(name, cleaned)
	}
	return rec, nil
}

// RequiredFieldsMiddleware drops records missing required fields.
type RequiredFieldsMiddleware struct {
	Fields []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *types.RawRecord) (*types.RawRecord, error) {
	for _, field := range m.Fields {
		if !rec.Get(field).Has() {
			return nil, nil
		}
	}
	return rec, nil
}

// FieldValidateMiddleware clears fields whose value does not match a pattern. The record
// itself is kept; a cleared field reads as absent downstream.
type FieldValidateMiddleware struct {
	validations map[string]*regexp.Regexp
}

func NewFieldValidateMiddleware(patterns map[string]*regexp.Regexp) *FieldValidateMiddleware {
	return &FieldValidateMiddleware{validations: patterns}
}

func (m *FieldValidateMiddleware) Name() string { return "field_validate" }

func (m *FieldValidateMiddleware) Process(rec *types.RawRecord) (*types.RawRecord, error) {
	for field, re := range m.validations {
		f := rec.Get(field)
		if !f.Has() {
			continue
		}
		if !re.MatchString(f.Value) {
			rec.Clear(field)
		}
	}
	return rec, nil
}

// DedupMiddleware drops records already seen for the current author.
type DedupMiddleware struct {
	seen *Deduplicator
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{seen: NewDeduplicator(256)}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec *types.RawRecord) (*types.RawRecord, error) {
	key := rec.Key()
	if rec.DetailURL.Has() {
		key = CanonicalizeURL(key)
	}
	if !m.seen.MarkSeen(key) {
		return nil, nil
	}
	return rec, nil
}

// Reset forgets every key; called between authors so co-authored works link to each.
func (m *DedupMiddleware) Reset() {
	m.seen.Reset()
}

// Count returns the number of distinct records passed since the last Reset.
func (m *DedupMiddleware) Count() int {
	return m.seen.Count()
}
