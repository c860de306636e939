// Package transform maps source API payloads onto canonical job records.
package transform

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// Transformer converts one raw source payload into a Record.
type Transformer interface {
	Source() jobs.Source
	Transform(raw []byte) (jobs.Record, error)
}

// Registry resolves the transformer for a source.
type Registry struct {
	remotive   *Remotive
	jobicy     *Jobicy
	theirStack *TheirStack
}

// NewRegistry wires the per-source transformers to shared dependencies.
func NewRegistry(idGen jobs.IDGenerator, clock jobs.Clock) *Registry {
	s := NewSanitizer()
	return &Registry{
		remotive:   &Remotive{idGen: idGen, clock: clock, sanitizer: s},
		jobicy:     &Jobicy{idGen: idGen, clock: clock, sanitizer: s},
		theirStack: &TheirStack{clock: clock, sanitizer: s},
	}
}

// For returns the transformer for src. Sources without a dedicated
// transformer are read in the Remotive shape.
func (r *Registry) For(src jobs.Source) Transformer {
	switch src {
	case jobs.SourceJobicy:
		return r.jobicy
	case jobs.SourceTheirStack:
		return r.theirStack
	case jobs.SourceRemotive:
		return r.remotive
	default:
		return &Remotive{idGen: r.remotive.idGen, clock: r.remotive.clock, sanitizer: r.remotive.sanitizer, source: src}
	}
}

// Sanitizer strips scripts, event handlers, inline styles and comments from
// description HTML.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds a Sanitizer around the user-generated-content policy.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.UGCPolicy()}
}

// Sanitize cleans html. Empty input stays empty.
func (s *Sanitizer) Sanitize(html string) string {
	if html == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(html))
}

// CompanyLogo derives a logo URL from a company domain or website.
func CompanyLogo(domain string) string {
	d := strings.TrimSpace(domain)
	if d == "" {
		return ""
	}
	d = strings.TrimPrefix(strings.TrimPrefix(d, "https://"), "http://")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	if d == "" {
		return ""
	}
	return "https://logo.clearbit.com/" + d
}

func parsePayload(raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%w: malformed JSON", jobs.ErrInvalidPayload)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: expected object", jobs.ErrInvalidPayload)
	}
	return doc, nil
}

func requireFields(src jobs.Source, title, company string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: %s job missing title", jobs.ErrInvalidPayload, src)
	}
	if strings.TrimSpace(company) == "" {
		return fmt.Errorf("%w: %s job missing company", jobs.ErrInvalidPayload, src)
	}
	return nil
}

// text reads a field that may be a string, a number or an array of strings.
func text(res gjson.Result) string {
	if res.IsArray() {
		parts := make([]string, 0, len(res.Array()))
		for _, item := range res.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return strings.TrimSpace(res.String())
}

func singleSource(src jobs.Source, url, id string) ([]jobs.Source, map[jobs.Source]string, map[jobs.Source]string) {
	return []jobs.Source{src},
		map[jobs.Source]string{src: url},
		map[jobs.Source]string{src: id}
}
