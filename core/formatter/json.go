package formatter

import (
	"encoding/json"
	"io"

	"github.com/artpar/entityapi/core/schema"
	"github.com/artpar/entityapi/core/validation"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatRecord formats a single record as JSON.
func (f *JSONFormatter) FormatRecord(w io.Writer, ent *schema.Entity, record map[string]any, opts FormatOptions) error {
	var data any
	if record != nil {
		data = filter(record, opts.Columns)
	}
	output := map[string]any{
		"entity": entityName(ent),
		"data":   data,
	}
	return f.encode(w, output, opts.Compact)
}

// FormatSchema formats a schema description as JSON.
func (f *JSONFormatter) FormatSchema(w io.Writer, ent *schema.Entity, opts FormatOptions) error {
	return f.encode(w, ent.Describe(), opts.Compact)
}

// FormatError formats an error as JSON. Validation failures carry their category.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	if category := validation.Category(err); category != "" {
		output["category"] = category
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	Register(NewJSONFormatter())
}
