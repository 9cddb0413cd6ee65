package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/artpar/entityapi/core/schema"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatRecord formats a single record as key-value pairs.
func (f *TableFormatter) FormatRecord(w io.Writer, ent *schema.Entity, record map[string]any, opts FormatOptions) error {
	if record == nil {
		fmt.Fprintln(w, "Nothing changed.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, col := range Columns(ent, record, opts.Columns) {
		label := f.formatLabel(col)
		val := f.formatValue(record[col], opts.MaxWidth)
		fmt.Fprintf(tw, "%s:\t%s\n", label, val)
	}
	return tw.Flush()
}

// FormatSchema formats the fields of a schema, one row per field.
func (f *TableFormatter) FormatSchema(w io.Writer, ent *schema.Entity, opts FormatOptions) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if !opts.NoHeader {
		fmt.Fprintln(tw, "FIELD\tTABLE\tCOLUMN\tTYPE\tREQUIRED\tCONTEXT\tRULE\tGROUPS")
	}
	for _, fd := range ent.Fields() {
		rule := "-"
		if r, ok := ent.Rule(fd.Key()); ok {
			rule = f.formatRule(r)
		}
		groups := "-"
		if g := ent.GroupsOf(fd.Key()); len(g) > 0 {
			groups = strings.Join(g, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			fd.Name, fd.Table, fd.StorageAlias, fd.SQLType(),
			f.formatValue(fd.Required, 0), f.formatValue(fd.Contextual, 0),
			f.formatValue(rule, opts.MaxWidth), groups)
	}
	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

func (f *TableFormatter) formatRule(r schema.ValidatorRule) string {
	var parts []string
	if r.Function != "" {
		parts = append(parts, r.Function+"()")
	}
	if r.Regex != "" {
		parts = append(parts, "/"+r.Regex+"/")
	}
	return strings.Join(parts, " ")
}

// formatLabel formats a field name as a label.
func (f *TableFormatter) formatLabel(name string) string {
	// Convert snake_case to Title Case
	words := strings.Split(name, "_")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		if v {
			str = "yes"
		} else {
			str = "no"
		}
	case []byte:
		str = "[binary]"
	case int64:
		str = fmt.Sprintf("%d", v)
	case int:
		str = fmt.Sprintf("%d", v)
	case float64:
		// Check if it's a whole number
		if v == float64(int64(v)) {
			str = fmt.Sprintf("%d", int64(v))
		} else {
			str = fmt.Sprintf("%.2f", v)
		}
	default:
		b, _ := json.Marshal(v)
		str = string(b)
	}

	// Truncate if needed
	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}

	return str
}

func init() {
	Register(NewTableFormatter())
}
