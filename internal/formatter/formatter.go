// Package formatter exports inspection results and duplicate-user reports as JSON, CSV, Markdown or plain text.
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
	"github.com/repteam/rep/internal/tasks"
)

// Format is an export format.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "text"
)

// Formats lists the accepted format names.
var Formats = []Format{Text, JSON, CSV, Markdown}

// ParseFormat accepts a format name, "md" and "txt" included. An empty name means [Text].
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return "", fmt.Errorf("%w: format %q must be one of text, json, csv, markdown", shared.ErrInvalidFlag, name)
}

// ExportInspection renders an [tasks.Inspection] in format f.
func ExportInspection(in *tasks.Inspection, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return inspectionJSON(in)
	case CSV:
		return inspectionCSV(in)
	case Markdown:
		return inspectionMarkdown(in), nil
	case Text:
		return inspectionText(in), nil
	}
	return nil, fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidFlag, f)
}

// ExportDuplicates renders duplicate user groups in format f.
func ExportDuplicates(groups []tasks.DuplicateGroup, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return marshalIndent(groups)
	case CSV:
		return duplicatesCSV(groups)
	case Markdown:
		return duplicatesMarkdown(groups), nil
	case Text:
		return duplicatesText(groups), nil
	}
	return nil, fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidFlag, f)
}

// Write writes data to path, or to w when path is empty or "-".
func Write(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func marshalIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// DocJSON returns the document as a plain map with its id under "id".
// References become "ref:collection/id" and timestamps RFC 3339 strings.
func DocJSON(doc store.Doc) map[string]any {
	out := make(map[string]any, len(doc.Data)+1)
	for k, v := range doc.Data {
		out[k] = plain(v)
	}
	out["id"] = doc.ID
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case store.Ref:
		return "ref:" + t.Path()
	case *store.Ref:
		if t == nil {
			return nil
		}
		return "ref:" + t.Path()
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case store.Sentinel:
		if t == store.ServerTimestamp {
			return "<serverTimestamp>"
		}
		return "<delete>"
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = plain(inner)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = plain(inner)
		}
		return s
	}
	return v
}

func inspectionJSON(in *tasks.Inspection) ([]byte, error) {
	docs := make([]map[string]any, len(in.Docs))
	for i, d := range in.Docs {
		docs[i] = DocJSON(d)
	}
	return marshalIndent(map[string]any{
		"collection": in.Collection,
		"filters":    in.Filters,
		"count":      len(in.Docs),
		"docs":       docs,
	})
}

// Flatten turns nested maps into dot-separated keys. Slices are kept as JSON.
func Flatten(data map[string]any) map[string]string {
	out := map[string]string{}
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch t := plain(v).(type) {
		case map[string]any:
			if len(t) == 0 {
				out[prefix] = "{}"
				return
			}
			for k, inner := range t {
				walk(prefix+"."+k, inner)
			}
		case []any:
			b, _ := json.Marshal(t)
			out[prefix] = string(b)
		case nil:
			out[prefix] = ""
		default:
			out[prefix] = fmt.Sprint(t)
		}
	}
	for k, v := range data {
		walk(k, v)
	}
	return out
}

func flatDocs(docs []store.Doc) ([]string, []map[string]string) {
	keys := map[string]bool{}
	rows := make([]map[string]string, len(docs))
	for i, d := range docs {
		rows[i] = Flatten(d.Data)
		for k := range rows[i] {
			keys[k] = true
		}
	}
	cols := make([]string, 0, len(keys))
	for k := range keys {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, rows
}

// inspectionCSV writes one row per document with the union of flattened fields as columns.
func inspectionCSV(in *tasks.Inspection) ([]byte, error) {
	cols, rows := flatDocs(in.Docs)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(append([]string{"id"}, cols...)); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for i, d := range in.Docs {
		record := make([]string, 0, len(cols)+1)
		record = append(record, d.ID)
		for _, c := range cols {
			record = append(record, rows[i][c])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func inspectionMarkdown(in *tasks.Inspection) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", in.Collection)
	if len(in.Filters) > 0 {
		fmt.Fprintf(&buf, "**Filters**: `%s`\n\n", strings.Join(in.Filters, "`, `"))
	}
	fmt.Fprintf(&buf, "**Documents**: %d\n", len(in.Docs))

	for _, d := range in.Docs {
		fmt.Fprintf(&buf, "\n## %s\n\n", d.ID)
		flat := Flatten(d.Data)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteString("| Field | Value |\n|---|---|\n")
		for _, k := range keys {
			fmt.Fprintf(&buf, "| %s | %s |\n", k, escapeCell(flat[k]))
		}
	}
	return buf.Bytes()
}

func inspectionText(in *tasks.Inspection) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Collection: %s\n", in.Collection)
	for _, f := range in.Filters {
		fmt.Fprintf(&buf, "Where: %s\n", f)
	}
	fmt.Fprintf(&buf, "Documents: %d\n", len(in.Docs))

	for _, d := range in.Docs {
		fmt.Fprintf(&buf, "\n[%s]\n", d.ID)
		flat := Flatten(d.Data)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "  %s: %s\n", k, flat[k])
		}
	}
	return buf.Bytes()
}

func duplicatesCSV(groups []tasks.DuplicateGroup) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Email", "UserID", "Role", "Name"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, g := range groups {
		for _, u := range g.Users {
			if err := w.Write([]string{g.Email, u.ID, u.Role, u.Name}); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func duplicatesMarkdown(groups []tasks.DuplicateGroup) []byte {
	var buf bytes.Buffer
	buf.WriteString("# Duplicate Users\n\n")
	fmt.Fprintf(&buf, "**Groups**: %d\n", len(groups))

	for _, g := range groups {
		fmt.Fprintf(&buf, "\n## %s\n\n", g.Email)
		buf.WriteString("| User ID | Role | Name |\n|---|---|---|\n")
		for _, u := range g.Users {
			fmt.Fprintf(&buf, "| %s | %s | %s |\n", u.ID, escapeCell(u.Role), escapeCell(u.Name))
		}
	}
	return buf.Bytes()
}

func duplicatesText(groups []tasks.DuplicateGroup) []byte {
	var buf bytes.Buffer
	if len(groups) == 0 {
		buf.WriteString("No duplicate users found.\n")
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Found %d emails with duplicate users:\n", len(groups))
	for _, g := range groups {
		fmt.Fprintf(&buf, "\n%s (%d users)\n", g.Email, len(g.Users))
		for _, u := range g.Users {
			fmt.Fprintf(&buf, "  - %s [%s] %s\n", u.ID, shared.FirstNonEmpty(u.Role, "no role"), u.Name)
		}
	}
	return buf.Bytes()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// FormatNames returns the accepted names for flag usage text.
func FormatNames() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, "|")
}
