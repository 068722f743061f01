package state

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/dataset"
)

// Document is the single-document form of one realization.
type Document struct {
	Index       int               `yaml:"index"`
	Description string            `yaml:"description,omitempty"`
	Datasets    []DatasetDocument `yaml:"datasets"`
}

// DatasetDocument is one dataset with its schema and its text rendering.
type DatasetDocument struct {
	Key    string         `yaml:"key"`
	Schema SchemaDocument `yaml:"schema"`
	Data   string         `yaml:"data,omitempty"`
}

// SchemaDocument is the portable form of dataset.Schema.
type SchemaDocument struct {
	Form    string           `yaml:"form"`
	Columns []ColumnDocument `yaml:"columns"`
}

type ColumnDocument struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

func encodeSchema(s dataset.Schema) SchemaDocument {
	out := SchemaDocument{Form: s.Form.String(), Columns: make([]ColumnDocument, len(s.Columns))}
	for i, c := range s.Columns {
		out.Columns[i] = ColumnDocument{Name: c.Name, Kind: c.Kind.String()}
	}
	return out
}

func (d SchemaDocument) decode() (dataset.Schema, error) {
	form, err := dataset.ParseForm(d.Form)
	if err != nil {
		return dataset.Schema{}, err
	}
	out := dataset.Schema{Form: form, Columns: make([]dataset.ColumnSchema, len(d.Columns))}
	for i, c := range d.Columns {
		kind, err := dataset.ParseKind(c.Kind)
		if err != nil {
			return dataset.Schema{}, fmt.Errorf("column %q: %w", c.Name, err)
		}
		out.Columns[i] = dataset.ColumnSchema{Name: c.Name, Kind: kind}
	}
	return out, nil
}

// NewDocument captures every internalized dataset of r.
func NewDocument(r ensemble.Realization) (Document, error) {
	keys := r.Keys()
	sort.Strings(keys)
	doc := Document{Index: r.Index(), Description: r.Description()}
	for _, key := range keys {
		ds, err := r.Get(key)
		if err != nil {
			return Document{}, fmt.Errorf("state: capture %q: %w", key, err)
		}
		var buf bytes.Buffer
		if err := dataset.Write(&buf, ds); err != nil {
			return Document{}, fmt.Errorf("state: render %q: %w", key, err)
		}
		doc.Datasets = append(doc.Datasets, DatasetDocument{
			Key:    key,
			Schema: encodeSchema(ds.Schema()),
			Data:   buf.String(),
		})
	}
	return doc, nil
}

// Realization rebuilds the detached realization described by d.
func (d Document) Realization(opts ...ensemble.Option) (*ensemble.DetachedRealization, error) {
	r := ensemble.NewDetachedRealization(d.Index, d.Description, opts...)
	for _, entry := range d.Datasets {
		schema, err := entry.Schema.decode()
		if err != nil {
			return nil, fmt.Errorf("state: schema of %q: %w", entry.Key, err)
		}
		ds, err := dataset.Read(strings.NewReader(entry.Data), schema)
		if err != nil {
			return nil, fmt.Errorf("state: read %q: %w", entry.Key, err)
		}
		r.Put(entry.Key, ds)
	}
	return r, nil
}

// Marshal renders r as one YAML document.
func Marshal(r ensemble.Realization) ([]byte, error) {
	doc, err := NewDocument(r)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("state: encode realization %d: %w", r.Index(), err)
	}
	return out, nil
}

// Unmarshal restores a realization written by Marshal. Get on the result
// returns what Get on the marshalled realization returned.
func Unmarshal(raw []byte, opts ...ensemble.Option) (*ensemble.DetachedRealization, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("state: decode realization: %w", err)
	}
	return doc.Realization(opts...)
}
