package ensemble

import (
	"sort"
	"strings"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

// FieldDescriptor describes one column of one dataset.
type FieldDescriptor struct {
	// Path is key.column.
	Path string
	Key  string
	Form string
	Type string
}

// Describe lists the columns of every internalized dataset of r, ordered by
// key and then column position.
func Describe(r Realization) []FieldDescriptor {
	if r == nil {
		return nil
	}
	var fields []FieldDescriptor
	for _, key := range r.Keys() {
		ds, err := r.Get(key)
		if err != nil {
			continue
		}
		fields = append(fields, describeDataset(key, ds)...)
	}
	return fields
}

// Describe merges the descriptors of every member. A column seen with two
// kinds is reported once per kind.
func (e *Ensemble) Describe() []FieldDescriptor {
	seen := map[FieldDescriptor]struct{}{}
	var fields []FieldDescriptor
	for _, r := range e.Realizations() {
		for _, f := range Describe(r) {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			fields = append(fields, f)
		}
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}

func describeDataset(key string, ds *dataset.Dataset) []FieldDescriptor {
	fields := make([]FieldDescriptor, 0, ds.Width())
	for _, col := range ds.Columns() {
		fields = append(fields, FieldDescriptor{
			Path: joinPath(key, col.Name),
			Key:  key,
			Form: ds.Form().String(),
			Type: col.Kind.String(),
		})
	}
	return fields
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
