package ensemble

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/goliatone/go-ensemble/pkg/activity"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/diag"
)

// frame is the evaluated data of one realization: datasets by key.
type frame map[string]*dataset.Dataset

// ensembleFrame is the evaluated data of an ensemble: frames by index.
type ensembleFrame map[int]frame

// EvaluateRealization computes a realization-level expression into a new
// detached realization. The result carries the index of the leftmost
// operand and the rendered expression as description.
func (e Expr) EvaluateRealization(opts ...Option) (*DetachedRealization, Diagnostics, error) {
	cfg := applyOptions(opts)
	kind, err := e.leafKind()
	if err != nil {
		return nil, nil, err
	}
	if kind != realizationLeaf {
		return nil, nil, fmt.Errorf("ensemble: evaluate %s as realization: %w", e, ErrOperandMismatch)
	}
	match, err := keyMatcher(cfg.keyFilter)
	if err != nil {
		return nil, nil, err
	}

	values := make([]frame, len(e.nodes))
	var diags Diagnostics
	for i, n := range e.nodes {
		var d Diagnostics
		switch n.kind {
		case realizationLeaf:
			values[i], d = leafFrame(n.realization, match)
		case scaledNode:
			values[i] = scaleFrame(values[n.left], n.coeff)
		case binaryNode:
			values[i], d = combineFrames(values[n.left], values[n.right], n.op)
		}
		diags = append(diags, d...)
	}

	out := NewDetachedRealization(e.leftmostIndex(), e.String(), opts...)
	result := values[e.root]
	if len(result) == 0 {
		diags = diags.Add(diag.New(ErrEmptyIntersection, "no dataset key shared by all operands"))
	}
	for key, ds := range result {
		out.Put(key, ds)
	}
	diags = append(diags, cfg.emit(context.Background(), activity.BuildCombinationEvaluatedEvent(activity.EnsembleEventInput{
		Expression: e.String(),
		Metadata:   map[string]any{"keys": len(result)},
	}))...)
	return out, cfg.report(diags), nil
}

// EvaluateEnsemble computes an ensemble-level expression. Only realization
// indices present in every operand ensemble are produced.
func (e Expr) EvaluateEnsemble(opts ...Option) (*Ensemble, Diagnostics, error) {
	cfg := applyOptions(opts)
	kind, err := e.leafKind()
	if err != nil {
		return nil, nil, err
	}
	if kind != ensembleLeaf {
		return nil, nil, fmt.Errorf("ensemble: evaluate %s as ensemble: %w", e, ErrOperandMismatch)
	}
	match, err := keyMatcher(cfg.keyFilter)
	if err != nil {
		return nil, nil, err
	}

	values := make([]ensembleFrame, len(e.nodes))
	var diags Diagnostics
	for i, n := range e.nodes {
		switch n.kind {
		case ensembleLeaf:
			values[i] = ensembleFrame{}
			for _, r := range n.ensemble.Realizations() {
				f, d := leafFrame(r, match)
				values[i][r.Index()] = f
				diags = append(diags, d...)
			}
		case scaledNode:
			values[i] = ensembleFrame{}
			for index, f := range values[n.left] {
				values[i][index] = scaleFrame(f, n.coeff)
			}
		case binaryNode:
			values[i] = ensembleFrame{}
			left, right := values[n.left], values[n.right]
			for _, index := range sharedIndices(left, right) {
				f, d := combineFrames(left[index], right[index], n.op)
				values[i][index] = f
				diags = append(diags, d.WithIndex(index)...)
			}
		}
	}

	name := cfg.name
	if name == "" {
		name = e.String()
	}
	out, err := New(name, nil, opts...)
	if err != nil {
		return nil, cfg.report(diags), err
	}
	result := values[e.root]
	if len(result) == 0 {
		diags = diags.Add(diag.New(ErrEmptyIntersection, "no realization index shared by all operands"))
	}
	for index, f := range result {
		r := NewDetachedRealization(index, e.String(), opts...)
		for key, ds := range f {
			r.Put(key, ds)
		}
		if err := out.Insert(r); err != nil {
			return nil, cfg.report(diags), err
		}
	}
	diags = append(diags, cfg.emit(context.Background(), activity.BuildCombinationEvaluatedEvent(activity.EnsembleEventInput{
		Ensemble:   name,
		Expression: e.String(),
		Metadata:   map[string]any{"realizations": len(result)},
	}))...)
	return out, cfg.report(diags), nil
}

// Keys returns the dataset keys an evaluation would consider: the keys
// shared by every operand.
func (e Expr) Keys() []string {
	if e.Empty() {
		return nil
	}
	sets := make([]map[string]struct{}, len(e.nodes))
	for i, n := range e.nodes {
		switch n.kind {
		case realizationLeaf:
			sets[i] = toKeySet(n.realization.Keys())
		case ensembleLeaf:
			sets[i] = toKeySet(n.ensemble.Keys())
		case scaledNode:
			sets[i] = sets[n.left]
		case binaryNode:
			sets[i] = map[string]struct{}{}
			for key := range sets[n.left] {
				if _, ok := sets[n.right][key]; ok {
					sets[i][key] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(sets[e.root]))
	for key := range sets[e.root] {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func toKeySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func (e Expr) leftmostIndex() int {
	i := e.root
	for {
		n := e.nodes[i]
		switch n.kind {
		case scaledNode, binaryNode:
			i = n.left
		case realizationLeaf:
			return n.realization.Index()
		default:
			return 0
		}
	}
}

// keyMatcher compiles the key filter. Each pattern matches anywhere in the
// key; * and ? are wildcards.
func keyMatcher(patterns []string) (func(string) bool, error) {
	if len(patterns) == 0 {
		return func(string) bool { return true }, nil
	}
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		quoted := regexp.QuoteMeta(p)
		quoted = strings.ReplaceAll(quoted, `\*`, ".*")
		quoted = strings.ReplaceAll(quoted, `\?`, ".")
		re, err := regexp.Compile(quoted)
		if err != nil {
			return nil, fmt.Errorf("ensemble: key filter %q: %w", p, err)
		}
		res = append(res, re)
	}
	return func(key string) bool {
		for _, re := range res {
			if re.MatchString(key) {
				return true
			}
		}
		return false
	}, nil
}

func leafFrame(r Realization, match func(string) bool) (frame, Diagnostics) {
	out := frame{}
	var diags Diagnostics
	for _, key := range r.Keys() {
		if !match(key) {
			continue
		}
		ds, err := r.Get(key)
		if err != nil {
			diags = diags.Add(diag.New(err, "dataset skipped").ForKey(key).ForIndex(r.Index()))
			continue
		}
		if len(valueColumns(ds)) == 0 {
			diags = diags.Add(diag.New(ErrNoNumericData, "dataset skipped").ForKey(key).ForIndex(r.Index()))
			continue
		}
		out[key] = ds
	}
	return out, diags
}

// valueColumns lists the numeric columns that take part in arithmetic.
func valueColumns(ds *dataset.Dataset) []string {
	return ds.NumericNames(append([]string{dataset.RealColumn}, dataset.IndexColumns...)...)
}

func isAlignColumn(name string) bool {
	for _, c := range dataset.IndexColumns {
		if c == name {
			return true
		}
	}
	return false
}

func scaleFrame(f frame, c float64) frame {
	out := make(frame, len(f))
	for key, ds := range f {
		scaled := ds.Clone()
		for _, name := range valueColumns(scaled) {
			col, _ := scaled.Column(name)
			for i := range col.Floats {
				col.Floats[i] *= c
			}
		}
		out[key] = scaled
	}
	return out
}

func sharedIndices(a, b ensembleFrame) []int {
	var out []int
	for index := range a {
		if _, ok := b[index]; ok {
			out = append(out, index)
		}
	}
	sort.Ints(out)
	return out
}

func combineFrames(a, b frame, op binaryOp) (frame, Diagnostics) {
	out := frame{}
	var diags Diagnostics
	keys := make([]string, 0, len(a))
	for key := range a {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		right, ok := b[key]
		if !ok {
			continue
		}
		ds, d := combineDatasets(a[key], right, op)
		diags = append(diags, d.WithKey(key)...)
		if len(valueColumns(ds)) == 0 {
			diags = diags.Add(diag.New(ErrNoNumericData, "dataset dropped").ForKey(key))
			continue
		}
		out[key] = ds
	}
	return out, diags
}

// alignRows pairs the rows of a and b. When both share any of DATE, ZONE
// and REGION rows are matched on those columns, repeated tuples pairing up
// in order of appearance. Otherwise rows pair by position.
func alignRows(a, b *dataset.Dataset) (keys []string, ra, rb []int) {
	for _, name := range dataset.IndexColumns {
		if a.Has(name) && b.Has(name) {
			keys = append(keys, name)
		}
	}
	if len(keys) == 0 {
		n := min(a.Len(), b.Len())
		ra, rb = make([]int, n), make([]int, n)
		for i := 0; i < n; i++ {
			ra[i], rb[i] = i, i
		}
		return nil, ra, rb
	}
	queues := map[string][]int{}
	for j := 0; j < b.Len(); j++ {
		t := tupleKey(b, keys, j)
		queues[t] = append(queues[t], j)
	}
	for i := 0; i < a.Len(); i++ {
		t := tupleKey(a, keys, i)
		q := queues[t]
		if len(q) == 0 {
			continue
		}
		ra = append(ra, i)
		rb = append(rb, q[0])
		queues[t] = q[1:]
	}
	return keys, ra, rb
}

func tupleKey(ds *dataset.Dataset, names []string, row int) string {
	parts := make([]string, len(names))
	for i, name := range names {
		col, _ := ds.Column(name)
		parts[i] = col.Kind.String() + ":" + col.Text(row)
	}
	return strings.Join(parts, "\x1f")
}

// combineDatasets applies op to the aligned rows of a and b. Alignment
// columns come from a. Numeric columns present in both are combined, other
// columns survive only when identical on the aligned rows. Columns found in
// one operand only are dropped.
func combineDatasets(a, b *dataset.Dataset, op binaryOp) (*dataset.Dataset, Diagnostics) {
	keys, ra, rb := alignRows(a, b)
	form := a.Form()
	if b.Form() != form {
		form = dataset.Table
	}
	out, _ := dataset.New(form)
	var diags Diagnostics
	set := func(col *dataset.Column) {
		diags = setColumn(out, col, diags)
	}
	if len(ra) == 0 {
		diags = diags.Add(diag.New(ErrEmptyIntersection, "no aligned rows"))
	}
	for _, name := range keys {
		col, _ := a.Column(name)
		set(takeColumn(col, ra))
	}
	for _, left := range a.Columns() {
		if isAlignColumn(left.Name) && containsString(keys, left.Name) {
			continue
		}
		right, ok := b.Column(left.Name)
		if !ok {
			diags = diags.Add(diag.New(ErrColumnDropped, "column missing from right operand").ForColumn(left.Name))
			continue
		}
		if left.Kind != right.Kind {
			diags = diags.Add(diag.New(ErrColumnDropped, "column kinds differ").ForColumn(left.Name))
			continue
		}
		if left.Kind == dataset.Float && !isAlignColumn(left.Name) && left.Name != dataset.RealColumn {
			values := make([]float64, len(ra))
			for i := range ra {
				x, y := left.Floats[ra[i]], right.Floats[rb[i]]
				if op == opSub {
					values[i] = x - y
				} else {
					values[i] = x + y
				}
			}
			set(dataset.FloatColumn(left.Name, values...))
			continue
		}
		if !dataset.ColumnsEqualAt(left, ra, right, rb) {
			diags = diags.Add(diag.New(ErrColumnDropped, "non-numeric column differs between operands").ForColumn(left.Name))
			continue
		}
		set(takeColumn(left, ra))
	}
	for _, right := range b.Columns() {
		if !a.Has(right.Name) {
			diags = diags.Add(diag.New(ErrColumnDropped, "column missing from left operand").ForColumn(right.Name))
		}
	}
	return out, diags
}

// setColumn adds col to out, reporting a column that does not fit instead of
// failing the combination.
func setColumn(out *dataset.Dataset, col *dataset.Column, diags Diagnostics) Diagnostics {
	if err := out.Set(col); err != nil {
		return diags.Add(diag.New(err, "column not combined").ForColumn(col.Name))
	}
	return diags
}

func takeColumn(col *dataset.Column, rows []int) *dataset.Column {
	out := dataset.EmptyColumn(col.Name, col.Kind, len(rows))
	for i, r := range rows {
		switch col.Kind {
		case dataset.Float:
			out.Floats[i] = col.Floats[r]
		case dataset.String:
			out.Strings[i] = col.Strings[r]
		case dataset.Time:
			out.Times[i] = col.Times[r]
		}
	}
	return out
}
