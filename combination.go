package ensemble

import (
	"fmt"
	"strconv"
)

// Operand is anything that can take part in a combination: realizations,
// ensembles and expressions built from them.
type Operand interface {
	expr() Expr
}

type nodeKind uint8

const (
	realizationLeaf nodeKind = iota
	ensembleLeaf
	scaledNode
	binaryNode
)

type binaryOp uint8

const (
	opAdd binaryOp = iota
	opSub
)

func (op binaryOp) String() string {
	if op == opSub {
		return "-"
	}
	return "+"
}

// node is one arena slot. Children always sit at lower positions than their
// parent.
type node struct {
	kind        nodeKind
	realization Realization
	ensemble    *Ensemble
	coeff       float64
	op          binaryOp
	left        int
	right       int
}

// Expr is a lazy linear combination of realizations or ensembles. Values are
// immutable; building a larger expression copies the operand arenas.
// Nothing is computed until EvaluateRealization or EvaluateEnsemble is
// called, and every call recomputes from the operands.
type Expr struct {
	nodes []node
	root  int
}

func (e Expr) expr() Expr { return e }

func (r *DiskRealization) expr() Expr {
	return Expr{nodes: []node{{kind: realizationLeaf, realization: r}}}
}

func (r *DetachedRealization) expr() Expr {
	return Expr{nodes: []node{{kind: realizationLeaf, realization: r}}}
}

func (e *Ensemble) expr() Expr {
	return Expr{nodes: []node{{kind: ensembleLeaf, ensemble: e}}}
}

func operandExpr(o Operand) Expr {
	if o == nil {
		return Expr{}
	}
	return o.expr()
}

// Add returns the expression a + b.
func Add(a, b Operand) Expr {
	return combine(opAdd, operandExpr(a), operandExpr(b))
}

// Sub returns the expression a - b.
func Sub(a, b Operand) Expr {
	return combine(opSub, operandExpr(a), operandExpr(b))
}

// Scale returns the expression c * a.
func Scale(a Operand, c float64) Expr {
	src := operandExpr(a)
	if len(src.nodes) == 0 {
		return Expr{}
	}
	nodes := make([]node, len(src.nodes), len(src.nodes)+1)
	copy(nodes, src.nodes)
	nodes = append(nodes, node{kind: scaledNode, coeff: c, left: src.root})
	return Expr{nodes: nodes, root: len(nodes) - 1}
}

func combine(op binaryOp, a, b Expr) Expr {
	if len(a.nodes) == 0 || len(b.nodes) == 0 {
		return Expr{}
	}
	offset := len(a.nodes)
	nodes := make([]node, 0, offset+len(b.nodes)+1)
	nodes = append(nodes, a.nodes...)
	for _, n := range b.nodes {
		if n.kind == scaledNode || n.kind == binaryNode {
			n.left += offset
			n.right += offset
		}
		nodes = append(nodes, n)
	}
	nodes = append(nodes, node{kind: binaryNode, op: op, left: a.root, right: b.root + offset})
	return Expr{nodes: nodes, root: len(nodes) - 1}
}

// Add returns e + o.
func (e Expr) Add(o Operand) Expr {
	return Add(e, o)
}

// Sub returns e - o.
func (e Expr) Sub(o Operand) Expr {
	return Sub(e, o)
}

// Scale returns c * e.
func (e Expr) Scale(c float64) Expr {
	return Scale(e, c)
}

// Empty reports whether e was built from a nil operand.
func (e Expr) Empty() bool {
	return len(e.nodes) == 0
}

// String renders the expression, for example "(iter-1 - 0.5*iter-0)".
func (e Expr) String() string {
	if e.Empty() {
		return "<empty>"
	}
	labels := make([]string, len(e.nodes))
	for i, n := range e.nodes {
		switch n.kind {
		case realizationLeaf:
			labels[i] = realizationLabel(n.realization)
		case ensembleLeaf:
			labels[i] = "<nil>"
			if n.ensemble != nil {
				labels[i] = n.ensemble.Name()
			}
		case scaledNode:
			labels[i] = strconv.FormatFloat(n.coeff, 'g', -1, 64) + "*" + labels[n.left]
		case binaryNode:
			labels[i] = "(" + labels[n.left] + " " + n.op.String() + " " + labels[n.right] + ")"
		}
	}
	return labels[e.root]
}

func realizationLabel(r Realization) string {
	if r == nil {
		return "<nil>"
	}
	if d := r.Description(); d != "" {
		return d
	}
	return fmt.Sprintf("realization-%d", r.Index())
}

// leafKind reports whether every leaf is a realization or every leaf is an
// ensemble. Mixed trees fail with ErrOperandMismatch.
func (e Expr) leafKind() (nodeKind, error) {
	if e.Empty() {
		return 0, fmt.Errorf("ensemble: evaluate: expression is empty")
	}
	kind := nodeKind(255)
	for _, n := range e.nodes {
		if n.kind != realizationLeaf && n.kind != ensembleLeaf {
			continue
		}
		if (n.kind == realizationLeaf && n.realization == nil) || (n.kind == ensembleLeaf && n.ensemble == nil) {
			return 0, fmt.Errorf("ensemble: evaluate: nil operand")
		}
		if kind == 255 {
			kind = n.kind
			continue
		}
		if kind != n.kind {
			return 0, fmt.Errorf("ensemble: evaluate %s: %w", e, ErrOperandMismatch)
		}
	}
	return kind, nil
}
