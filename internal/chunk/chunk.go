// Package chunk implements Chunk[A], a persistent sequence with O(1)
// append/concat and O(n) materialization, built as the algebraic data
// type Empty | Single | Concat | Collect | TransformFlatten. Values
// share structure with their predecessors; realization is deferred to
// AsVec.
package chunk

// Chunk is an immutable sequence. The zero value is the empty chunk.
type Chunk[A any] struct {
	kind     kind
	single   A
	left     *Chunk[A]
	right    *Chunk[A]
	collect  *[]A
	upstream *Chunk[A]
	flatten  func(A) Chunk[A]
}

type kind int

const (
	kindEmpty kind = iota
	kindSingle
	kindConcat
	kindCollect
	kindTransformFlatten
)

// Empty returns the empty chunk.
func Empty[A any]() Chunk[A] {
	return Chunk[A]{kind: kindEmpty}
}

// New returns a chunk containing exactly one element.
func New[A any](a A) Chunk[A] {
	return Chunk[A]{kind: kindSingle, single: a}
}

// FromSlice returns a Collect chunk holding a copy of items; later
// writes to items do not affect the chunk.
func FromSlice[A any](items []A) Chunk[A] {
	if len(items) == 0 {
		return Empty[A]()
	}
	cp := append([]A(nil), items...)
	return Chunk[A]{kind: kindCollect, collect: &cp}
}

// IsNull reports whether the chunk has no elements.
func (c Chunk[A]) IsNull() bool {
	switch c.kind {
	case kindEmpty:
		return true
	case kindCollect:
		return len(*c.collect) == 0
	default:
		return false
	}
}

// Append returns a new chunk with a appended. O(1).
func (c Chunk[A]) Append(a A) Chunk[A] {
	return c.Concat(New(a))
}

// Prepend returns a new chunk with a prepended. O(1).
func (c Chunk[A]) Prepend(a A) Chunk[A] {
	return New(a).Concat(c)
}

// Concat concatenates two chunks. O(1). Concat with an empty side
// returns the other side unchanged.
func (c Chunk[A]) Concat(other Chunk[A]) Chunk[A] {
	if c.IsNull() {
		return other
	}
	if other.IsNull() {
		return c
	}
	left, right := c, other
	return Chunk[A]{kind: kindConcat, left: &left, right: &right}
}

// Transform maps every element through f, lazily.
func (c Chunk[A]) Transform(f func(A) A) Chunk[A] {
	return c.TransformFlatten(func(a A) Chunk[A] { return New(f(a)) })
}

// TransformFlatten flat-maps every element through f, lazily.
func (c Chunk[A]) TransformFlatten(f func(A) Chunk[A]) Chunk[A] {
	if c.IsNull() {
		return Empty[A]()
	}
	up := c
	return Chunk[A]{kind: kindTransformFlatten, upstream: &up, flatten: f}
}

// Materialize returns the chunk realized as a Collect node, so
// operations on the returned chunk reuse its realized backing slice.
// The receiver itself is left unchanged.
func (c Chunk[A]) Materialize() Chunk[A] {
	if c.kind == kindCollect {
		return c
	}
	items := c.AsVec()
	return FromSlice(items)
}

// AsVec realizes the chunk into a plain slice. O(n).
func (c Chunk[A]) AsVec() []A {
	var out []A
	c.appendInto(&out)
	return out
}

func (c Chunk[A]) appendInto(out *[]A) {
	switch c.kind {
	case kindEmpty:
		return
	case kindSingle:
		*out = append(*out, c.single)
	case kindCollect:
		*out = append(*out, (*c.collect)...)
	case kindConcat:
		c.left.appendInto(out)
		c.right.appendInto(out)
	case kindTransformFlatten:
		for _, a := range c.upstream.AsVec() {
			c.flatten(a).appendInto(out)
		}
	}
}

// Len returns the number of elements. O(n) in the worst case (it
// realizes the chunk), matching the persistent structure's lazy
// nature — callers that need Len repeatedly should Materialize first.
func (c Chunk[A]) Len() int {
	return len(c.AsVec())
}
