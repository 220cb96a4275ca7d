package weave

import (
	"encoding/base64"
	"reflect"
	"strconv"
	"strings"
)

// isBytes reports whether t is a byte slice or byte array, written as base64.
func isBytes(t reflect.Type) bool {
	return (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() == reflect.Uint8
}

// arrayShape returns the element type and extents of an array value.
// Nested fixed arrays form one multi-dimensional array; a slice is rank 1.
func arrayShape(t reflect.Type, v reflect.Value) (reflect.Type, []int) {
	if t.Kind() == reflect.Slice {
		n := 0
		if v.IsValid() {
			n = v.Len()
		}
		return t.Elem(), []int{n}
	}
	var dims []int
	for t.Kind() == reflect.Array {
		dims = append(dims, t.Len())
		t = t.Elem()
	}
	return t, dims
}

// cursor walks the positions of a multi-dimensional array in row-major
// order, the last dimension fastest.
type cursor struct {
	dims []int
	idx  []int
	done bool
}

func newCursor(dims []int) *cursor {
	c := &cursor{dims: dims, idx: make([]int, len(dims)), done: len(dims) == 0}
	for _, d := range dims {
		if d == 0 {
			c.done = true
		}
	}
	return c
}

func (c *cursor) valid() bool { return !c.done }

// next advances one position, carrying into higher dimensions. It reports
// false once the first dimension overflows.
func (c *cursor) next() bool {
	if c.done {
		return false
	}
	for i := len(c.idx) - 1; i >= 0; i-- {
		c.idx[i]++
		if c.idx[i] < c.dims[i] {
			return true
		}
		c.idx[i] = 0
	}
	c.done = true
	return false
}

// skip advances n positions, carrying the count through the dimensions
// instead of stepping one position at a time.
func (c *cursor) skip(n int) bool {
	if c.done || n <= 0 {
		return c.valid()
	}
	for i := len(c.idx) - 1; i >= 0 && n > 0; i-- {
		d := c.dims[i]
		carry := n / d
		c.idx[i] += n % d
		if c.idx[i] >= d {
			c.idx[i] -= d
			carry++
		}
		n = carry
	}
	if n > 0 {
		c.done = true
		return false
	}
	return true
}

// at returns the element of v under the cursor.
func (c *cursor) at(v reflect.Value) reflect.Value {
	for _, i := range c.idx {
		v = v.Index(i)
	}
	return v
}

func joinDims(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseDims(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	dims := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 0 {
			return nil, newSerializationError(ErrMalformed, "", "bad dim %q", s)
		}
		dims[i] = d
	}
	return dims, nil
}

func bytesOf(v reflect.Value) []byte {
	b := make([]byte, v.Len())
	for i := range b {
		b[i] = byte(v.Index(i).Uint())
	}
	return b
}

// writeArray writes the extents and each non-default element. A run of
// default elements is recorded as a skipped count on the next element.
func (e *encoder) writeArray(n *Node, t reflect.Type, v reflect.Value) error {
	if isBytes(t) {
		b := bytesOf(v)
		n.SetAttr(attrDim, strconv.Itoa(len(b)))
		n.Text = base64.StdEncoding.EncodeToString(b)
		return nil
	}

	elem, dims := arrayShape(t, v)
	n.SetAttr(attrDim, joinDims(dims))

	skipped := 0
	c := newCursor(dims)
	for ok := c.valid(); ok; ok = c.next() {
		x := c.at(v)
		if x.IsZero() {
			skipped++
			continue
		}
		item := n.Child(itemElement)
		if skipped > 0 {
			item.SetAttr(attrSkipped, strconv.Itoa(skipped))
			skipped = 0
		}
		e.path.push(itemElement)
		err := e.writeInto(item, elem, x)
		e.path.pop()
		if err != nil {
			return err
		}
	}
	return nil
}

// readArray replays the write cursor. A rank-1 slice without a dim
// attribute is read by appending items in order.
func (d *decoder) readArray(n *Node, t reflect.Type, id string) (reflect.Value, error) {
	dimAttr, hasDim := n.Attr(attrDim)

	if isBytes(t) {
		return d.readBytes(n, t, id, dimAttr, hasDim)
	}
	if n.Text != "" {
		return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "text in array element")
	}

	elem, dims := arrayShape(t, reflect.Value{})
	if !hasDim {
		if t.Kind() == reflect.Slice {
			return d.appendItems(n, t, id)
		}
	} else {
		parsed, err := parseDims(dimAttr)
		if err != nil {
			return reflect.Value{}, d.located(err)
		}
		if len(parsed) != len(dims) {
			return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "dim %q has rank %d, want %d", dimAttr, len(parsed), len(dims))
		}
		if t.Kind() == reflect.Array {
			for i := range dims {
				if parsed[i] != dims[i] {
					return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "dim %q does not match %s", dimAttr, t)
				}
			}
		}
		dims = parsed
	}

	var v reflect.Value
	if t.Kind() == reflect.Slice {
		if err := d.checkLength(dims[0], 0); err != nil {
			return reflect.Value{}, err
		}
		v = reflect.MakeSlice(t, dims[0], dims[0])
		if err := d.bind(id, v); err != nil {
			return reflect.Value{}, err
		}
	} else {
		v = reflect.New(t).Elem()
	}

	c := newCursor(dims)
	for _, child := range n.Children {
		if child.Name != itemElement {
			return reflect.Value{}, newSerializationError(ErrUnknownField, d.path.String(), "unexpected <%s> in array", child.Name)
		}
		if s, ok := child.Attr(attrSkipped); ok {
			k, err := strconv.Atoi(s)
			if err != nil || k < 0 {
				return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "bad skipped %q", s)
			}
			if !c.skip(k) {
				return reflect.Value{}, newSerializationError(ErrArrayOverflow, d.path.String(), "dim %s", joinDims(dims))
			}
		}
		if !c.valid() {
			return reflect.Value{}, newSerializationError(ErrArrayOverflow, d.path.String(), "dim %s", joinDims(dims))
		}
		x, err := d.ReadValue(child, elem)
		if err != nil {
			return reflect.Value{}, err
		}
		c.at(v).Set(x)
		c.next()
	}
	return v, nil
}

func (d *decoder) appendItems(n *Node, t reflect.Type, id string) (reflect.Value, error) {
	v := reflect.MakeSlice(t, 0, len(n.Children))
	for _, child := range n.Children {
		if child.Name != itemElement {
			return reflect.Value{}, newSerializationError(ErrUnknownField, d.path.String(), "unexpected <%s> in array", child.Name)
		}
		if s, ok := child.Attr(attrSkipped); ok {
			k, err := strconv.Atoi(s)
			if err != nil || k < 0 {
				return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "bad skipped %q", s)
			}
			if err := d.checkLength(k, v.Len()); err != nil {
				return reflect.Value{}, err
			}
			v = reflect.AppendSlice(v, reflect.MakeSlice(t, k, k))
		}
		x, err := d.ReadValue(child, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		v = reflect.Append(v, x)
	}
	if err := d.bind(id, v); err != nil {
		return reflect.Value{}, err
	}
	return v, nil
}

// checkLength fails when growing a slice of length have by n elements
// would pass the length limit.
func (d *decoder) checkLength(n, have int) error {
	if d.maxLength > 0 && n > d.maxLength-have {
		return newSerializationError(ErrArrayOverflow, d.path.String(), "%d elements exceed the limit of %d", have+n, d.maxLength)
	}
	return nil
}

func (d *decoder) readBytes(n *Node, t reflect.Type, id, dimAttr string, hasDim bool) (reflect.Value, error) {
	if len(n.Children) > 0 {
		return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "byte array with child elements")
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(n.Text))
	if err != nil {
		return reflect.Value{}, wrapSerializationError(ErrMalformed, d.path.String(), err)
	}
	if hasDim {
		dims, err := parseDims(dimAttr)
		if err != nil {
			return reflect.Value{}, d.located(err)
		}
		if len(dims) != 1 || dims[0] != len(b) {
			return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "dim %q for %d bytes", dimAttr, len(b))
		}
	}

	var v reflect.Value
	if t.Kind() == reflect.Slice {
		v = reflect.MakeSlice(t, len(b), len(b))
	} else {
		if len(b) > t.Len() {
			return reflect.Value{}, newSerializationError(ErrArrayOverflow, d.path.String(), "%d bytes for %s", len(b), t)
		}
		v = reflect.New(t).Elem()
	}
	for i, x := range b {
		v.Index(i).SetUint(uint64(x))
	}
	if t.Kind() == reflect.Slice {
		if err := d.bind(id, v); err != nil {
			return reflect.Value{}, err
		}
	}
	return v, nil
}
