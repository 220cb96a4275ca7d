package weave

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// Reserved attribute names.
const (
	attrID      = "id"
	attrRef     = "ref"
	attrType    = "type"
	attrNull    = "null"
	attrDim     = "dim"
	attrSkipped = "skipped"
	attrKey     = "key"
)

// Element names for container members.
const (
	itemElement  = "item"
	entryElement = "entry"
	keyElement   = "key"
	valueElement = "value"
)

// Node is one element of a document. Opaque codecs read and fill nodes
// directly; everything else is produced by the engine.
type Node struct {
	Name     string
	Attrs    []xml.Attr
	Children []*Node
	Text     string
}

// NewNode returns an element with the given name.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// Attr returns the value of an attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr adds or replaces an attribute.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name.Local == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

// Child appends and returns a new child element.
func (n *Node) Child(name string) *Node {
	c := NewNode(name)
	n.Children = append(n.Children, c)
	return c
}

// Empty reports whether the element has neither child elements nor text.
// Attributes do not count as content.
func (n *Node) Empty() bool {
	return len(n.Children) == 0 && n.Text == ""
}

// encodeDocument writes the tree rooted at root.
func encodeDocument(w io.Writer, root *Node, indent string) error {
	enc := xml.NewEncoder(w)
	if indent != "" {
		enc.Indent("", indent)
	}
	var path pathStack
	if err := encodeNode(enc, root, &path); err != nil {
		return err
	}
	return enc.Flush()
}

func encodeNode(enc *xml.Encoder, n *Node, path *pathStack) error {
	path.push(n.Name)
	defer path.pop()

	for _, a := range n.Attrs {
		if !xmlText(a.Value) {
			return newSerializationError(ErrUnsupportedType, path.String(), "attribute %s: %q is not XML text", a.Name.Local, a.Value)
		}
	}
	if !xmlText(n.Text) {
		return newSerializationError(ErrUnsupportedType, path.String(), "%q is not XML text", n.Text)
	}

	start := xml.StartElement{Name: xml.Name{Local: n.Name}, Attr: n.Attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.Text != "" {
		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := encodeNode(enc, c, path); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// xmlText reports whether s is valid UTF-8 made only of characters an XML
// document can carry. Anything else would be replaced on write.
func xmlText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r < 0x20 || r == 0xFFFE || r == 0xFFFF:
			return false
		}
	}
	return true
}

// decodeDocument parses a complete document into a tree.
// Whitespace between child elements is dropped; text mixed with
// child elements is rejected.
func decodeDocument(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var (
		root  *Node
		stack []*Node
		texts []*strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapSerializationError(ErrMalformed, "", err)
		}

		switch tok := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, newSerializationError(ErrMalformed, "", "multiple root elements")
			}
			n := &Node{Name: tok.Name.Local}
			for _, a := range tok.Attr {
				n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: a.Name.Local}, Value: a.Value})
			}
			if len(stack) == 0 {
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
			texts = append(texts, &strings.Builder{})

		case xml.CharData:
			if len(stack) > 0 {
				texts[len(texts)-1].Write(tok)
			}

		case xml.EndElement:
			n := stack[len(stack)-1]
			text := texts[len(texts)-1].String()
			stack, texts = stack[:len(stack)-1], texts[:len(texts)-1]
			if len(n.Children) == 0 {
				n.Text = text
			} else if strings.TrimSpace(text) != "" {
				return nil, newSerializationError(ErrMalformed, n.Name, "text mixed with child elements")
			}
		}
	}

	if root == nil {
		return nil, newSerializationError(ErrMalformed, "", "document has no root element")
	}
	if len(stack) > 0 {
		return nil, newSerializationError(ErrMalformed, stack[len(stack)-1].Name, "unclosed element")
	}
	return root, nil
}
