package eslog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
)

// node is a namespace-free XML element.
type node struct {
	name     string
	text     string
	children []*node
	parent   *node
}

func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *node) childrenNamed(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// path follows direct children by name.
func (n *node) path(names ...string) *node {
	cur := n
	for _, name := range names {
		cur = cur.child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// value returns the trimmed text at path, or "".
func (n *node) value(names ...string) string {
	if p := n.path(names...); p != nil {
		return strings.TrimSpace(p.text)
	}
	return ""
}

// all returns descendants named name in document order without descending
// into elements whose names are in stop.
func (n *node) all(name string, stop ...string) []*node {
	var out []*node
	var walk func(*node)
	walk = func(cur *node) {
		for _, c := range cur.children {
			if c.name == name {
				out = append(out, c)
			}
			if contains(stop, c.name) {
				continue
			}
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

func (n *node) first(name string, stop ...string) *node {
	if found := n.all(name, stop...); len(found) > 0 {
		return found[0]
	}
	return nil
}

func (n *node) hasAncestor(name string, limit *node) bool {
	for p := n.parent; p != nil && p != limit; p = p.parent {
		if p.name == name {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// unsafeDirective reports directives that define entities or reference
// external resources. Only a bare DOCTYPE is accepted; any other directive
// kind is unsafe.
func unsafeDirective(d xml.Directive) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(string(d)))
	for _, keyword := range []string{"ENTITY", "SYSTEM", "PUBLIC"} {
		if strings.Contains(upper, keyword) {
			return keyword, true
		}
	}
	if !strings.HasPrefix(upper, "DOCTYPE") {
		kind, _, _ := strings.Cut(upper, " ")
		return kind, true
	}
	return "", false
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// parseTree decodes raw into an element tree. Entity expansion is never
// performed: DOCTYPE declarations with entities or external identifiers are
// rejected, and undefined entity references fail in strict mode.
func parseTree(raw []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = true
	dec.Entity = nil
	dec.CharsetReader = charsetReader

	root := &node{name: "#document"}
	cur := root
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var syntaxErr *xml.SyntaxError
			if errors.As(err, &syntaxErr) && strings.Contains(syntaxErr.Msg, "entity") {
				return nil, invoice.Unsafe("ENTITY", "entity reference rejected: %s", syntaxErr.Msg)
			}
			return nil, invoice.Malformed("XML", "invalid xml: %v", err)
		}

		switch t := tok.(type) {
		case xml.Directive:
			if keyword, bad := unsafeDirective(t); bad {
				return nil, invoice.Unsafe("DOCTYPE", "directive uses %s", keyword)
			}
		case xml.StartElement:
			el := &node{name: t.Name.Local, parent: cur}
			cur.children = append(cur.children, el)
			cur = el
		case xml.EndElement:
			if cur.parent != nil {
				cur = cur.parent
			}
		case xml.CharData:
			if len(cur.children) == 0 {
				cur.text += string(t)
			}
		}
	}

	if len(root.children) == 0 {
		return nil, invoice.Malformed("XML", "empty document")
	}
	return root, nil
}
