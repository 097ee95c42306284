// Package xmlparse builds a generic, namespace-aware XML tree.
//
// encoding/xml resolves element and attribute prefixes to namespace URIs but
// discards the prefix declarations themselves. XBRL documents redeclare
// prefixes at arbitrary depths and reference concepts through them (e.g. a
// fact tag "us-gaap:Assets"), so every node here also records the xmlns
// declarations in scope at its point in the document.
package xmlparse

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Node is one element of the parsed tree.
type Node struct {
	Name  xml.Name
	Attrs []xml.Attr
	// Content is the character data before the first child element; Tail is
	// the character data between this element's end tag and the next
	// sibling. Splitting the two keeps mixed content reassemblable in
	// document order.
	Content  string
	Tail     string
	Parent   *Node
	Children []*Node

	// decls holds the prefix -> namespace URI declarations made on this
	// element only; the effective map is assembled by walking ancestors.
	decls map[string]string
}

// Document is a parsed XML document.
type Document struct {
	Root *Node
}

// Parse reads an XML document from r into a tree.
func Parse(r io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xmlparse: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	doc := &Document{}
	var current *Node

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "xmlparse: read token")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{
				Name:   t.Name,
				Attrs:  make([]xml.Attr, len(t.Attr)),
				Parent: current,
			}
			copy(node.Attrs, t.Attr)
			for _, attr := range t.Attr {
				switch {
				case attr.Name.Space == "xmlns":
					if node.decls == nil {
						node.decls = map[string]string{}
					}
					node.decls[attr.Name.Local] = attr.Value
				case attr.Name.Space == "" && attr.Name.Local == "xmlns":
					if node.decls == nil {
						node.decls = map[string]string{}
					}
					node.decls[""] = attr.Value
				}
			}
			if doc.Root == nil {
				doc.Root = node
			}
			if current != nil {
				current.Children = append(current.Children, node)
			}
			current = node
		case xml.CharData:
			if current == nil {
				break
			}
			if n := len(current.Children); n > 0 {
				current.Children[n-1].Tail += string(t)
			} else {
				current.Content += string(t)
			}
		case xml.EndElement:
			if current != nil {
				current = current.Parent
			}
		}
	}

	if doc.Root == nil {
		return nil, eris.New("xmlparse: document has no root element")
	}
	return doc, nil
}

// ParseBytes parses an in-memory XML document.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

// ParseFile parses the XML document at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xmlparse: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	doc, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "xmlparse: parse %s", path)
	}
	return doc, nil
}

// Attr returns the value of the attribute with the given namespace URI and
// local name, or "" if absent. Pass space "" for unprefixed attributes.
func (n *Node) Attr(space, local string) string {
	v, _ := n.LookupAttr(space, local)
	return v
}

// LookupAttr is Attr with an explicit presence flag.
func (n *Node) LookupAttr(space, local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local && a.Name.Space == space {
			return a.Value, true
		}
	}
	return "", false
}

// Is reports whether the node has the given namespace URI and local name.
func (n *Node) Is(space, local string) bool {
	return n.Name.Local == local && n.Name.Space == space
}

// Find returns the first direct child matching (space, local), or nil.
func (n *Node) Find(space, local string) *Node {
	for _, c := range n.Children {
		if c.Is(space, local) {
			return c
		}
	}
	return nil
}

// FindAll returns every direct child matching (space, local).
func (n *Node) FindAll(space, local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Is(space, local) {
			out = append(out, c)
		}
	}
	return out
}

// Descendants returns every node in the subtree matching (space, local), in
// document order, excluding n itself.
func (n *Node) Descendants(space, local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Is(space, local) {
			out = append(out, c)
		}
		out = append(out, c.Descendants(space, local)...)
	}
	return out
}

// Text returns the node's trimmed character content.
func (n *Node) Text() string {
	return strings.TrimSpace(n.Content)
}

// DeepText returns the node's character content concatenated with that of
// all descendants in document order, trimmed. Used for mixed content where
// a value is split across inline markup.
func (n *Node) DeepText() string {
	var b strings.Builder
	var walk func(*Node)
	walk = func(cur *Node) {
		b.WriteString(cur.Content)
		for _, child := range cur.Children {
			walk(child)
			b.WriteString(child.Tail)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// Namespace resolves a prefix to its URI in effect at this node, walking up
// through ancestors. The empty prefix resolves the default namespace.
func (n *Node) Namespace(prefix string) (string, bool) {
	for cur := n; cur != nil; cur = cur.Parent {
		if ns, ok := cur.decls[prefix]; ok {
			return ns, true
		}
	}
	return "", false
}

// NamespaceMap returns the full prefix -> URI mapping in effect at this node.
// Declarations on deeper elements shadow ancestor declarations.
func (n *Node) NamespaceMap() map[string]string {
	var chain []*Node
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	m := map[string]string{}
	for i := len(chain) - 1; i >= 0; i-- {
		for p, ns := range chain[i].decls {
			m[p] = ns
		}
	}
	return m
}
