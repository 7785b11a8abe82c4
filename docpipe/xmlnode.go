package docpipe

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxXMLDepth bounds element nesting in any parsed part.
const maxXMLDepth = 256

// xnode is a minimal element tree. Character data is kept only on the
// element that directly contains it.
type xnode struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*xnode
	text     strings.Builder
}

// parseXML reads a whole XML document into an xnode tree.
func parseXML(r io.Reader) (*xnode, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	root := &xnode{}
	stack := []*xnode{root}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) > maxXMLDepth {
				return nil, fmt.Errorf("xml nesting depth exceeds %d", maxXMLDepth)
			}
			n := &xnode{name: t.Name, attrs: t.Copy().Attr}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}
	if len(root.children) == 0 {
		return nil, errors.New("xml: no root element")
	}
	return root.children[0], nil
}

func (n *xnode) is(local string) bool { return n != nil && n.name.Local == local }

// child returns the first direct child with the given local name.
func (n *xnode) child(local string) *xnode {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name.Local == local {
			return c
		}
	}
	return nil
}

// path follows a chain of direct children.
func (n *xnode) path(locals ...string) *xnode {
	for _, l := range locals {
		n = n.child(l)
	}
	return n
}

// all returns the direct children with the given local name.
func (n *xnode) all(local string) []*xnode {
	if n == nil {
		return nil
	}
	var out []*xnode
	for _, c := range n.children {
		if c.name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// walk visits n and its descendants depth-first. Returning false from fn
// skips the subtree below the visited node.
func (n *xnode) walk(fn func(*xnode) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.children {
		c.walk(fn)
	}
}

// attr returns the value of the first attribute with the given local name.
func (n *xnode) attr(local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// relAttr returns an attribute from the officeDocument relationships
// namespace (r:id, r:embed, r:link).
func (n *xnode) relAttr(local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.attrs {
		if a.Name.Local == local && (a.Name.Space == "r" || strings.HasSuffix(a.Name.Space, "/relationships")) {
			return a.Value
		}
	}
	return ""
}

func (n *xnode) chardata() string {
	if n == nil {
		return ""
	}
	return n.text.String()
}
