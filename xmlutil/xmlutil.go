// Package xmlutil parses XML documents into a navigable element tree and looks
// up child elements that must occur exactly once.
package xmlutil

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/arloliu/looper/types"
)

// Element is one XML element with its attributes, character data and children.
type Element struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*Element
}

// NewElement creates a detached element with the given local name.
func NewElement(tag string) *Element {
	return &Element{Name: xml.Name{Local: tag}}
}

// SubElement appends a new child with the given local name and returns it.
func (e *Element) SubElement(tag string) *Element {
	child := NewElement(tag)
	e.Children = append(e.Children, child)

	return child
}

// Attr returns the value of the attribute with the given local name.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}

	return "", false
}

// FindAll returns the direct children whose local name is tag, in document order.
func (e *Element) FindAll(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name.Local == tag {
			out = append(out, c)
		}
	}

	return out
}

// Parse reads one XML document and returns its root element.
// Character data is trimmed of surrounding whitespace.
func Parse(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)

	var root *Element
	var stack []*Element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name, Attrs: t.Copy().Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("failed to parse xml: multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(top.Text)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, errors.New("failed to parse xml: no root element")
	}

	return root, nil
}

// FindExactlyOne returns the single direct child of parent named tag.
//
// It returns types.ErrNoMatchingXMLElement when there is none and
// types.ErrMultipleMatchingXMLElements when there are several. Both errors
// list the tags involved.
func FindExactlyOne(parent *Element, tag string) (*Element, error) {
	matches := parent.FindAll(tag)

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		tags := make([]string, 0, len(parent.Children))
		for _, c := range parent.Children {
			tags = append(tags, c.Name.Local)
		}

		return nil, fmt.Errorf("%w: no %q element among children of <%s>: [%s]",
			types.ErrNoMatchingXMLElement, tag, parent.Name.Local, strings.Join(tags, " "))
	default:
		tags := make([]string, 0, len(matches))
		for _, m := range matches {
			tags = append(tags, m.Name.Local)
		}

		return nil, fmt.Errorf("%w: %d %q elements under <%s>: [%s]",
			types.ErrMultipleMatchingXMLElements, len(matches), tag, parent.Name.Local, strings.Join(tags, " "))
	}
}
