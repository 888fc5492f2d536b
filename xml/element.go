/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"fmt"
	"strings"
)

// XElement is the generic XML-element surface shared by plain elements and
// stanzas, grounded on the teacher's xml.XElement interface usage in
// c2s.go (elem.Name(), elem.Namespace(), elem.To(), elem.From()...).
type XElement interface {
	Name() string
	Namespace() string
	Version() string
	To() string
	From() string
	Type() string
	ID() string
	Text() string

	Attributes() AttributeSet
	Elements() ElementSet

	SetAttribute(name, value string)
	AppendElement(e XElement)
	AppendElements(es []XElement)

	ToXML(sb *strings.Builder, includeClosing bool)
	String() string
}

// Attribute is a single XML attribute.
type Attribute struct {
	Name  string
	Value string
}

// AttributeSet is the ordered attribute list of an Element.
type AttributeSet []Attribute

// Get returns the value of the named attribute, or "".
func (s AttributeSet) Get(name string) string {
	for _, a := range s {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// ElementSet is the ordered child list of an Element.
type ElementSet []XElement

// Child returns the first child with the given local name.
func (s ElementSet) Child(name string) XElement {
	for _, e := range s {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// ChildNamespace returns the first child matching name and namespace.
func (s ElementSet) ChildNamespace(name, namespace string) XElement {
	for _, e := range s {
		if e.Name() == name && e.Namespace() == namespace {
			return e
		}
	}
	return nil
}

// All returns every child element.
func (s ElementSet) All() []XElement { return s }

// Element is the concrete, mutable XElement implementation. It is the
// opaque preserved body spec.md §3 describes for re-serialization.
type Element struct {
	name       string
	namespace  string
	attributes AttributeSet
	elements   ElementSet
	text       string
}

// NewElementName creates an element with no namespace.
func NewElementName(name string) *Element {
	return &Element{name: name}
}

// NewElementNamespace creates an element carrying an xmlns.
func NewElementNamespace(name, namespace string) *Element {
	return &Element{name: name, namespace: namespace}
}

// NewElementFromElement performs a shallow copy used when wrapping an
// incoming element into a Stanza subtype.
func NewElementFromElement(e XElement) *Element {
	cp := &Element{
		name:      e.Name(),
		namespace: e.Namespace(),
		text:      e.Text(),
	}
	cp.attributes = append(cp.attributes, e.Attributes()...)
	cp.elements = append(cp.elements, e.Elements()...)
	return cp
}

func (e *Element) Name() string      { return e.name }
func (e *Element) Namespace() string { return e.namespace }
func (e *Element) Version() string   { return e.Attributes().Get("version") }
func (e *Element) To() string        { return e.Attributes().Get("to") }
func (e *Element) From() string      { return e.Attributes().Get("from") }
func (e *Element) Type() string      { return e.Attributes().Get("type") }
func (e *Element) ID() string        { return e.Attributes().Get("id") }
func (e *Element) Text() string      { return e.text }

func (e *Element) Attributes() AttributeSet { return e.attributes }
func (e *Element) Elements() ElementSet     { return e.elements }

func (e *Element) SetText(text string) { e.text = text }

func (e *Element) SetAttribute(name, value string) {
	for i, a := range e.attributes {
		if a.Name == name {
			e.attributes[i].Value = value
			return
		}
	}
	e.attributes = append(e.attributes, Attribute{Name: name, Value: value})
	if name == "xmlns" {
		e.namespace = value
	}
}

func (e *Element) SetNamespace(namespace string) { e.namespace = namespace }

func (e *Element) AppendElement(child XElement) {
	e.elements = append(e.elements, child)
}

func (e *Element) AppendElements(children []XElement) {
	e.elements = append(e.elements, children...)
}

// ToXML serializes the element. An element with no children and no text is
// self-closed when includeClosing is true; when it is false only the start
// tag is written, as openStream() does for the unterminated <stream:stream>
// header. An element with children or text is always written in full.
func (e *Element) ToXML(sb *strings.Builder, includeClosing bool) {
	sb.WriteByte('<')
	sb.WriteString(e.name)
	if e.namespace != "" && e.attributes.Get("xmlns") == "" {
		sb.WriteString(fmt.Sprintf(` xmlns="%s"`, e.namespace))
	}
	for _, a := range e.attributes {
		sb.WriteString(fmt.Sprintf(` %s="%s"`, a.Name, escape(a.Value)))
	}
	hasBody := len(e.elements) > 0 || e.text != ""
	if !hasBody && !includeClosing {
		sb.WriteString(">")
		return
	}
	if !hasBody {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	if e.text != "" {
		sb.WriteString(escape(e.text))
	}
	for _, c := range e.elements {
		c.ToXML(sb, true)
	}
	sb.WriteString("</")
	sb.WriteString(e.name)
	sb.WriteByte('>')
}

func (e *Element) String() string {
	var sb strings.Builder
	e.ToXML(&sb, true)
	return sb.String()
}

func escape(s string) string {
	r := strings.NewReplacer(
		`&`, "&amp;",
		`<`, "&lt;",
		`>`, "&gt;",
		`"`, "&quot;",
		`'`, "&apos;",
	)
	return r.Replace(s)
}
