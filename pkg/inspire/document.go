package inspire

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// element is one node of a parsed API response. The vendor documents
// are schemaless from our point of view: tag names pass through
// verbatim into Records, so responses are kept as a generic tree
// instead of per-operation structs.
type element struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []element `xml:",any"`
}

func parseDocument(body []byte) (*element, error) {
	root := &element{}
	if err := xml.Unmarshal(body, root); err != nil {
		return nil, err
	}
	return root, nil
}

// find returns the first descendant (or the element itself) with the
// given tag name, depth first. Tag names are compared
// case-insensitively because the vendor is not consistent about
// casing across endpoints.
func (e *element) find(tag string) *element {
	if strings.EqualFold(e.XMLName.Local, tag) {
		return e
	}
	for i := range e.Children {
		if found := e.Children[i].find(tag); found != nil {
			return found
		}
	}
	return nil
}

// text returns the element's own character data with surrounding
// whitespace removed.
func (e *element) text() string {
	return strings.TrimSpace(e.Text)
}

// record maps the element's direct children to their text values.
// Children that are themselves containers contribute empty strings;
// use flattened for the one-level merge behaviour.
func (e *element) record() Record {
	rec := Record{}
	for i := range e.Children {
		child := &e.Children[i]
		rec[child.XMLName.Local] = child.text()
	}
	return rec
}

// flattened maps the element's children to a Record, merging exactly
// one level of nesting: a child with no text of its own but with
// children (a set-points group, for instance) has its grandchildren's
// tag/text pairs written directly into the top-level record. Later
// writes win; the vendor does not emit colliding tags in practice and
// callers must tolerate last-wins if it ever does.
func (e *element) flattened() Record {
	rec := Record{}
	for i := range e.Children {
		child := &e.Children[i]
		if text := child.text(); text != "" {
			rec[child.XMLName.Local] = text
			continue
		}
		for j := range child.Children {
			sub := &child.Children[j]
			rec[sub.XMLName.Local] = sub.text()
		}
	}
	return rec
}

// records maps each direct child of the element to its own Record.
// Used for list-shaped payloads: device listings, log entries,
// confirmations, summary groups.
func (e *element) records() []Record {
	out := []Record{}
	for i := range e.Children {
		out = append(out, e.Children[i].record())
	}
	return out
}

// summary shapes the element into a Summary: children with text
// become scalar fields, children containing repeated sub-elements
// become ordered groups of Records, never silently merged.
func (e *element) summary() *Summary {
	s := &Summary{
		Fields: Record{},
		Groups: map[string][]Record{},
	}
	for i := range e.Children {
		child := &e.Children[i]
		if len(child.Children) > 0 {
			s.Groups[child.XMLName.Local] = child.records()
			continue
		}
		s.Fields[child.XMLName.Local] = child.text()
	}
	return s
}

// statusCode extracts the code and message from the optional status
// envelope. ok is false when the document carries no status node or
// no parsable code.
func (e *element) statusCode() (code int, message string, ok bool) {
	status := e.find("status")
	if status == nil {
		return 0, "", false
	}
	codeElem := status.find("code")
	if codeElem == nil || codeElem.text() == "" {
		return 0, "", false
	}
	n, err := strconv.Atoi(codeElem.text())
	if err != nil {
		return 0, "", false
	}
	message = "Unknown error"
	if msgElem := status.find("message"); msgElem != nil && msgElem.text() != "" {
		message = msgElem.text()
	}
	return n, message, true
}
