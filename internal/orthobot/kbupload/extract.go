package kbupload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Item is one piece of knowledge extracted from a source file, before
// chunking.
type Item struct {
	Title     string
	URL       string
	Keywords  []string
	Intent    string
	Summary   string
	Content   string
	Path      []string
	ItemIndex int
}

// node is a JSON value that remembers object key order, so items come out
// in document order.
type node struct {
	kind   nodeKind
	scalar string
	keys   []string
	values []*node
}

type nodeKind int

const (
	kindNull nodeKind = iota
	kindString
	kindScalar
	kindObject
	kindArray
)

func parseJSON(data []byte) (*node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeNode(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("kbupload: trailing data after JSON value")
	}
	return n, nil
}

func decodeNode(dec *json.Decoder) (*node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		n := &node{kind: kindObject}
		if t == '[' {
			n.kind = kindArray
		}
		for dec.More() {
			if n.kind == kindObject {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := kt.(string)
				n.keys = append(n.keys, key)
			}
			child, err := decodeNode(dec)
			if err != nil {
				return nil, err
			}
			n.values = append(n.values, child)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return n, nil
	case string:
		return &node{kind: kindString, scalar: t}, nil
	case json.Number:
		return &node{kind: kindScalar, scalar: t.String()}, nil
	case bool:
		return &node{kind: kindScalar, scalar: strconv.FormatBool(t)}, nil
	default:
		return &node{kind: kindNull}, nil
	}
}

// field returns the value under key, or nil.
func (n *node) field(key string) *node {
	if n == nil || n.kind != kindObject {
		return nil
	}
	for i, k := range n.keys {
		if k == key {
			return n.values[i]
		}
	}
	return nil
}

// text is the string form of a scalar; composite and null values are "".
func (n *node) text() string {
	if n == nil {
		return ""
	}
	switch n.kind {
	case kindString, kindScalar:
		return n.scalar
	}
	return ""
}

// keywords accepts a JSON array of strings or one comma-separated string.
func (n *node) keywords() []string {
	if n == nil {
		return nil
	}
	var out []string
	switch n.kind {
	case kindArray:
		for _, v := range n.values {
			if s := strings.TrimSpace(v.text()); s != "" {
				out = append(out, s)
			}
		}
	case kindString:
		for _, s := range strings.Split(n.scalar, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// ExtractItems turns a knowledge file into items. Supported shapes, in
// order:
//   - {"knowledgeBase": [...]}: one item per element
//   - any other JSON object or array: flattened; question/answer objects
//     become "Q: ...\nA: ..." items, string leaves become items titled by
//     their path
//   - anything else (including invalid JSON): the whole text as one item
func ExtractItems(data []byte, fileName string) []Item {
	root, err := parseJSON(data)
	if err != nil {
		return []Item{{Title: fileName, Content: string(data), Path: []string{fileName}}}
	}

	if kb := root.field("knowledgeBase"); kb != nil && kb.kind == kindArray {
		items := make([]Item, 0, len(kb.values))
		for i, el := range kb.values {
			title := el.field("title").text()
			if title == "" {
				title = fmt.Sprintf("%s item %d", fileName, i)
			}
			items = append(items, Item{
				Title:     title,
				URL:       el.field("url").text(),
				Keywords:  el.field("keywords").keywords(),
				Intent:    el.field("intent").text(),
				Summary:   el.field("summary").text(),
				Content:   el.field("content").text(),
				Path:      []string{fileName, "knowledgeBase", strconv.Itoa(i)},
				ItemIndex: i,
			})
		}
		return items
	}

	if root.kind == kindObject || root.kind == kindArray {
		flat := flatten(root, []string{fileName})
		items := make([]Item, 0, len(flat))
		for i, it := range flat {
			if strings.TrimSpace(it.Content) == "" {
				continue
			}
			it.ItemIndex = i
			items = append(items, it)
		}
		return items
	}

	raw := root.text()
	if root.kind != kindString {
		raw = strings.TrimSpace(string(data))
	}
	return []Item{{Title: fileName, Content: raw, Path: []string{fileName}}}
}

func flatten(n *node, path []string) []Item {
	switch n.kind {
	case kindArray:
		var out []Item
		for i, v := range n.values {
			out = append(out, flatten(v, appendPath(path, strconv.Itoa(i)))...)
		}
		return out

	case kindObject:
		q, a := n.field("question").text(), n.field("answer").text()
		if q != "" && a != "" {
			title := strings.Join(path, " > ")
			if title == "" {
				title = "faq_item"
			}
			return []Item{{Title: title, Content: "Q: " + q + "\nA: " + a, Path: path}}
		}
		var out []Item
		for i, key := range n.keys {
			sub := appendPath(path, key)
			v := n.values[i]
			if v.kind == kindString {
				out = append(out, Item{Title: strings.Join(sub, " > "), Content: v.scalar, Path: sub})
				continue
			}
			out = append(out, flatten(v, sub)...)
		}
		return out

	case kindString:
		title := strings.Join(path, " > ")
		if title == "" {
			title = "text"
		}
		return []Item{{Title: title, Content: n.scalar, Path: path}}
	}
	return nil
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}
