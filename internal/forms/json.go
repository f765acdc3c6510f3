package forms

import (
	"fmt"

	"github.com/goccy/go-json"
)

// FromJSON decodes the JSON serialization of a schema tree.
func FromJSON(data []byte) (Form, error) {
	var node map[string]any
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("invalid schema JSON: %w", err)
	}
	return fromNode(node)
}

// ToJSON encodes a schema tree to its JSON serialization.
func ToJSON(f Form) ([]byte, error) {
	return json.Marshal(toNode(f))
}

func fromNode(node map[string]any) (Form, error) {
	class, _ := node["class"].(string)
	c := common{}
	if key, ok := node["form_key"].(string); ok {
		c.Key = key
	}
	if params, ok := node["parameters"].(map[string]any); ok && len(params) > 0 {
		c.Params = params
	}

	switch class {
	case "EmptyArray":
		return &Empty{common: c}, nil
	case "NumpyArray":
		primitive, ok := node["primitive"].(string)
		if !ok {
			return nil, fmt.Errorf("NumpyArray node requires a primitive name")
		}
		return &Numpy{common: c, Primitive: primitive}, nil
	case "UnmaskedArray":
		content, err := childNode(node)
		if err != nil {
			return nil, err
		}
		return &Unmasked{common: c, Content: content}, nil
	case "ByteMaskedArray":
		content, err := childNode(node)
		if err != nil {
			return nil, err
		}
		mask, err := indexField(node, "mask")
		if err != nil {
			return nil, err
		}
		valid, _ := node["valid_when"].(bool)
		return &ByteMasked{common: c, Mask: mask, Content: content, ValidWhen: valid}, nil
	case "BitMaskedArray":
		content, err := childNode(node)
		if err != nil {
			return nil, err
		}
		mask, err := indexField(node, "mask")
		if err != nil {
			return nil, err
		}
		valid, _ := node["valid_when"].(bool)
		lsb, _ := node["lsb_order"].(bool)
		return &BitMasked{common: c, Mask: mask, Content: content, ValidWhen: valid, LSBOrder: lsb}, nil
	case "IndexedOptionArray":
		content, err := childNode(node)
		if err != nil {
			return nil, err
		}
		index, err := indexField(node, "index")
		if err != nil {
			return nil, err
		}
		return &IndexedOption{common: c, Index: index, Content: content}, nil
	case "IndexedArray":
		content, err := childNode(node)
		if err != nil {
			return nil, err
		}
		index, err := indexField(node, "index")
		if err != nil {
			return nil, err
		}
		return &Indexed{common: c, Index: index, Content: content}, nil
	case "ListArray":
		content, err := childNode(node)
		if err != nil {
			return nil, err
		}
		starts, err := indexField(node, "starts")
		if err != nil {
			return nil, err
		}
		stops, err := indexField(node, "stops")
		if err != nil {
			return nil, err
		}
		return &List{common: c, Starts: starts, Stops: stops, Content: content}, nil
	case "ListOffsetArray":
		content, err := childNode(node)
		if err != nil {
			return nil, err
		}
		offsets, err := indexField(node, "offsets")
		if err != nil {
			return nil, err
		}
		return &ListOffset{common: c, Offsets: offsets, Content: content}, nil
	case "RegularArray":
		content, err := childNode(node)
		if err != nil {
			return nil, err
		}
		size, ok := node["size"].(float64)
		if !ok {
			return nil, fmt.Errorf("RegularArray node requires a size")
		}
		return &Regular{common: c, Content: content, Size: int(size)}, nil
	case "RecordArray":
		contents, err := childNodes(node)
		if err != nil {
			return nil, err
		}
		var fields []string
		if raw, ok := node["fields"].([]any); ok {
			fields = make([]string, len(raw))
			for i, f := range raw {
				name, ok := f.(string)
				if !ok {
					return nil, fmt.Errorf("RecordArray field names must be strings")
				}
				fields[i] = name
			}
			if len(fields) != len(contents) {
				return nil, fmt.Errorf("RecordArray has %d fields but %d contents", len(fields), len(contents))
			}
		}
		return &Record{common: c, Fields: fields, Contents: contents}, nil
	case "UnionArray":
		contents, err := childNodes(node)
		if err != nil {
			return nil, err
		}
		tags, err := indexField(node, "tags")
		if err != nil {
			return nil, err
		}
		index, err := indexField(node, "index")
		if err != nil {
			return nil, err
		}
		return &Union{common: c, Tags: tags, Index: index, Contents: contents}, nil
	default:
		return nil, fmt.Errorf("unknown schema node class %q", class)
	}
}

func childNode(node map[string]any) (Form, error) {
	content, ok := node["content"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%v node requires a content", node["class"])
	}
	return fromNode(content)
}

func childNodes(node map[string]any) ([]Form, error) {
	raw, ok := node["contents"].([]any)
	if !ok {
		return nil, fmt.Errorf("%v node requires a contents list", node["class"])
	}
	out := make([]Form, len(raw))
	for i, child := range raw {
		m, ok := child.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%v node contents must be objects", node["class"])
		}
		f, err := fromNode(m)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func indexField(node map[string]any, name string) (Index, error) {
	s, ok := node[name].(string)
	if !ok {
		return "", fmt.Errorf("%v node requires a %s index width", node["class"], name)
	}
	ix := Index(s)
	if _, err := ix.DType(); err != nil {
		return "", err
	}
	return ix, nil
}

func toNode(f Form) map[string]any {
	node := map[string]any{"class": f.Class()}
	if key := f.FormKey(); key != "" {
		node["form_key"] = key
	}
	if params := f.Parameters(); len(params) > 0 {
		node["parameters"] = params
	}

	switch v := f.(type) {
	case *Numpy:
		node["primitive"] = v.Primitive
	case *Unmasked:
		node["content"] = toNode(v.Content)
	case *ByteMasked:
		node["mask"] = string(v.Mask)
		node["valid_when"] = v.ValidWhen
		node["content"] = toNode(v.Content)
	case *BitMasked:
		node["mask"] = string(v.Mask)
		node["valid_when"] = v.ValidWhen
		node["lsb_order"] = v.LSBOrder
		node["content"] = toNode(v.Content)
	case *IndexedOption:
		node["index"] = string(v.Index)
		node["content"] = toNode(v.Content)
	case *Indexed:
		node["index"] = string(v.Index)
		node["content"] = toNode(v.Content)
	case *List:
		node["starts"] = string(v.Starts)
		node["stops"] = string(v.Stops)
		node["content"] = toNode(v.Content)
	case *ListOffset:
		node["offsets"] = string(v.Offsets)
		node["content"] = toNode(v.Content)
	case *Regular:
		node["size"] = v.Size
		node["content"] = toNode(v.Content)
	case *Record:
		if v.Fields != nil {
			node["fields"] = v.Fields
		} else {
			node["fields"] = nil
		}
		contents := make([]map[string]any, len(v.Contents))
		for i, child := range v.Contents {
			contents[i] = toNode(child)
		}
		node["contents"] = contents
	case *Union:
		node["tags"] = string(v.Tags)
		node["index"] = string(v.Index)
		contents := make([]map[string]any, len(v.Contents))
		for i, child := range v.Contents {
			contents[i] = toNode(child)
		}
		node["contents"] = contents
	}
	return node
}
