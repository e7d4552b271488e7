package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"
)

type fileDataset struct {
	Name        string           `yaml:"name"`
	Account     *Account         `yaml:"account"`
	Collections []fileCollection `yaml:"collections"`
}

type fileCollection struct {
	Collection string      `yaml:"collection"`
	Label      string      `yaml:"label"`
	Key        string      `yaml:"key"`
	Strategy   Strategy    `yaml:"strategy"`
	Documents  []yaml.Node `yaml:"documents"`
	Indexes    []Index     `yaml:"indexes"`
}

// Load reads a dataset from a YAML file
func Load(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to read dataset: %w", err)
	}
	ds, err := Parse(raw)
	if err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes a YAML dataset. Documents keep their field order and their
// scalar types; unquoted timestamps become BSON dates. Unknown fields outside
// documents are rejected.
func Parse(raw []byte) (Dataset, error) {
	var file fileDataset
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Dataset{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	ds := Dataset{Name: file.Name, Account: file.Account}
	for i, fc := range file.Collections {
		c := Collection{
			Name:     fc.Collection,
			Label:    fc.Label,
			Key:      fc.Key,
			Strategy: fc.Strategy,
			Indexes:  fc.Indexes,
		}
		for j := range fc.Documents {
			v, err := nodeValue(&fc.Documents[j])
			if err != nil {
				return Dataset{}, fmt.Errorf("%w: collections[%d].documents[%d]: %w", ErrInvalid, i, j, err)
			}
			doc, ok := v.(bson.D)
			if !ok {
				return Dataset{}, fmt.Errorf("%w: collections[%d].documents[%d]: expected a mapping", ErrInvalid, i, j)
			}
			c.Documents = append(c.Documents, doc)
		}
		ds.Collections = append(ds.Collections, c)
	}
	return ds, nil
}

func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		return mappingValue(n)
	case yaml.SequenceNode:
		arr := make(bson.A, 0, len(n.Content))
		for _, item := range n.Content {
			val, err := nodeValue(item)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		return arr, nil
	case yaml.ScalarNode:
		return scalarValue(n)
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// mappingValue converts a mapping into a document. Field names must be unique;
// merge keys (<<) splice in the fields of the referenced mappings that the
// mapping does not set itself, earlier sources winning over later ones.
func mappingValue(n *yaml.Node) (bson.D, error) {
	explicit := make(map[string]int, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: field names must be scalars", k.Line)
		}
		if k.ShortTag() == "!!merge" {
			continue
		}
		if line, ok := explicit[k.Value]; ok {
			return nil, fmt.Errorf("line %d: field %q already defined at line %d", k.Line, k.Value, line)
		}
		explicit[k.Value] = k.Line
	}

	doc := make(bson.D, 0, len(n.Content)/2)
	present := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.ShortTag() == "!!merge" {
			merged, err := mergeSources(v)
			if err != nil {
				return nil, err
			}
			for _, e := range merged {
				if _, ok := explicit[e.Key]; ok || present[e.Key] {
					continue
				}
				present[e.Key] = true
				doc = append(doc, e)
			}
			continue
		}

		val, err := nodeValue(v)
		if err != nil {
			return nil, err
		}
		present[k.Value] = true
		doc = append(doc, bson.E{Key: k.Value, Value: val})
	}
	return doc, nil
}

// mergeSources resolves the value of a merge key: a mapping, or a sequence of mappings
func mergeSources(v *yaml.Node) (bson.D, error) {
	if v.Kind == yaml.AliasNode {
		v = v.Alias
	}

	switch v.Kind {
	case yaml.MappingNode:
		return mappingValue(v)
	case yaml.SequenceNode:
		var out bson.D
		seen := make(map[string]bool)
		for _, item := range v.Content {
			if item.Kind == yaml.AliasNode {
				item = item.Alias
			}
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("line %d: merge sources must be mappings", item.Line)
			}
			fields, err := mappingValue(item)
			if err != nil {
				return nil, err
			}
			for _, e := range fields {
				if !seen[e.Key] {
					seen[e.Key] = true
					out = append(out, e)
				}
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: merge sources must be mappings", v.Line)
}

func scalarValue(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!str":
		return n.Value, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i), nil
		}
		return i, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	case "!!timestamp":
		var t time.Time
		if err := n.Decode(&t); err != nil {
			return nil, err
		}
		return primitive.NewDateTimeFromTime(t), nil
	}
	return nil, fmt.Errorf("line %d: unsupported tag %s", n.Line, n.ShortTag())
}
