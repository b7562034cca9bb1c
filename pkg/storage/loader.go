// Package storage provides storage implementations and data import functionality.
//
// This file loads a whole graph document into any Engine. Documents are YAML
// (or JSON, which is valid YAML) and name ideas with local keys so links can
// refer to them before the store has assigned ids.
//
// Document Format:
//
//	ideas:
//	  - key: square
//	    data: {name: square, sides: 4}
//	  - key: rectangle
//	    data: {name: rectangle}
//	links:
//	  - {src: square, link: type_of, dst: rectangle}
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//	ids, err := storage.ImportFile(ctx, engine, "./graph.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(ids["square"])
package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/ideagraph/pkg/links"
)

// Document is the on-disk import format.
type Document struct {
	Ideas []DocumentIdea `yaml:"ideas" json:"ideas"`
	Links []DocumentLink `yaml:"links" json:"links"`
}

// DocumentIdea declares one idea by local key.
type DocumentIdea struct {
	Key  string `yaml:"key" json:"key"`
	Data any    `yaml:"data" json:"data"`
}

// DocumentLink connects two local keys.
type DocumentLink struct {
	Src  string `yaml:"src" json:"src"`
	Link string `yaml:"link" json:"link"`
	Dst  string `yaml:"dst" json:"dst"`
}

// ImportFile reads a graph document from path and loads it into engine.
func ImportFile(ctx context.Context, engine Engine, path string) (map[string]IdeaID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Import(ctx, engine, f)
}

// Import decodes a graph document from r and loads it into engine.
//
// Every link is validated before any idea is created, so a document with an
// unknown key or link name leaves the store untouched.
func Import(ctx context.Context, engine Engine, r io.Reader) (map[string]IdeaID, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding graph document: %w", err)
	}
	return ImportDocument(ctx, engine, &doc)
}

// ImportDocument loads an already decoded document.
func ImportDocument(ctx context.Context, engine Engine, doc *Document) (map[string]IdeaID, error) {
	declared := make(map[string]struct{}, len(doc.Ideas))
	for _, idea := range doc.Ideas {
		if idea.Key == "" {
			return nil, fmt.Errorf("%w: idea without key", ErrInvalidData)
		}
		if _, dup := declared[idea.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate idea key %q", ErrInvalidData, idea.Key)
		}
		declared[idea.Key] = struct{}{}
	}

	resolved := make([]*links.Link, len(doc.Links))
	for i, l := range doc.Links {
		link := links.Get(l.Link)
		if link == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLink, l.Link)
		}
		if _, ok := declared[l.Src]; !ok {
			return nil, fmt.Errorf("%w: unknown idea key %q", ErrInvalidData, l.Src)
		}
		if _, ok := declared[l.Dst]; !ok {
			return nil, fmt.Errorf("%w: unknown idea key %q", ErrInvalidData, l.Dst)
		}
		resolved[i] = link
	}

	ids := make(map[string]IdeaID, len(doc.Ideas))
	for _, idea := range doc.Ideas {
		id, err := engine.CreateIdea(ctx, yamlToJSON(idea.Data))
		if err != nil {
			return nil, fmt.Errorf("creating idea %q: %w", idea.Key, err)
		}
		ids[idea.Key] = id
	}

	for i, l := range doc.Links {
		if err := engine.AddLink(ctx, ids[l.Src], resolved[i], ids[l.Dst]); err != nil {
			return nil, fmt.Errorf("linking %s -%s-> %s: %w", l.Src, l.Link, l.Dst, err)
		}
	}

	return ids, nil
}

// yamlToJSON converts yaml.v3 decoded values into JSON-compatible ones.
// yaml.v3 already produces map[string]any for string-keyed mappings; maps
// with non-string keys are stringified.
func yamlToJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = yamlToJSON(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = yamlToJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = yamlToJSON(val)
		}
		return out
	default:
		return v
	}
}
