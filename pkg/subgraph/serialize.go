package subgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/orneryd/ideagraph/pkg/links"
	"github.com/orneryd/ideagraph/pkg/pool"
	"github.com/orneryd/ideagraph/pkg/storage"
)

// Canonical text form:
//
//	{
//	  "m":  {"0": {"matcher": "id", "data": "<idea id>", "options": {...}}, ...},
//	  "i":  {"0": "<idea id>", ...},
//	  "d":  [[1, <theoretical data>], ...],
//	  "e":  {"0": {"src": 0, "link": "type_of", "dst": 1, "options": {...}}, ...},
//	  "vc": 2,
//	  "ec": 1,
//	  "c":  false
//	}
//
// Object keys and "d" pairs are written in ascending numeric key order, so
// equal subgraphs stringify to equal text.

type vertexJSON struct {
	Matcher string        `json:"matcher"`
	Data    any           `json:"data"`
	Options VertexOptions `json:"options"`
}

type edgeJSON struct {
	Src     int         `json:"src"`
	Link    string      `json:"link"`
	Dst     int         `json:"dst"`
	Options EdgeOptions `json:"options"`
}

type subgraphJSON struct {
	M  map[string]vertexJSON `json:"m"`
	I  map[string]string     `json:"i"`
	D  [][2]json.RawMessage  `json:"d"`
	E  map[string]edgeJSON   `json:"e"`
	VC int                   `json:"vc"`
	EC int                   `json:"ec"`
	C  bool                  `json:"c"`
}

// Stringify returns the canonical text form of the subgraph.
func (sg *Subgraph) Stringify() (string, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	buf.WriteByte('{')

	buf.WriteString(`"m":`)
	vertices := sg.match.Snapshot()
	if err := writeObject(buf, sortedKeys(vertices), func(k int) any {
		v := vertices[k]
		return vertexJSON{Matcher: v.Matcher.String(), Data: v.Data, Options: v.Options}
	}); err != nil {
		return "", err
	}

	buf.WriteString(`,"i":`)
	ideas := sg.ideas.Snapshot()
	if err := writeObject(buf, sortedKeys(ideas), func(k int) any { return ideas[k] }); err != nil {
		return "", err
	}

	buf.WriteString(`,"d":[`)
	data := sg.data.Snapshot()
	for i, k := range sortedKeys(data) {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal([]any{k, data[k]})
		if err != nil {
			return "", fmt.Errorf("encoding data of vertex %d: %w", k, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')

	buf.WriteString(`,"e":`)
	if err := writeObject(buf, edgeKeys(sg.AllEdges()), func(k int) any {
		e, _ := sg.GetEdge(k)
		return edgeJSON{Src: e.Src, Link: e.Link.Name(), Dst: e.Dst, Options: e.Options}
	}); err != nil {
		return "", err
	}

	fmt.Fprintf(buf, `,"vc":%d,"ec":%d,"c":%t}`, sg.vertexCount, sg.edgeCount, sg.concrete)
	return buf.String(), nil
}

// MarshalJSON encodes the subgraph in its canonical text form.
func (sg *Subgraph) MarshalJSON() ([]byte, error) {
	s, err := sg.Stringify()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func writeObject(buf *bytes.Buffer, keys []int, value func(int) any) error {
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(value(k))
		if err != nil {
			return fmt.Errorf("encoding key %d: %w", k, err)
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(k)))
		buf.WriteByte(':')
		buf.Write(b)
	}
	buf.WriteByte('}')
	return nil
}

func edgeKeys(entries []EdgeEntry) []int {
	keys := make([]int, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// Parse rebuilds a subgraph from its canonical text form over store.
func Parse(store storage.Engine, text string) (*Subgraph, error) {
	var raw subgraphJSON
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if len(raw.M) != raw.VC || len(raw.E) != raw.EC {
		return nil, fmt.Errorf("%w: counts do not match tables", ErrInvalidFormat)
	}

	sg := New(store)
	for k := 0; k < raw.VC; k++ {
		v, ok := raw.M[strconv.Itoa(k)]
		if !ok {
			return nil, fmt.Errorf("%w: missing vertex %d", ErrInvalidFormat, k)
		}
		m, err := ParseMatcher(v.Matcher)
		if err != nil {
			return nil, fmt.Errorf("%w: vertex %d: %w", ErrInvalidFormat, k, err)
		}
		if _, err := sg.AddVertex(m, v.Data, v.Options); err != nil {
			return nil, fmt.Errorf("%w: vertex %d: %w", ErrInvalidFormat, k, err)
		}
	}

	for k := 0; k < raw.EC; k++ {
		e, ok := raw.E[strconv.Itoa(k)]
		if !ok {
			return nil, fmt.Errorf("%w: missing edge %d", ErrInvalidFormat, k)
		}
		link := links.Get(e.Link)
		if link == nil {
			return nil, fmt.Errorf("%w: edge %d: %w: %q", ErrInvalidFormat, k, ErrInvalidLink, e.Link)
		}
		if _, err := sg.AddEdge(e.Src, e.Dst, link, e.Options); err != nil {
			return nil, fmt.Errorf("%w: edge %d: %w", ErrInvalidFormat, k, err)
		}
	}

	ideaKeys := make([]string, 0, len(raw.I))
	for k := range raw.I {
		ideaKeys = append(ideaKeys, k)
	}
	sort.Strings(ideaKeys)
	for _, ks := range ideaKeys {
		k, err := strconv.Atoi(ks)
		if err != nil {
			return nil, fmt.Errorf("%w: binding key %q", ErrInvalidFormat, ks)
		}
		if err := sg.SetIdea(k, storage.IdeaID(raw.I[ks])); err != nil {
			return nil, fmt.Errorf("%w: binding %d: %w", ErrInvalidFormat, k, err)
		}
	}

	for _, pair := range raw.D {
		var k int
		if err := json.Unmarshal(pair[0], &k); err != nil {
			return nil, fmt.Errorf("%w: data key: %w", ErrInvalidFormat, err)
		}
		var data any
		if err := json.Unmarshal(pair[1], &data); err != nil {
			return nil, fmt.Errorf("%w: data of vertex %d: %w", ErrInvalidFormat, k, err)
		}
		if err := sg.SetData(k, data); err != nil {
			return nil, fmt.Errorf("%w: data of vertex %d: %w", ErrInvalidFormat, k, err)
		}
	}

	if sg.concrete != raw.C {
		return nil, fmt.Errorf("%w: concrete flag disagrees with bindings", ErrInvalidFormat)
	}
	return sg, nil
}
