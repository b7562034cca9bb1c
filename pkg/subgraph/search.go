package subgraph

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/ideagraph/pkg/links"
	"github.com/orneryd/ideagraph/pkg/pool"
	"github.com/orneryd/ideagraph/pkg/storage"
)

// DefaultSearchConcurrency bounds parallel data fetches per expansion.
const DefaultSearchConcurrency = 8

// SearchOptions tune discovery search.
type SearchOptions struct {
	// MaxResults stops the search once this many concrete results were
	// found. Zero means unlimited.
	MaxResults int
	// Concurrency bounds parallel candidate data fetches.
	Concurrency int
	// Logger receives debug output about dead ends. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Search returns every concrete binding of sg's unbound vertices that the
// store supports. sg itself is not modified. A concrete input returns
// itself.
func Search(ctx context.Context, sg *Subgraph) ([]*Subgraph, error) {
	return SearchWithOptions(ctx, sg, SearchOptions{})
}

// SearchWithOptions is Search with explicit options.
func SearchWithOptions(ctx context.Context, sg *Subgraph, opts SearchOptions) ([]*Subgraph, error) {
	if sg.Concrete() {
		return []*Subgraph{sg}, nil
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultSearchConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &searcher{store: sg.store, opts: opts, log: opts.Logger}
	if err := s.run(ctx, sg.Copy()); err != nil {
		return nil, err
	}
	s.log.Debug("search finished", "results", len(s.results))
	return s.results, nil
}

type searcher struct {
	store   storage.Engine
	opts    SearchOptions
	log     *slog.Logger
	results []*Subgraph
}

// selection is the edge chosen for the next expansion.
type selection struct {
	edge    EdgeEntry
	from    storage.IdeaID // idea of the bound endpoint
	link    *links.Link    // walked from the bound endpoint
	free    int            // unbound vertex key
	ideas   []storage.IdeaID
	fetched bool
}

func (s *searcher) full() bool {
	return s.opts.MaxResults > 0 && len(s.results) >= s.opts.MaxResults
}

func (s *searcher) run(ctx context.Context, sg *Subgraph) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.full() {
			return nil
		}
		if sg.Concrete() {
			// The last binding may have closed edges no expansion walked.
			ok, err := s.verifyBound(ctx, sg)
			if err != nil {
				return err
			}
			if ok {
				s.results = append(s.results, sg)
			}
			return nil
		}

		sel, ok, err := s.selectEdge(ctx, sg)
		if err != nil || !ok {
			return err
		}

		matches, err := s.expand(ctx, sg, sel)
		if err != nil {
			return err
		}
		switch len(matches) {
		case 0:
			s.log.Debug("search dead end", "edge", sel.edge.Key, "vertex", sel.free)
			return nil
		case 1:
			sg.bind(sel.free, matches[0])
			sg.updateConcrete()
		default:
			for _, id := range matches {
				branch := sg.Copy()
				branch.bind(sel.free, id)
				branch.updateConcrete()
				if err := s.run(ctx, branch); err != nil {
					return err
				}
				if s.full() {
					return nil
				}
			}
			return nil
		}
	}
}

// selectEdge verifies edges with both endpoints bound and picks the next
// edge to expand: highest pref first, fewest branches on a tie. ok is false
// when this branch is a dead end.
func (s *searcher) selectEdge(ctx context.Context, sg *Subgraph) (*selection, bool, error) {
	if ok, err := s.verifyBound(ctx, sg); err != nil || !ok {
		return nil, false, err
	}

	var best *selection
	for _, e := range sg.AllEdges() {
		srcID, srcBound := sg.GetIdea(e.Src)
		dstID, dstBound := sg.GetIdea(e.Dst)
		if srcBound == dstBound {
			continue
		}

		cand := &selection{edge: e}
		if srcBound {
			cand.from, cand.link, cand.free = srcID, e.Link, e.Dst
		} else {
			cand.from, cand.link, cand.free = dstID, e.Link.Opposite(), e.Src
		}
		if v, _ := sg.GetMatch(cand.free); v.Options.Pointer {
			if _, ok, err := sg.pointerTarget(cand.free, sg.hasData); err != nil || !ok {
				continue
			}
		}

		switch {
		case best == nil || e.Options.Pref > best.edge.Options.Pref:
			best = cand
		case e.Options.Pref == best.edge.Options.Pref:
			if err := s.fetch(ctx, best); err != nil {
				return nil, false, err
			}
			if err := s.fetch(ctx, cand); err != nil {
				return nil, false, err
			}
			if len(cand.ideas) < len(best.ideas) {
				best = cand
			}
		}
	}
	if best == nil {
		s.log.Debug("search has no expandable edge")
		return nil, false, nil
	}
	return best, true, nil
}

// verifyBound checks every edge whose endpoints are both bound against the
// store.
func (s *searcher) verifyBound(ctx context.Context, sg *Subgraph) (bool, error) {
	for _, e := range sg.AllEdges() {
		srcID, srcBound := sg.GetIdea(e.Src)
		dstID, dstBound := sg.GetIdea(e.Dst)
		if !srcBound || !dstBound {
			continue
		}
		ok, err := s.verify(ctx, srcID, e.Edge, dstID)
		if err != nil {
			return false, err
		}
		if !ok {
			s.log.Debug("search edge rejected", "edge", e.Key)
			return false, nil
		}
	}
	return true, nil
}

// verify checks an edge whose endpoints are both bound.
func (s *searcher) verify(ctx context.Context, src storage.IdeaID, e Edge, dst storage.IdeaID) (bool, error) {
	ids, err := s.neighbours(ctx, src, e.Link, e.Options.Transitive)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == dst {
			return true, nil
		}
	}
	return false, nil
}

// fetch loads the candidate ideas of a selection once.
func (s *searcher) fetch(ctx context.Context, sel *selection) error {
	if sel.fetched {
		return nil
	}
	ids, err := s.neighbours(ctx, sel.from, sel.link, sel.edge.Options.Transitive)
	if err != nil {
		return err
	}
	sel.ideas, sel.fetched = ids, true
	return nil
}

// neighbours returns the ideas one hop away, or every idea reachable in one
// or more hops when transitive is set. Store failures count as no
// neighbours; only context errors are returned.
func (s *searcher) neighbours(ctx context.Context, from storage.IdeaID, link *links.Link, transitive bool) ([]storage.IdeaID, error) {
	if !transitive {
		return s.hop(ctx, from, link)
	}

	var out []storage.IdeaID
	seen := pool.GetIDSet()
	defer pool.PutIDSet(seen)
	frontier := []storage.IdeaID{from}
	for len(frontier) > 0 {
		var next []storage.IdeaID
		for _, id := range frontier {
			hop, err := s.hop(ctx, id, link)
			if err != nil {
				return nil, err
			}
			for _, n := range hop {
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = struct{}{}
				out = append(out, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return out, nil
}

func (s *searcher) hop(ctx context.Context, id storage.IdeaID, link *links.Link) ([]storage.IdeaID, error) {
	ids, err := s.store.Links(ctx, id, link)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.Debug("search link lookup failed", "idea", id, "link", link.Name(), "error", err)
		return nil, nil
	}
	return ids, nil
}

// expand filters the selection's candidates through the free vertex's
// matcher. Candidate data is fetched concurrently.
func (s *searcher) expand(ctx context.Context, sg *Subgraph, sel *selection) ([]storage.IdeaID, error) {
	if err := s.fetch(ctx, sel); err != nil {
		return nil, err
	}
	if len(sel.ideas) == 0 {
		return nil, nil
	}

	vertex, _ := sg.GetMatch(sel.free)
	payload, ok, err := sg.matchPayload(ctx, sel.free)
	if err != nil || !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.Debug("search pointer unresolved", "vertex", sel.free, "error", err)
		return nil, nil
	}

	if !vertex.Matcher.needsData() {
		var out []storage.IdeaID
		for _, id := range sel.ideas {
			if vertex.Matcher.Matches(id, payload) {
				out = append(out, id)
			}
		}
		return out, nil
	}

	keep := make([]bool, len(sel.ideas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, id := range sel.ideas {
		i, id := i, id
		g.Go(func() error {
			data, err := s.store.GetData(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.log.Debug("search candidate unreadable", "idea", id, "error", err)
				return nil
			}
			keep[i] = vertex.Matcher.Matches(data, payload)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []storage.IdeaID
	for i, id := range sel.ideas {
		if keep[i] {
			out = append(out, id)
		}
	}
	return out, nil
}
