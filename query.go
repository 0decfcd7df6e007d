package vectable

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/vectable/distance"
	"github.com/hupe1980/vectable/filter"
	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/index/ivfpq"
	"github.com/hupe1980/vectable/internal/fragment"
	"github.com/hupe1980/vectable/internal/manifest"
	"github.com/hupe1980/vectable/internal/rowset"
	"github.com/hupe1980/vectable/lexical"
	"github.com/hupe1980/vectable/lexical/bm25"
	"github.com/hupe1980/vectable/model"
	"github.com/hupe1980/vectable/rerank"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultLimit is the number of rows a query returns unless Limit is set.
	DefaultLimit = 10

	// minHybridCandidates is the minimum number of candidates each side of
	// a hybrid query retrieves before reranking.
	minHybridCandidates = 50
)

// Row is one query result keyed by column name.
type Row map[string]any

// Query is a fluent query builder. Build it with Table.Query or
// Table.Search and run it with ToArray.
//
// Example:
//
//	rows, err := tbl.Query().
//	    NearestToText("sweet fruit").
//	    FullTextSearch("apple").
//	    Where("type = 'fruit'").
//	    Rerank(rerank.NewRRF(60)).
//	    Select("text").
//	    Limit(1).
//	    ToArray(ctx)
type Query struct {
	t *Table

	vector      []float32
	vectorText  string
	textVector  bool
	ftsText     string
	ftsColumn   string
	where       string
	postfilter  bool
	reranker    rerank.Reranker
	columns     []string
	limit       int
	metric      *Metric
	nprobes     int
	refine      int
	withRowAddr bool
}

// Query starts a query over the version the handle reads.
func (t *Table) Query() *Query {
	return &Query{t: t, limit: DefaultLimit, ftsColumn: model.ColumnText}
}

// Search starts a nearest-neighbour query for vector.
func (t *Table) Search(vector []float32) *Query {
	return t.Query().NearestTo(vector)
}

// NearestTo ranks rows by distance to vector.
func (q *Query) NearestTo(vector []float32) *Query {
	q.vector = vector
	q.textVector = false
	return q
}

// NearestToText embeds text with the connection's embedder and ranks rows
// by distance to the result.
func (q *Query) NearestToText(text string) *Query {
	q.vectorText = text
	q.textVector = true
	q.vector = nil
	return q
}

// FullTextSearch ranks rows by BM25 relevance to text. It needs a
// full-text index on the searched column.
func (q *Query) FullTextSearch(text string) *Query {
	q.ftsText = text
	return q
}

// FullTextColumn selects the column searched by FullTextSearch.
// Default: "text".
func (q *Query) FullTextColumn(column string) *Query {
	q.ftsColumn = column
	return q
}

// Where restricts results to rows matching a filter expression.
// The filter is applied before retrieval unless Postfilter is set.
func (q *Query) Where(expr string) *Query {
	q.where = expr
	return q
}

// Postfilter applies the Where filter after retrieval. The query may then
// return fewer than Limit rows.
func (q *Query) Postfilter() *Query {
	q.postfilter = true
	return q
}

// Rerank sets the reranker that merges hybrid results. Default: RRF with k=60.
func (q *Query) Rerank(r rerank.Reranker) *Query {
	q.reranker = r
	return q
}

// Select restricts the returned columns. Score columns are always returned.
func (q *Query) Select(columns ...string) *Query {
	q.columns = columns
	return q
}

// Limit sets the maximum number of rows. Default: 10.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// DistanceType overrides the metric of a vector query. A vector index built
// with another metric is then not used.
func (q *Query) DistanceType(m Metric) *Query {
	q.metric = &m
	return q
}

// Nprobes sets how many IVF partitions a vector index probes.
// 0 probes all.
func (q *Query) Nprobes(n int) *Query {
	q.nprobes = n
	return q
}

// RefineFactor fetches limit*n candidates from a vector index and re-ranks
// them with exact distances.
func (q *Query) RefineFactor(n int) *Query {
	q.refine = n
	return q
}

// WithRowAddr adds the physical row address as column "_rowaddr".
func (q *Query) WithRowAddr() *Query {
	q.withRowAddr = true
	return q
}

func (q *Query) hasVector() bool { return q.vector != nil || q.textVector }

func (q *Query) kind() string {
	switch {
	case q.hasVector() && q.ftsText != "":
		return "hybrid"
	case q.hasVector():
		return "vector"
	case q.ftsText != "":
		return "fts"
	default:
		return "scan"
	}
}

// ToArray runs the query.
func (q *Query) ToArray(ctx context.Context) (rows []Row, err error) {
	start := time.Now()
	kind := q.kind()
	ctx, span := q.t.db.startSpan(ctx, "vectable.Query",
		attribute.String("table", q.t.name),
		attribute.String("kind", kind),
		attribute.Int("limit", q.limit),
	)
	defer func() {
		elapsed := time.Since(start)
		endSpan(span, err)
		q.t.db.metrics.RecordQuery(kind, elapsed, err)
		q.t.db.logger.LogQuery(ctx, q.t.name, kind, q.limit, len(rows), elapsed, err)
	}()

	rows, err = q.execute(ctx, kind)
	if err != nil {
		return nil, opError("query", q.t.name, err)
	}
	return rows, nil
}

// queryState is the resolved input of one execution.
type queryState struct {
	m      *manifest.Manifest
	frags  map[model.FragmentID]*fragment.Fragment
	order  []*fragment.Fragment
	expr   filter.Expr
	admit  index.Filter
	vector []float32
}

func (s *queryState) record(addr model.RowAddr) Record {
	return s.frags[addr.Fragment()].Records[addr.Offset()]
}

func (q *Query) execute(ctx context.Context, kind string) ([]Row, error) {
	if q.limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, q.limit)
	}
	m, err := q.t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := q.checkColumns(m); err != nil {
		return nil, err
	}

	st := &queryState{m: m}
	if q.where != "" {
		if st.expr, err = parseFilter(q.where, m); err != nil {
			return nil, err
		}
	}
	if q.hasVector() {
		if st.vector, err = q.queryVector(ctx, m); err != nil {
			return nil, err
		}
	}

	st.order, err = q.t.loadFragments(ctx, m)
	if err != nil {
		return nil, err
	}
	st.frags = make(map[model.FragmentID]*fragment.Fragment, len(st.order))
	allowed := rowset.New()
	for _, f := range st.order {
		st.frags[f.ID] = f
		if st.expr == nil || q.postfilter {
			allowed.AddFragment(f.ID, len(f.Records))
			continue
		}
		for i, r := range f.Records {
			if st.expr.Match(r) {
				allowed.Add(model.NewRowAddr(f.ID, uint32(i)))
			}
		}
	}
	st.admit = rowset.Contains(allowed)

	switch kind {
	case "vector":
		results, err := q.vectorSearch(ctx, st, q.limit)
		if err != nil {
			return nil, err
		}
		return q.project(st, q.postfilterResults(st, results), model.ColumnDistance), nil
	case "fts":
		results, err := q.ftsSearch(ctx, st, q.limit)
		if err != nil {
			return nil, err
		}
		return q.project(st, q.postfilterResults(st, results), model.ColumnScore), nil
	case "hybrid":
		n := max(2*q.limit, minHybridCandidates)
		vec, err := q.vectorSearch(ctx, st, n)
		if err != nil {
			return nil, err
		}
		fts, err := q.ftsSearch(ctx, st, n)
		if err != nil {
			return nil, err
		}
		r := q.reranker
		if r == nil {
			r = rerank.NewRRF(rerank.DefaultRRFK)
		}
		merged := q.postfilterResults(st, r.Rerank(vec, fts))
		return q.project(st, merged, model.ColumnRelevance), nil
	default:
		return q.scan(st), nil
	}
}

func (q *Query) checkColumns(m *manifest.Manifest) error {
	known := append(tableColumns(m), model.ColumnDistance, model.ColumnScore, model.ColumnRelevance, model.ColumnRowAddr)
	for _, c := range q.columns {
		if !slices.Contains(known, c) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
	}
	if q.ftsText != "" && !slices.Contains(tableColumns(m), q.ftsColumn) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, q.ftsColumn)
	}
	return nil
}

func (q *Query) queryVector(ctx context.Context, m *manifest.Manifest) ([]float32, error) {
	vec := q.vector
	if q.textVector {
		emb := q.t.db.embedder
		if emb == nil {
			return nil, fmt.Errorf("%w: text query without an embedder", ErrInvalidConfig)
		}
		vecs, err := emb.Embed(ctx, []string{q.vectorText})
		if err != nil {
			return nil, err
		}
		vec = vecs[0]
	}
	if len(vec) != m.Dim {
		return nil, &ErrDimensionMismatch{Expected: m.Dim, Actual: len(vec)}
	}
	return vec, nil
}

// vectorSearch returns the k closest admitted rows by ascending exact
// distance. Fragments the vector index does not cover are scanned.
func (q *Query) vectorSearch(ctx context.Context, st *queryState, k int) ([]index.SearchResult, error) {
	meta, idx, err := q.t.loadIndex(ctx, model.ColumnVector, manifest.IndexKindVector, q.metric)
	if err != nil {
		return nil, err
	}

	metric := MetricL2
	switch {
	case q.metric != nil:
		metric = *q.metric
	case meta != nil:
		metric = meta.Metric
	}
	dist, err := distance.Provider(metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var annResults []index.SearchResult
	if idx != nil {
		ann, ok := idx.(*ivfpq.Index)
		if !ok {
			return nil, fmt.Errorf("index %s: unexpected kind %v", meta.Name, idx.Kind())
		}
		candidates, err := ann.Search(st.vector, k*max(q.refine, 1), q.nprobes, st.admit)
		if err != nil {
			return nil, err
		}
		top := index.NewTopK(k)
		for _, c := range candidates {
			top.Push(index.SearchResult{Addr: c.Addr, Score: dist(st.vector, st.record(c.Addr).Vector)})
		}
		annResults = top.Results()
	}

	top := index.NewTopK(k)
	for _, f := range st.order {
		if meta != nil && meta.Covers(f.ID) {
			continue
		}
		for i, r := range f.Records {
			addr := model.NewRowAddr(f.ID, uint32(i))
			if st.admit(addr) {
				top.Push(index.SearchResult{Addr: addr, Score: dist(st.vector, r.Vector)})
			}
		}
	}
	return index.MergeSearchResults(annResults, top.Results(), k), nil
}

// ftsSearch returns the k most relevant admitted rows by descending BM25
// score. Fragments the full-text index does not cover are indexed on the fly.
func (q *Query) ftsSearch(ctx context.Context, st *queryState, k int) ([]index.SearchResult, error) {
	meta, idx, err := q.t.loadIndex(ctx, q.ftsColumn, manifest.IndexKindFullText, nil)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, fmt.Errorf("%w: no full-text index on %q", ErrIndexNotFound, q.ftsColumn)
	}
	lex, ok := idx.(lexical.Index)
	if !ok {
		return nil, fmt.Errorf("index %s: unexpected kind %v", meta.Name, idx.Kind())
	}

	results, err := lex.Search(q.ftsText, k, st.admit)
	if err != nil {
		return nil, err
	}

	uncovered := bm25.New()
	for _, f := range st.order {
		if meta.Covers(f.ID) {
			continue
		}
		for i, r := range f.Records {
			if err := uncovered.Add(model.NewRowAddr(f.ID, uint32(i)), columnText(r, q.ftsColumn)); err != nil {
				return nil, err
			}
		}
	}
	if uncovered.Len() == 0 {
		return results, nil
	}
	extra, err := uncovered.Search(q.ftsText, k, st.admit)
	if err != nil {
		return nil, err
	}
	results = append(results, extra...)
	index.SortDescending(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (q *Query) postfilterResults(st *queryState, results []index.SearchResult) []index.SearchResult {
	if st.expr != nil && q.postfilter {
		results = slices.DeleteFunc(results, func(r index.SearchResult) bool {
			return !st.expr.Match(st.record(r.Addr))
		})
	}
	if len(results) > q.limit {
		results = results[:q.limit]
	}
	return results
}

// scan returns admitted rows in storage order.
func (q *Query) scan(st *queryState) []Row {
	var rows []Row
	for _, f := range st.order {
		for i, r := range f.Records {
			addr := model.NewRowAddr(f.ID, uint32(i))
			if !st.admit(addr) || (q.postfilter && st.expr != nil && !st.expr.Match(r)) {
				continue
			}
			rows = append(rows, q.row(st, addr, "", 0))
			if len(rows) == q.limit {
				return rows
			}
		}
	}
	return rows
}

func (q *Query) project(st *queryState, results []index.SearchResult, scoreColumn string) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = q.row(st, r.Addr, scoreColumn, r.Score)
	}
	return rows
}

func (q *Query) row(st *queryState, addr model.RowAddr, scoreColumn string, score float32) Row {
	rec := st.record(addr)
	cols := q.columns
	if len(cols) == 0 {
		cols = tableColumns(st.m)
	}

	row := make(Row, len(cols)+2)
	for _, c := range cols {
		switch c {
		case model.ColumnDistance, model.ColumnScore, model.ColumnRelevance, model.ColumnRowAddr:
			continue
		case model.ColumnVector:
			row[c] = slices.Clone(rec.Vector)
		default:
			if v, ok := rec.Field(c); ok {
				row[c] = v
			} else if len(q.columns) > 0 {
				row[c] = nil
			}
		}
	}
	if scoreColumn != "" {
		row[scoreColumn] = score
	}
	if q.withRowAddr || slices.Contains(q.columns, model.ColumnRowAddr) {
		row[model.ColumnRowAddr] = uint64(addr)
	}
	return row
}
