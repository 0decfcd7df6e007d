package flows

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/vectable"
	"github.com/hupe1980/vectable/rerank"
)

const (
	// TableName is the table every flow (re)creates.
	TableName = "food_table"

	// QueryText is embedded as the query vector of every flow.
	QueryText = "a sweet fruit to eat"

	// HybridText is the full-text half of the hybrid query.
	HybridText = "apple"
)

// Food returns the sample rows, without vectors.
func Food() []vectable.Record {
	return []vectable.Record{
		{ID: 1, Text: "Cherry", Type: "fruit"},
		{ID: 2, Text: "Carrot", Type: "vegetable"},
		{ID: 3, Text: "Potato", Type: "vegetable"},
		{ID: 4, Text: "Apple", Type: "fruit"},
		{ID: 5, Text: "Banana", Type: "fruit"},
	}
}

// embedRows fills in the vector of every row from its text.
func embedRows(ctx context.Context, env *Env, rows []vectable.Record) ([]vectable.Record, error) {
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Text
	}
	vecs, err := env.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed rows: %w", err)
	}
	out := make([]vectable.Record, len(rows))
	for i, r := range rows {
		r.Vector = vecs[i]
		out[i] = r
	}
	return out, nil
}

func embedQuery(ctx context.Context, env *Env) ([]float32, error) {
	vecs, err := env.Embedder.Embed(ctx, []string{QueryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vecs[0], nil
}

func searchFood(ctx context.Context, tbl *vectable.Table, query []float32) ([]vectable.Row, error) {
	return tbl.Search(query).Select("id", "text", "type").Limit(2).ToArray(ctx)
}

// Basic creates the table and runs one similarity search.
func Basic(ctx context.Context, env *Env) ([]vectable.Row, error) {
	rows, err := embedRows(ctx, env, Food())
	if err != nil {
		return nil, err
	}
	tbl, err := env.DB.CreateTable(ctx, TableName, rows, vectable.WithMode(vectable.CreateModeOverwrite))
	if err != nil {
		return nil, err
	}

	query, err := embedQuery(ctx, env)
	if err != nil {
		return nil, err
	}
	results, err := searchFood(ctx, tbl, query)
	if err != nil {
		return nil, err
	}
	printRows(env, results)
	return results, nil
}

// Hybrid builds a vector and a full-text index, waits for both and runs a
// filtered, reranked hybrid query.
func Hybrid(ctx context.Context, env *Env) ([]vectable.Row, error) {
	rows, err := embedRows(ctx, env, Food())
	if err != nil {
		return nil, err
	}
	tbl, err := env.DB.CreateTable(ctx, TableName, rows, vectable.WithMode(vectable.CreateModeOverwrite))
	if err != nil {
		return nil, err
	}

	if err := tbl.CreateIndex(ctx, "vector", vectable.IVFPQ(vectable.MetricCosine)); err != nil {
		return nil, err
	}
	if err := tbl.CreateIndex(ctx, "text", vectable.FTS()); err != nil {
		return nil, err
	}
	wait := append(slices.Clone(env.Wait), vectable.WithProgress(func(int, int) {
		fmt.Fprintln(env.Out, "Indexing...")
	}))
	if err := tbl.WaitForIndices(ctx, 2, wait...); err != nil {
		return nil, err
	}

	query, err := embedQuery(ctx, env)
	if err != nil {
		return nil, err
	}
	results, err := tbl.Query().
		NearestTo(query).
		FullTextSearch(HybridText).
		Where("type = 'fruit'").
		Rerank(rerank.NewRRF(rerank.DefaultRRFK)).
		Select("text").
		Limit(1).
		ToArray(ctx)
	if err != nil {
		return nil, err
	}
	printRows(env, results)
	return results, nil
}

// VersioningReport records what the versioning flow observed.
type VersioningReport struct {
	InitialRows int
	Before      uint64
	BeforeRows  []vectable.Row

	AddedRows int
	After     uint64
	AfterRows []vectable.Row

	CheckedOut   uint64
	RestoredRows []vectable.Row
}

// Versioning creates the table with two rows, appends the rest and checks
// the first version out again.
func Versioning(ctx context.Context, env *Env) (*VersioningReport, error) {
	rows, err := embedRows(ctx, env, Food())
	if err != nil {
		return nil, err
	}
	query, err := embedQuery(ctx, env)
	if err != nil {
		return nil, err
	}

	var report VersioningReport
	tbl, err := env.DB.CreateTable(ctx, TableName, rows[:2], vectable.WithMode(vectable.CreateModeOverwrite))
	if err != nil {
		return nil, err
	}
	if report.InitialRows, err = tbl.CountRows(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintln(env.Out, "Number of rows in table:", report.InitialRows)

	if report.BeforeRows, err = searchFood(ctx, tbl, query); err != nil {
		return nil, err
	}
	if report.Before, err = tbl.Version(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintln(env.Out, "Table version:", report.Before)
	printRows(env, report.BeforeRows)

	fmt.Fprintln(env.Out, "Adding more data")
	if err := tbl.Add(ctx, rows[2:]); err != nil {
		return nil, err
	}
	if report.AddedRows, err = tbl.CountRows(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintln(env.Out, "Number of rows in table:", report.AddedRows)
	if report.AfterRows, err = searchFood(ctx, tbl, query); err != nil {
		return nil, err
	}
	if report.After, err = tbl.Version(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintln(env.Out, "Table version:", report.After)
	printRows(env, report.AfterRows)

	fmt.Fprintln(env.Out, "Reverting to previous version")
	if err := tbl.Checkout(ctx, report.Before); err != nil {
		return nil, err
	}
	if report.CheckedOut, err = tbl.Version(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintln(env.Out, "Table version:", report.CheckedOut)
	if report.RestoredRows, err = searchFood(ctx, tbl, query); err != nil {
		return nil, err
	}
	printRows(env, report.RestoredRows)
	return &report, nil
}

func printRows(env *Env, rows []vectable.Row) {
	for i, row := range rows {
		fmt.Fprintf(env.Out, "  %d. %s\n", i+1, formatRow(row))
	}
}

// formatRow renders a row as key=value pairs in key order.
func formatRow(row vectable.Row) string {
	keys := slices.Sorted(maps.Keys(row))
	parts := make([]string, len(keys))
	for i, k := range keys {
		switch v := row[k].(type) {
		case float32:
			parts[i] = fmt.Sprintf("%s=%.4f", k, v)
		case string:
			parts[i] = fmt.Sprintf("%s=%q", k, v)
		default:
			parts[i] = fmt.Sprintf("%s=%v", k, v)
		}
	}
	return strings.Join(parts, " ")
}
