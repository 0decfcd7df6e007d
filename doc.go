// Package vectable is an embedded, versioned vector table store.
//
// Tables hold records with an id, text, a type tag, a vector and optional
// metadata columns. Every create, append and restore commits a new immutable
// version, and a handle can check out any earlier version without affecting
// other readers.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := vectable.Connect(ctx, "memory://", vectable.WithEmbedder(embed.NewHash()))
//	defer db.Close()
//
//	tbl, _ := db.CreateTable(ctx, "words", []vectable.Record{
//	    {ID: 1, Text: "apple", Type: "fruit"},
//	    {ID: 2, Text: "carrot", Type: "vegetable"},
//	}, vectable.WithMode(vectable.CreateModeOverwrite))
//
//	rows, _ := tbl.Query().NearestToText("green apple").Select("id", "text").Limit(1).ToArray(ctx)
//
// # Storage
//
// The connection URI selects the blob store:
//
//	memory://
//	file:///var/lib/vectable   (or a bare path)
//	s3://bucket/prefix?commit_table=commits
//	minio://localhost:9000/bucket/prefix?secure=false
//
// Data files are written once. A version becomes visible only when its
// manifest is committed with a compare-and-swap on the version number.
//
// # Indexes
//
// CreateIndex schedules an IVF-PQ vector index or a BM25 full-text index on
// the connection's background workers. Use WaitForIndices before relying on
// an index. Vector queries scan rows an index does not cover, so results stay
// complete while a build is running.
package vectable
