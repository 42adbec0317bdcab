// Package skillgraph provides a semantic relationship engine for multi-tenant
// skill catalogs.
//
// The engine stores versioned embedding vectors for catalog artifacts, derives
// a thresholded K-nearest-neighbor similarity graph per organization, detects
// communities with Louvain modularity optimization, exports the resulting
// topology for visualization, and serves hybrid lexical+semantic search fused
// with Reciprocal Rank Fusion. Every read path applies a single visibility
// predicate so private artifacts never leak across tenants or principals.
//
// # Basic Usage
//
// Create an engine over a store driver:
//
//	st, err := store.NewSQLiteStore("./skillgraph.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	engine, err := skillgraph.New(st, skillgraph.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
// # Embeddings
//
// The ingestion pipeline pushes one vector per artifact whenever content
// changes; the engine never generates embeddings itself:
//
//	err = engine.UpsertEmbedding(ctx, "artifact-1", vec,
//		"text-embedding-3-small", "1", types.InputHashOf(content))
//
// # Community Detection
//
//	result, err := engine.DetectCommunities(ctx, "org-1")
//	if result.Skipped != "" {
//		// Not enough data yet; the previous partition is untouched.
//	}
//
// # Search
//
//	results, err := engine.Search(ctx, "org-1", "deploy kubernetes",
//		queryEmbedding, "principal-1", 10)
//
// Passing a nil query embedding degrades to lexical-only ranking.
package skillgraph
