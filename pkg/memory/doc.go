// Package memory persists agent memory as markdown files and indexes them
// into SQLite for hybrid keyword + vector search.
//
// Invariants:
// - Indexed chunks remain consistent with file content hashes.
// - The FTS and vector tables mirror the chunks table on every mutation.
// - Search merges keyword and vector retrieval with normalized weights.
// - Short-term entries live in dated daily files; MEMORY.md is append-only.
//
// Usage:
//
//	mgr := memory.NewManager(cfg, nil, logger)
//	if err := mgr.Initialize(ctx); err != nil { ... }
//	defer mgr.Close()
//	_ = mgr.AppendToShortTerm("met with the infra team about rollout")
//	results, _ := mgr.Search(ctx, "infra rollout", memory.SearchOptions{MaxResults: 5})
//	_ = results
package memory
