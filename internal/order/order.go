// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package order implements phase 3, Operation Ordering (spec.md §4.5): a
// post-order DFS of the inheritance tree, children visited in manifest
// order, producing the node sequence phase 4 composes over.
package order

import "infra.chromium.org/commonrepo/internal/tree"

// OperationOrder is the node sequence phase 4 iterates, base first,
// override last — the synthetic local root is always the final entry.
type OperationOrder []*tree.RepoNode

// Build returns the OperationOrder for t: a post-order DFS starting at
// t.Root, skipping any node already visited (spec.md: "should never
// trigger given §4.3" — the tree's own cycle detection already rejects
// repeated (url, ref) pairs along a path, so this is a defensive guard,
// not a load-bearing dedup) and omitting CycleStub nodes, which were
// never fetched and carry no content to compose.
func Build(t *tree.RepoTree) OperationOrder {
	var out OperationOrder
	visited := map[*tree.RepoNode]bool{}
	visit(t.Root, &out, visited)
	return out
}

func visit(node *tree.RepoNode, out *OperationOrder, visited map[*tree.RepoNode]bool) {
	if visited[node] || node.CycleStub {
		return
	}
	visited[node] = true
	for _, child := range node.Children {
		visit(child, out, visited)
	}
	*out = append(*out, node)
}
