package analysis

import "sort"

// controlFlowGraphTarjan finds the strongly connected components and, as a
// by-product, a topological order over the DAG of components. The DFS is
// iterative: an explicit stack of (node, next edge index) pairs, so there
// is no host-stack recursion to overflow on adversarial programs.
func (a *Analysis) controlFlowGraphTarjan() {
	if len(a.CfgNodes) == 0 {
		return
	}
	type nodeState struct {
		cfgNode    int
		discovery  int
		lowlink    int
		sccID      int
		onSccStack bool
	}
	starts := a.sortedBlockStarts()
	nodes := make([]nodeState, len(starts))
	for v, start := range starts {
		// Temporarily park the dense index in SccID so destination
		// lookups during the DFS are O(1).
		a.CfgNodes[start].SccID = v
		nodes[v] = nodeState{cfgNode: start, discovery: unset, lowlink: unset, sccID: unset}
	}
	sccID := 0
	var sccStack []int
	discovered := 0
	nextV := 1
	recursionStack := [][2]int{{0, 0}}
dfs:
	for len(recursionStack) > 0 {
		v, edgeIndex := recursionStack[len(recursionStack)-1][0], recursionStack[len(recursionStack)-1][1]
		recursionStack = recursionStack[:len(recursionStack)-1]
		node := &nodes[v]
		if edgeIndex == 0 {
			node.discovery = discovered
			node.lowlink = discovered
			node.onSccStack = true
			sccStack = append(sccStack, v)
			discovered++
		}
		cfgNode := a.CfgNodes[node.cfgNode]
		for j := edgeIndex; j < len(cfgNode.Destinations); j++ {
			w := a.CfgNodes[cfgNode.Destinations[j]].SccID
			if nodes[w].discovery == unset {
				recursionStack = append(recursionStack, [2]int{v, j + 1})
				recursionStack = append(recursionStack, [2]int{w, 0})
				continue dfs
			} else if nodes[w].onSccStack && nodes[w].discovery < nodes[v].lowlink {
				nodes[v].lowlink = nodes[w].discovery
			}
		}
		if nodes[v].discovery == nodes[v].lowlink {
			indexInScc := 0
			for len(sccStack) > 0 {
				w := sccStack[len(sccStack)-1]
				sccStack = sccStack[:len(sccStack)-1]
				nodes[w].onSccStack = false
				nodes[w].sccID = sccID
				nodes[w].discovery = indexInScc
				indexInScc++
				if w == v {
					break
				}
			}
			sccID++
		}
		if len(recursionStack) > 0 {
			w := recursionStack[len(recursionStack)-1][0]
			if nodes[v].lowlink < nodes[w].lowlink {
				nodes[w].lowlink = nodes[v].lowlink
			}
		} else {
			for {
				if nextV == len(nodes) {
					break dfs
				}
				if nodes[nextV].discovery == unset {
					break
				}
				nextV++
			}
			recursionStack = append(recursionStack, [2]int{nextV, 0})
			nextV++
		}
	}
	for i := range nodes {
		cfgNode := a.CfgNodes[nodes[i].cfgNode]
		cfgNode.SccID = nodes[i].sccID
		cfgNode.IndexInScc = nodes[i].discovery
	}
	order := a.sortedBlockStarts()
	sort.SliceStable(order, func(i, j int) bool {
		return a.CompareOrder(order[i], order[j]) < 0
	})
	a.TopologicalOrder = order
}
