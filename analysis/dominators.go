package analysis

// controlFlowGraphDominanceHierarchy computes immediate dominators with
// the Cooper-Harvey-Kennedy algorithm: iterate the topological order and
// intersect the predecessors' current dominators, walking both pointers up
// the tree using the topological order as comparison key, until a full
// pass makes no change. The entry block dominates itself.
func (a *Analysis) controlFlowGraphDominanceHierarchy() {
	if len(a.CfgNodes) == 0 {
		return
	}
	a.CfgNodes[a.Entrypoint].DominatorParent = a.Entrypoint
	for {
		terminate := true
		for _, b := range a.TopologicalOrder {
			cfgNode := a.CfgNodes[b]
			var dominatorParent int
			if len(cfgNode.Sources) == 0 {
				dominatorParent = b
			} else {
				dominatorParent = unset
				for _, source := range cfgNode.Sources {
					if a.CfgNodes[source].DominatorParent == unset {
						continue
					}
					if dominatorParent == unset {
						dominatorParent = source
						continue
					}
					p := source
					for dominatorParent != p {
						if a.CompareOrder(dominatorParent, p) > 0 {
							dominatorParent = a.CfgNodes[dominatorParent].DominatorParent
						} else {
							p = a.CfgNodes[p].DominatorParent
						}
					}
				}
			}
			if dominatorParent == unset {
				dominatorParent = b
			}
			if cfgNode.DominatorParent != dominatorParent {
				cfgNode.DominatorParent = dominatorParent
				terminate = false
			}
		}
		if terminate {
			break
		}
	}
	for _, b := range a.TopologicalOrder {
		cfgNode := a.CfgNodes[b]
		if b == cfgNode.DominatorParent {
			continue
		}
		dominator := a.CfgNodes[cfgNode.DominatorParent]
		dominator.DominatedChildren = append(dominator.DominatedChildren, b)
	}
}
