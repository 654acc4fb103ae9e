package analysis

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// DynamicAnalysis carries per-edge execution counters recorded by a traced
// run, keyed by source block start then destination block start.
type DynamicAnalysis struct {
	Edges          map[int]map[int]uint64
	EdgeCounterMax uint64
}

// BuildDynamicAnalysis folds raw taken-edge counters (keyed by source
// instruction pc) onto basic blocks.
func (a *Analysis) BuildDynamicAnalysis(raw map[int]map[int]uint64) *DynamicAnalysis {
	dyn := &DynamicAnalysis{Edges: make(map[int]map[int]uint64)}
	for sourcePC, targets := range raw {
		blockStart, ok := a.blockStartContaining(sourcePC)
		if !ok {
			continue
		}
		inner := dyn.Edges[blockStart]
		if inner == nil {
			inner = make(map[int]uint64)
			dyn.Edges[blockStart] = inner
		}
		for target, counter := range targets {
			inner[target] += counter
			if inner[target] > dyn.EdgeCounterMax {
				dyn.EdgeCounterMax = inner[target]
			}
		}
	}
	return dyn
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return strings.ReplaceAll(s, "\"", "&quot;")
}

const maxCellContentLength = 15

func (a *Analysis) emitCfgNode(w io.Writer, dyn *DynamicAnalysis, functionStart, functionEnd int, aliasNodes map[int]bool, cfgNodeStart int) error {
	cfgNode := a.CfgNodes[cfgNodeStart]
	var rows strings.Builder
	for _, insn := range a.Instructions[cfgNode.InsnStart:cfgNode.InsnEnd] {
		desc := ebpf.Disasm(insn)
		if splitIndex := strings.IndexByte(desc, ' '); splitIndex >= 0 {
			rest := desc[splitIndex+1:]
			if len(rest) > maxCellContentLength+1 {
				rest = rest[:maxCellContentLength] + "…"
			}
			fmt.Fprintf(&rows, "<tr><td align=\"left\">%s</td><td align=\"left\">%s</td></tr>",
				htmlEscape(desc[:splitIndex]), htmlEscape(rest))
		} else {
			fmt.Fprintf(&rows, "<tr><td align=\"left\">%s</td></tr>", htmlEscape(desc))
		}
	}
	if _, err := fmt.Fprintf(w, "    lbb_%d [label=<<table border=\"0\" cellborder=\"0\" cellpadding=\"3\">%s</table>>];\n",
		cfgNodeStart, rows.String()); err != nil {
		return err
	}
	if dyn != nil {
		for destination := range dyn.Edges[cfgNodeStart] {
			if destination < functionStart || destination >= functionEnd {
				aliasNodes[destination] = true
			}
		}
	}
	for _, child := range cfgNode.DominatedChildren {
		if err := a.emitCfgNode(w, dyn, functionStart, functionEnd, aliasNodes, child); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analysis) sortedFunctionStarts() []int {
	starts := make([]int, 0, len(a.Functions))
	for start := range a.Functions {
		starts = append(starts, start)
	}
	sort.Ints(starts)
	return starts
}

// VisualizeGraphically emits a Graphviz DOT rendering of the analyzed
// program: one subgraph per function, dominance as dotted edges, control
// flow as solid edges, with optional dynamic-analysis edge labels.
func (a *Analysis) VisualizeGraphically(w io.Writer, dyn *DynamicAnalysis) error {
	if _, err := fmt.Fprint(w, `digraph {
  graph [
    rankdir=LR;
    concentrate=True;
    style=filled;
    color=lightgrey;
  ];
  node [
    shape=rect;
    style=filled;
    fillcolor=white;
    fontname="Courier New";
  ];
  edge [
    fontname="Courier New";
  ];
`); err != nil {
		return err
	}
	functionStarts := a.sortedFunctionStarts()
	lastPC := a.Instructions[len(a.Instructions)-1].PC
	for i, functionStart := range functionStarts {
		functionEnd := lastPC + 1
		if i+1 < len(functionStarts) {
			functionEnd = functionStarts[i+1]
		}
		aliasNodes := make(map[int]bool)
		fmt.Fprintf(w, "  subgraph cluster_%d {\n", functionStart)
		fmt.Fprintf(w, "    label=%q;\n", htmlEscape(a.Functions[functionStart].Name))
		fmt.Fprintf(w, "    tooltip=lbb_%d;\n", functionStart)
		if err := a.emitCfgNode(w, dyn, functionStart, functionEnd, aliasNodes, functionStart); err != nil {
			return err
		}
		aliases := make([]int, 0, len(aliasNodes))
		for alias := range aliasNodes {
			aliases = append(aliases, alias)
		}
		sort.Ints(aliases)
		for _, alias := range aliases {
			fmt.Fprintf(w, "    alias_%d_lbb_%d [\n", functionStart, alias)
			fmt.Fprintf(w, "        label=lbb_%d;\n", alias)
			fmt.Fprintf(w, "        tooltip=lbb_%d;\n", alias)
			fmt.Fprintf(w, "        URL=\"#lbb_%d\";\n", alias)
			fmt.Fprintf(w, "    ];\n")
		}
		fmt.Fprintf(w, "  }\n")
	}
	functionIndex := 0
	functionStart := functionStarts[0]
	for _, cfgNodeStart := range a.sortedBlockStarts() {
		if functionIndex+1 < len(functionStarts) && functionStarts[functionIndex+1] == cfgNodeStart {
			functionIndex++
			functionStart = functionStarts[functionIndex]
		}
		functionEnd := lastPC + 1
		if functionIndex+1 < len(functionStarts) {
			functionEnd = functionStarts[functionIndex+1]
		}
		cfgNode := a.CfgNodes[cfgNodeStart]
		if cfgNodeStart != cfgNode.DominatorParent {
			fmt.Fprintf(w, "  lbb_%d -> lbb_%d [style=dotted; arrowhead=none];\n",
				cfgNodeStart, cfgNode.DominatorParent)
		}
		edges := make(map[int]uint64)
		for _, destination := range cfgNode.Destinations {
			edges[destination] = 0
		}
		if dyn != nil {
			for destination, counter := range dyn.Edges[cfgNodeStart] {
				edges[destination] = counter
			}
		}
		destinations := make([]int, 0, len(edges))
		var counterSum uint64
		for destination, counter := range edges {
			destinations = append(destinations, destination)
			counterSum += counter
		}
		sort.Ints(destinations)
		if counterSum == 0 && len(edges) > 0 {
			names := make([]string, len(destinations))
			for i, destination := range destinations {
				names[i] = fmt.Sprintf("lbb_%d", destination)
			}
			fmt.Fprintf(w, "  lbb_%d -> {%s};\n", cfgNodeStart, strings.Join(names, " "))
		} else if counterSum > 0 {
			for _, destination := range destinations {
				counter := edges[destination]
				fmt.Fprintf(w, "  lbb_%d -> ", cfgNodeStart)
				if destination >= functionStart && destination < functionEnd {
					fmt.Fprintf(w, "lbb_%d", destination)
				} else {
					fmt.Fprintf(w, "alias_%d_lbb_%d", functionStart, destination)
				}
				saturation := 0
				if counter > 0 {
					saturation = 1
				}
				fmt.Fprintf(w, " [label=\"%d\";color=\"%f 1.0 %d.0\"];\n",
					counter,
					float64(counter)/(float64(dyn.EdgeCounterMax)*3.0)+2.0/3.0,
					saturation)
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
