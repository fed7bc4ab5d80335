// Package graph reconstructs a content's step tree from the flat records the
// placeholder storage system persists.
//
// Nodes live in a flat arena and reference parent, children and siblings by
// index, so the structure carries no pointer cycles. Building is two passes:
// the first creates the arena and groups children by parent, the second sorts
// each child list by stored position and links previous/next siblings at
// every level. Lookup by a node's stable id is O(1), as is answering "what
// follows this node in tree order".
package graph

import (
	"sort"

	"github.com/chainpress/chainpress/pkg/models"
)

// None marks an absent node reference in the arena.
const None = -1

// Node is one vertex of the reassembled step tree.
type Node struct {
	Index   int
	ID      string
	Slot    string
	Kind    models.StepKind
	Config  map[string]any
	Comment string

	Parent      int
	Children    []int
	PrevSibling int
	NextSibling int
}

// Graph is the reassembled step tree of one content, covering all slots.
type Graph struct {
	nodes []Node
	byID  map[string]int
	roots map[string][]int
}

// Build reassembles the given step records. Records may arrive in any order.
func Build(records []*models.StepRecord) *Graph {
	g := &Graph{
		nodes: make([]Node, 0, len(records)),
		byID:  make(map[string]int, len(records)),
		roots: make(map[string][]int),
	}

	positions := make([]int, 0, len(records))

	for _, record := range records {
		index := len(g.nodes)
		g.nodes = append(g.nodes, Node{
			Index:       index,
			ID:          record.ID,
			Slot:        record.Slot,
			Kind:        record.Kind,
			Config:      record.Config,
			Comment:     record.Comment,
			Parent:      None,
			PrevSibling: None,
			NextSibling: None,
		})
		positions = append(positions, record.Position)
		g.byID[record.ID] = index
	}

	for i, record := range records {
		if record.ParentID == nil {
			g.roots[record.Slot] = append(g.roots[record.Slot], i)

			continue
		}

		parent, ok := g.byID[*record.ParentID]
		if !ok {
			// Orphaned record; treat as a root of its slot.
			g.roots[record.Slot] = append(g.roots[record.Slot], i)

			continue
		}

		g.nodes[i].Parent = parent
		g.nodes[parent].Children = append(g.nodes[parent].Children, i)
	}

	byPosition := func(list []int) {
		sort.SliceStable(list, func(a, b int) bool {
			return positions[list[a]] < positions[list[b]]
		})
	}

	for slot := range g.roots {
		byPosition(g.roots[slot])
		linkSiblings(g, g.roots[slot])
	}

	for i := range g.nodes {
		byPosition(g.nodes[i].Children)
		linkSiblings(g, g.nodes[i].Children)
	}

	return g
}

func linkSiblings(g *Graph, siblings []int) {
	for i, index := range siblings {
		if i > 0 {
			g.nodes[index].PrevSibling = siblings[i-1]
		}

		if i < len(siblings)-1 {
			g.nodes[index].NextSibling = siblings[i+1]
		}
	}
}

// ByID returns the node with the given stable id, or nil.
func (g *Graph) ByID(id string) *Node {
	index, ok := g.byID[id]
	if !ok {
		return nil
	}

	return &g.nodes[index]
}

// Node returns the node at the given arena index, or nil.
func (g *Graph) Node(index int) *Node {
	if index < 0 || index >= len(g.nodes) {
		return nil
	}

	return &g.nodes[index]
}

// Roots returns the top-level nodes of a slot in tree order.
func (g *Graph) Roots(slot string) []*Node {
	indexes := g.roots[slot]

	nodes := make([]*Node, len(indexes))
	for i, index := range indexes {
		nodes[i] = &g.nodes[index]
	}

	return nodes
}

// First returns the first top-level node of a slot, or nil when the slot is
// empty. This is the node a trigger's initial action addresses.
func (g *Graph) First(slot string) *Node {
	roots := g.roots[slot]
	if len(roots) == 0 {
		return nil
	}

	return &g.nodes[roots[0]]
}

// ChildNodes returns a node's children in tree order.
func (g *Graph) ChildNodes(n *Node) []*Node {
	children := make([]*Node, len(n.Children))
	for i, index := range n.Children {
		children[i] = &g.nodes[index]
	}

	return children
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}
