/*
File Name:  Shortlist.go
Copyright:  2024 Cratenet s.r.o.
*/

package dht

import (
	"bytes"
)

// shortList sorts a list of arbitrary nodes by XOR distance to a comparator.
// Nodes at equal distance are ordered most-recently-seen first.
type shortList struct {
	// Nodes are the nodes to be compared
	Nodes []*Node

	// Comparator is the ID to compare to
	Comparator []byte
}

func newShortList(comparator []byte) *shortList {
	return &shortList{Comparator: comparator}
}

// AppendUniqueNodes adds the nodes to the list, skipping identifiers already present.
func (sl *shortList) AppendUniqueNodes(nodes ...*Node) {
nodesLoop:
	for _, nodeNew := range nodes {
		for _, node := range sl.Nodes {
			if bytes.Equal(node.ID, nodeNew.ID) {
				continue nodesLoop
			}
		}
		sl.Nodes = append(sl.Nodes, nodeNew)
	}
}

func (sl *shortList) Len() int {
	return len(sl.Nodes)
}

func (sl *shortList) Swap(i, j int) {
	sl.Nodes[i], sl.Nodes[j] = sl.Nodes[j], sl.Nodes[i]
}

func (sl *shortList) Less(i, j int) bool {
	switch bytes.Compare(Distance(sl.Nodes[i].ID, sl.Comparator), Distance(sl.Nodes[j].ID, sl.Comparator)) {
	case -1:
		return true
	case 1:
		return false
	}

	// Equal distance: the fresher node wins.
	return sl.Nodes[i].LastSeen.After(sl.Nodes[j].LastSeen)
}

// NodeFilterFunc is called to filter nodes based on the caller's choice.
type NodeFilterFunc func(node *Node) (accept bool)
