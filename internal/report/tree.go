package report

import (
	"fmt"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/fxnlabs/perfsuite/internal/registry"
)

// Tree lists the selected kernels by group with the variants and tunings
// each will run.
func Tree(reg *registry.Registry) treeprint.Tree {
	tree := treeprint.NewWithRoot("perfsuite")
	groups := make(map[string]treeprint.Tree)
	for _, k := range reg.Kernels() {
		b := k.Base()
		group, ok := groups[b.Group()]
		if !ok {
			group = tree.AddBranch(b.Group())
			groups[b.Group()] = group
		}

		var features []string
		for _, f := range b.Features().List() {
			features = append(features, f.String())
		}
		kb := group.AddMetaBranch(fmt.Sprintf("size %d, reps %d", b.ActualProblemSize(), b.RunReps()), b.Name())
		if len(features) > 0 {
			kb.AddMetaNode("features", strings.Join(features, ", "))
		}

		variants := reg.Variants(k)
		if len(variants) == 0 {
			kb.AddNode("no runnable variants")
			continue
		}
		for _, vid := range variants {
			var names []string
			for _, t := range reg.Tunings(k, vid) {
				names = append(names, t.Name)
			}
			kb.AddMetaNode(len(names), vid.String()+": "+strings.Join(names, " "))
		}
	}
	return tree
}
