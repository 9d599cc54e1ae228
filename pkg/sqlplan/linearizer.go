package sqlplan

// Linearize rewrites root so every include step follows the steps that
// produce the rows it consumes, appending one IncludeLimit after each
// include and one IncludeUnionAll after the last pair. Steps of unrelated
// kinds keep their relative order ahead of the include block. Previously
// synthesized markers are discarded and rebuilt, so applying Linearize to
// its own output changes nothing.
//
// Linearize is total: a dependency cycle degrades to submission order
// instead of failing.
func Linearize(root RootExpression) RootExpression {
	var (
		rest    []TableExpression
		entries []includeEntry
	)
	for _, te := range root.Tables {
		switch te.Kind {
		case KindInclude:
			entries = append(entries, includeEntry{te: te, pos: len(entries)})
		case KindIncludeLimit, KindIncludeUnionAll:
			// rebuilt below
		default:
			rest = append(rest, te)
		}
	}
	if len(entries) == 0 {
		return RootExpression{Tables: rest}
	}

	ordered := orderIncludes(entries)

	out := make([]TableExpression, 0, len(rest)+2*len(ordered)+1)
	out = append(out, rest...)
	for _, e := range ordered {
		out = append(out, e.te, TableExpression{Kind: KindIncludeLimit})
	}
	out = append(out, TableExpression{Kind: KindIncludeUnionAll})
	return RootExpression{Tables: out}
}

type includeEntry struct {
	te  TableExpression
	pos int
}

// orderIncludes places entries one at a time. Each round prefers entries
// whose producers are all placed; among equally placeable entries, reversed
// includes go first, then submission order. When a cycle leaves nothing
// placeable the same comparator picks the next entry anyway.
func orderIncludes(entries []includeEntry) []includeEntry {
	n := len(entries)
	placed := make([]bool, n)
	out := make([]includeEntry, 0, n)

	dependsOn := func(i, j int) bool {
		consumer := entries[i].te.Include
		producer := entries[j].te.Include
		if consumer == nil || producer == nil || !consumer.Iterate {
			return false
		}
		return typesOverlap(consumer.Consumes(), producer.Produces())
	}

	isReady := func(i int) bool {
		for j := 0; j < n; j++ {
			if j == i || placed[j] {
				continue
			}
			if dependsOn(i, j) {
				return false
			}
		}
		return true
	}

	better := func(i, j int) bool {
		ri := entries[i].te.Include != nil && entries[i].te.Include.Reversed
		rj := entries[j].te.Include != nil && entries[j].te.Include.Reversed
		if ri != rj {
			return ri
		}
		return entries[i].pos < entries[j].pos
	}

	for len(out) < n {
		best := -1
		bestReady := false
		for i := 0; i < n; i++ {
			if placed[i] {
				continue
			}
			ready := isReady(i)
			switch {
			case best == -1:
				best, bestReady = i, ready
			case ready && !bestReady:
				best, bestReady = i, ready
			case ready == bestReady && better(i, best):
				best = i
			}
		}
		placed[best] = true
		out = append(out, entries[best])
	}
	return out
}

// typesOverlap treats nil as the unrestricted set.
func typesOverlap(consumed, produced []string) bool {
	if consumed == nil || produced == nil {
		return true
	}
	for _, c := range consumed {
		for _, p := range produced {
			if c == p {
				return true
			}
		}
	}
	return false
}
