package qufirewall

import "strings"

// ReorderResult reports what a reorder changed. Skipped counts allow-list
// addresses that already had a rule and were reused, not ignored entries.
type ReorderResult struct {
	Added   int
	Skipped int
}

// Reorder builds a new list that starts with one rule per distinct allow-list
// address, in allow-list order, followed by the remaining items in their
// original relative order.
//
// Addresses are matched against trimmed string src_ip values. The first
// matching rule is reused with its non-id fields untouched; later rules for
// the same address are dropped. Addresses without a match get a rule
// synthesized from tmpl. Passthrough items are never matched, renumbered, or
// dropped.
//
// With keepIDs false every rule in the result is renumbered sequentially
// from 1. With keepIDs true reused rules keep their ids and synthesized
// rules are numbered from maxID+1 in allow-list order; maxID is the highest
// id the caller observed across the export's rule collections.
func Reorder(list *List, allow []string, tmpl Template, keepIDs bool, maxID int) (*List, ReorderResult) {
	order := make([]string, 0, len(allow))
	allowed := make(map[string]struct{}, len(allow))

	for _, addr := range allow {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}

		if _, seen := allowed[addr]; seen {
			continue
		}

		allowed[addr] = struct{}{}
		order = append(order, addr)
	}

	// First existing rule per allow-listed address, in original order.
	firstSeen := make(map[string]*Rule, len(order))

	for _, item := range list.Items {
		if item.Rule == nil {
			continue
		}

		addr, ok := item.Rule.SrcIP()
		if !ok {
			continue
		}

		key := strings.TrimSpace(addr)
		if _, listed := allowed[key]; !listed {
			continue
		}

		if _, dup := firstSeen[key]; dup {
			continue
		}

		firstSeen[key] = item.Rule
	}

	var res ReorderResult

	out := &List{Items: make([]Item, 0, len(list.Items)+len(order))}
	created := make([]*Rule, 0, len(order))

	for _, addr := range order {
		if rule, ok := firstSeen[addr]; ok {
			out.Items = append(out.Items, Item{Rule: rule})
			res.Skipped++

			continue
		}

		rule := NewRule(addr, 0, tmpl)
		created = append(created, rule)
		out.Items = append(out.Items, Item{Rule: rule})
		res.Added++
	}

	for _, item := range list.Items {
		if item.Rule == nil {
			out.Items = append(out.Items, item)

			continue
		}

		if addr, ok := item.Rule.SrcIP(); ok {
			if _, listed := allowed[strings.TrimSpace(addr)]; listed {
				// Already placed in the top block, or a duplicate of it.
				continue
			}
		}

		out.Items = append(out.Items, item)
	}

	if keepIDs {
		next := maxID + 1
		for _, rule := range created {
			rule.SetID(next)
			next++
		}

		return out, res
	}

	next := 1

	for _, item := range out.Items {
		if item.Rule == nil {
			continue
		}

		item.Rule.SetID(next)
		next++
	}

	return out, res
}
