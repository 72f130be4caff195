package stylesheet

import (
	"fmt"
	"sort"
)

// Order returns sheets so that every stylesheet comes after the stylesheets it
// references. refs maps a stylesheet key to the keys it references; keys outside
// sheets are ignored since they are registered before any stylesheet runs.
// Uses Kahn's algorithm with a sorted queue for deterministic output.
func Order(sheets []string, refs map[string][]string) ([]string, error) {
	if len(sheets) == 0 {
		return []string{}, nil
	}

	inSet := make(map[string]bool, len(sheets))
	for _, s := range sheets {
		inSet[s] = true
	}

	// referenced -> referencing
	graph := make(map[string][]string, len(sheets))
	inDegree := make(map[string]int, len(sheets))
	for _, s := range sheets {
		if _, ok := inDegree[s]; !ok {
			inDegree[s] = 0
		}
	}

	for _, s := range sheets {
		seen := make(map[string]bool)
		for _, dep := range refs[s] {
			if !inSet[dep] || seen[dep] {
				continue
			}
			seen[dep] = true
			graph[dep] = append(graph[dep], s)
			inDegree[s]++
		}
	}

	var queue []string
	for s, d := range inDegree {
		if d == 0 {
			queue = append(queue, s)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(inDegree))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		neighbors := graph[current]
		sort.Strings(neighbors)
		for _, n := range neighbors {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(inDegree) {
		var cyclic []string
		for s, d := range inDegree {
			if d > 0 {
				cyclic = append(cyclic, s)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("%w involving %v", ErrReferenceCycle, cyclic)
	}
	return result, nil
}
