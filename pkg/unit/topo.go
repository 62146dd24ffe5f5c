package unit

import "fmt"

// topoSort returns package names ordered so every dependency precedes its
// dependents, using Kahn's algorithm. It fails if the dependency graph
// contains a cycle, which the external build driver's own resolver should
// never produce; surfacing it here catches a malformed WorkspaceDescription
// rather than silently mis-deriving unit keys.
func topoSort(packages []PackageDescription) ([]string, error) {
	indegree := make(map[string]int, len(packages))
	dependents := make(map[string][]string, len(packages))
	names := make(map[string]bool, len(packages))

	for _, pkg := range packages {
		names[pkg.Name] = true
		if _, ok := indegree[pkg.Name]; !ok {
			indegree[pkg.Name] = 0
		}
	}
	for _, pkg := range packages {
		for _, dep := range pkg.DependencyNames {
			indegree[pkg.Name]++
			dependents[dep] = append(dependents[dep], pkg.Name)
		}
	}

	var queue []string
	for _, pkg := range packages {
		if indegree[pkg.Name] == 0 {
			queue = append(queue, pkg.Name)
		}
	}

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, dep := range dependents[n] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(names) {
		return nil, fmt.Errorf("dependency graph contains a cycle")
	}
	return order, nil
}
