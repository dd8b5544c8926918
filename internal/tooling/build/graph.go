// Package build implements the Vela build pipeline driver: the module
// dependency graph, the content-addressed build cache, and the parallel
// level-by-level executor.
package build

import (
	"fmt"
	"strings"
)

// ModuleID is an opaque index into the build graph's module arena
type ModuleID int

// ModuleState tracks a module through the build lifecycle
type ModuleState int

const (
	// StateUnseen means the module has not been scheduled.
	StateUnseen ModuleState = iota
	// StateQueued means the module is waiting on its level.
	StateQueued
	// StateCompiling means a worker is compiling the module.
	StateCompiling
	// StateCompiled means compilation (or a cache hit) succeeded.
	StateCompiled
	// StateFailed means compilation failed.
	StateFailed
)

// String returns the state name.
func (s ModuleState) String() string {
	switch s {
	case StateUnseen:
		return "unseen"
	case StateQueued:
		return "queued"
	case StateCompiling:
		return "compiling"
	case StateCompiled:
		return "compiled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Module is one source file in the build graph
type Module struct {
	ID           ModuleID
	Path         string
	State        ModuleState
	Dependencies []ModuleID
	Fingerprint  string // content hash combined with dependency fingerprints, set during execution
}

// Graph is the build dependency graph. Modules live in an append-only
// arena addressed by ModuleID; an edge from -> to means from requires to
// compiled first.
type Graph struct {
	modules []*Module
	byPath  map[string]ModuleID
}

// NewGraph creates an empty build graph
func NewGraph() *Graph {
	return &Graph{byPath: make(map[string]ModuleID)}
}

// AddModule adds a module for the given path, or returns the existing id
// when the path is already present.
func (g *Graph) AddModule(path string) ModuleID {
	if id, ok := g.byPath[path]; ok {
		return id
	}
	id := ModuleID(len(g.modules))
	g.modules = append(g.modules, &Module{ID: id, Path: path, State: StateUnseen})
	g.byPath[path] = id
	return id
}

// AddDependency records that from requires to compiled first. Duplicate
// edges are ignored.
func (g *Graph) AddDependency(from, to ModuleID) {
	mod := g.modules[from]
	for _, dep := range mod.Dependencies {
		if dep == to {
			return
		}
	}
	mod.Dependencies = append(mod.Dependencies, to)
}

// Module returns the module for an id.
func (g *Graph) Module(id ModuleID) *Module {
	if int(id) < 0 || int(id) >= len(g.modules) {
		return nil
	}
	return g.modules[id]
}

// Lookup returns the module id for a path.
func (g *Graph) Lookup(path string) (ModuleID, bool) {
	id, ok := g.byPath[path]
	return id, ok
}

// Modules returns the module arena in id order.
func (g *Graph) Modules() []*Module {
	return g.modules
}

// Len returns the number of modules.
func (g *Graph) Len() int {
	return len(g.modules)
}

// CycleError reports a dependency cycle. The build fails before any
// compilation is attempted.
type CycleError struct {
	Cycle []string // module paths along one cycle, first == last
}

// Error implements the error interface
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Levels computes the Kahn schedule: level 0 holds every module with no
// dependencies; each next level holds the modules whose dependencies are
// all in earlier levels. A cycle yields a CycleError naming one cycle.
// Within a level, modules appear in id order.
func (g *Graph) Levels() ([][]ModuleID, error) {
	remaining := make(map[ModuleID]int, len(g.modules))
	for _, m := range g.modules {
		remaining[m.ID] = len(m.Dependencies)
	}

	// dependents[d] lists modules that depend on d.
	dependents := make(map[ModuleID][]ModuleID)
	for _, m := range g.modules {
		for _, dep := range m.Dependencies {
			dependents[dep] = append(dependents[dep], m.ID)
		}
	}

	var levels [][]ModuleID
	placed := 0

	var current []ModuleID
	for _, m := range g.modules {
		if remaining[m.ID] == 0 {
			current = append(current, m.ID)
		}
	}

	for len(current) > 0 {
		levels = append(levels, current)
		placed += len(current)

		next := make(map[ModuleID]bool)
		for _, id := range current {
			for _, dependent := range dependents[id] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next[dependent] = true
				}
			}
		}

		current = nil
		for _, m := range g.modules {
			if next[m.ID] {
				current = append(current, m.ID)
			}
		}
	}

	if placed != len(g.modules) {
		return nil, &CycleError{Cycle: g.findCycle()}
	}
	return levels, nil
}

// findCycle walks the graph depth-first and extracts one cycle's paths.
func (g *Graph) findCycle() []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[ModuleID]int, len(g.modules))
	var stack []ModuleID
	var cycle []string

	var visit func(id ModuleID) bool
	visit = func(id ModuleID) bool {
		state[id] = inStack
		stack = append(stack, id)

		for _, dep := range g.modules[id].Dependencies {
			switch state[dep] {
			case inStack:
				// Found the cycle: slice the stack from the repeated node.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				for _, s := range stack[start:] {
					cycle = append(cycle, g.modules[s].Path)
				}
				cycle = append(cycle, g.modules[dep].Path)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, m := range g.modules {
		if state[m.ID] == unvisited && visit(m.ID) {
			break
		}
	}
	return cycle
}
