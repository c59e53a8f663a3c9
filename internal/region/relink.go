package region

import (
	"fmt"
	"sort"
)

// LinkProblem classifies a parent reference that could not be restored.
type LinkProblem int

const (
	// Unresolved means no region with the referenced parent id exists.
	Unresolved LinkProblem = iota
	// Circular means linking would create an inheritance cycle.
	Circular
)

func (p LinkProblem) String() string {
	if p == Circular {
		return "circular"
	}
	return "unresolved"
}

// LinkError describes one parent reference dropped by RelinkParents.
type LinkError struct {
	RegionID string
	ParentID string
	Problem  LinkProblem
}

func (e *LinkError) Error() string {
	if e.Problem == Circular {
		return fmt.Sprintf("circular inheritance: cannot set parent of %q to %q", e.RegionID, e.ParentID)
	}
	return fmt.Sprintf("unknown parent %q of region %q", e.ParentID, e.RegionID)
}

// RelinkParents resolves pending parent ids (child id -> parent id) against
// byID once every region of a world exists. References that cannot be linked
// are left unset and reported; they never stop the remaining links.
func RelinkParents(byID map[string]*Region, pending map[string]string) []*LinkError {
	children := make([]string, 0, len(pending))
	for id := range pending {
		children = append(children, id)
	}
	sort.Strings(children)

	var problems []*LinkError
	for _, childID := range children {
		parentID := pending[childID]
		child, ok := byID[childID]
		if !ok {
			continue
		}
		parent, ok := byID[parentID]
		if !ok {
			problems = append(problems, &LinkError{RegionID: childID, ParentID: parentID, Problem: Unresolved})
			continue
		}
		if err := child.SetParent(parent); err != nil {
			problems = append(problems, &LinkError{RegionID: childID, ParentID: parentID, Problem: Circular})
		}
	}
	return problems
}
