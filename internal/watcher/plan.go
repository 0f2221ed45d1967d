package watcher

import (
	"path/filepath"
	"sort"
	"sync"
)

// Inputs is the part of the source loader a Planner needs.
type Inputs interface {
	// Inputs lists the shared files every page depends on.
	Inputs() []string
	// PageOf maps a content file name to its page number.
	PageOf(name string) (int, bool)
	ContentPath(page int) string
}

// Plan is the set of pages a batch of changes invalidates.
type Plan struct {
	Pages []int
	// Full is set when a shared input changed and every selected page
	// needs converting again.
	Full bool
}

// Empty reports whether the changes touch no selected page.
func (p Plan) Empty() bool { return len(p.Pages) == 0 }

// Planner maps change events to the pages they affect.
type Planner struct {
	inputs   Inputs
	selected map[int]bool
	all      []int

	mu    sync.Mutex
	known map[string]bool
}

// NewPlanner creates a planner restricted to the selected pages.
func NewPlanner(inputs Inputs, pages []int) *Planner {
	p := &Planner{
		inputs:   inputs,
		selected: make(map[int]bool, len(pages)),
		known:    make(map[string]bool),
	}
	for _, page := range pages {
		if !p.selected[page] {
			p.selected[page] = true
			p.all = append(p.all, page)
		}
	}
	sort.Ints(p.all)
	p.refresh()
	return p
}

// refresh adds the current shared inputs to the known set. Files are never
// forgotten so that deleting an asset still triggers a full run.
func (p *Planner) refresh() {
	for _, path := range p.inputs.Inputs() {
		p.known[absPath(path)] = true
	}
}

// Plan returns the pages affected by events.
func (p *Planner) Plan(events []ChangeEvent) Plan {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refresh()

	pages := make(map[int]bool)
	for _, event := range events {
		path := absPath(event.Path)
		if p.known[path] {
			return Plan{Pages: append([]int(nil), p.all...), Full: true}
		}
		page, ok := p.inputs.PageOf(path)
		if !ok || !p.selected[page] {
			continue
		}
		if absPath(p.inputs.ContentPath(page)) != path {
			continue
		}
		pages[page] = true
	}

	plan := Plan{Pages: make([]int, 0, len(pages))}
	for page := range pages {
		plan.Pages = append(plan.Pages, page)
	}
	sort.Ints(plan.Pages)
	return plan
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
