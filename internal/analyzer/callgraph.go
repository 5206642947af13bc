package analyzer

import (
	"sort"

	"loopscan/internal/models"
)

type resolution struct {
	name           string
	resolved       bool
	definitionFile *string
}

// callKey pairs a loop call record with its call site. Chained calls such as
// "box.get().run()" start at the same position, so the callee is part of the
// key and sites sharing a key are matched in recording order.
type callKey struct {
	line, column int
	callee       string
}

// BuildCallGraph rebuilds doc.CallGraph from the call sites recorded in
// every function of the document and fills in the resolution of each loop's
// function_calls. It depends only on the recorded sites and definitions, so
// running it again over the same document gives the same graph.
func BuildCallGraph(doc *models.ScanDocument) {
	definitions := collectDefinitions(doc)

	calls := make(map[string]map[string]bool)
	calledBy := make(map[string]map[string]bool)
	inLoops := make(map[string]map[string]bool)
	ensure := func(name string) {
		if calls[name] == nil {
			calls[name] = make(map[string]bool)
			calledBy[name] = make(map[string]bool)
			inLoops[name] = make(map[string]bool)
		}
	}

	for _, path := range doc.SortedFiles() {
		for _, ref := range doc.SourceFiles[path].AllFunctions() {
			fn := ref.Function
			caller := fn.QualifiedName
			ensure(caller)

			sites := make(map[callKey][]resolution)
			for _, site := range fn.CallSites {
				r := resolve(site, definitions)
				if site.LoopID != nil {
					key := callKey{site.Location.Line, site.Location.Column, site.Callee}
					sites[key] = append(sites[key], r)
				}

				ensure(r.name)
				calls[caller][r.name] = true
				calledBy[r.name][caller] = true
				if site.LoopID != nil {
					inLoops[caller][r.name] = true
				}
			}

			models.WalkLoops(fn.Loops, func(l *models.Loop) {
				for i := range l.FunctionCalls {
					rec := &l.FunctionCalls[i]
					key := callKey{rec.Location.Line, rec.Location.Column, rec.Function}
					queue := sites[key]
					if len(queue) == 0 {
						continue
					}
					r := queue[0]
					sites[key] = queue[1:]
					rec.QualifiedName = r.name
					rec.Resolved = r.resolved
					rec.DefinitionFile = r.definitionFile
				}
			})
		}
	}

	graph := make(map[string]*models.CallGraphEntry, len(calls))
	for name := range calls {
		entry := &models.CallGraphEntry{
			Calls:        sortedSet(calls[name]),
			CalledBy:     sortedSet(calledBy[name]),
			CallsInLoops: sortedSet(inLoops[name]),
		}
		if file, ok := definitions[name]; ok {
			f := file
			entry.DefinitionFile = &f
		}
		graph[name] = entry
	}
	doc.CallGraph = graph
}

// collectDefinitions maps each defined qualified name to the first file, in
// path order, that defines it.
func collectDefinitions(doc *models.ScanDocument) map[string]string {
	defs := make(map[string]string)
	for _, path := range doc.SortedFiles() {
		for _, ref := range doc.SourceFiles[path].AllFunctions() {
			if _, ok := defs[ref.Function.QualifiedName]; !ok {
				defs[ref.Function.QualifiedName] = path
			}
		}
	}
	return defs
}

func resolve(site models.CallSite, definitions map[string]string) resolution {
	for _, candidate := range site.Candidates {
		if file, ok := definitions[candidate]; ok {
			f := file
			return resolution{name: candidate, resolved: true, definitionFile: &f}
		}
	}
	name := site.Spelling
	if name == "" {
		name = site.Callee
	}
	return resolution{name: name}
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
