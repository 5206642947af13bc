package detectors

import (
	actx "loopscan/internal/context"
	"loopscan/internal/models"
	"loopscan/internal/syntax"
)

// LoopDetector inspects the statements that belong directly to one loop and
// records its findings on the loop. Statements inside deeper loops are left
// to those loops.
type LoopDetector interface {
	Name() string
	Detect(body *syntax.Node, ctx *actx.AnalysisContext, loop *models.Loop)
}

// walkOwnScope visits body in source order without entering nested loops.
// Returning false from fn skips the children of the current node.
func walkOwnScope(body *syntax.Node, fn func(*syntax.Node) bool) {
	if body == nil || body.Kind.IsLoop() {
		return
	}
	if !fn(body) {
		return
	}
	for _, c := range body.Children {
		walkOwnScope(c, fn)
	}
}
