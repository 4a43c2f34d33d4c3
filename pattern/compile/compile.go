// Package compile materializes SuperCollider pattern source into its
// stored compiled form.
//
// "Compilation" here is deterministic text optimization: the synthesis
// engine does the real compile when the code is sent to it. Keeping the
// optimized form precomputed avoids repeating the work per request.
package compile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spaco-sound/spaco/pattern"
)

// constExpr matches an integer arithmetic pair eligible for folding,
// e.g. "2 * 3" or "440+110". The boundary groups keep float literals
// like "1.5 * 2" out of the fold.
var constExpr = regexp.MustCompile(`(^|[^.\w])(\d+)\s*([*+\-/])\s*(\d+)($|[^.\w])`)

// Stats aggregates compiler activity for diagnostics.
type Stats struct {
	TotalCompiled    int
	Errors           int
	TotalCompileTime time.Duration
}

// AvgCompileTime returns the mean compile duration, or zero when
// nothing has been compiled.
func (s Stats) AvgCompileTime() time.Duration {
	if s.TotalCompiled == 0 {
		return 0
	}
	return s.TotalCompileTime / time.Duration(s.TotalCompiled)
}

// Compiler turns pattern source into a Pattern carrying the optimized
// compiled form. Safe for concurrent use.
type Compiler struct {
	logger *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a compiler. logger may be nil.
func New(logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{logger: logger}
}

// Compile optimizes source and returns an unsaved Pattern with
// CompilationTime filled in. The pattern has no ID yet; the store
// assigns or preserves one on save.
func (c *Compiler) Compile(name, patternType, source string, metadata pattern.Metadata) (*pattern.Pattern, error) {
	if strings.TrimSpace(source) == "" {
		c.recordError()
		return nil, fmt.Errorf("%w: pattern %q has empty source", pattern.ErrCompile, name)
	}

	start := time.Now()
	compiled := optimize(source, patternType)
	elapsed := time.Since(start)

	c.mu.Lock()
	c.stats.TotalCompiled++
	c.stats.TotalCompileTime += elapsed
	c.mu.Unlock()

	c.logger.Debug("pattern compiled",
		zap.String("name", name),
		zap.String("type", patternType),
		zap.Duration("elapsed", elapsed))

	return &pattern.Pattern{
		Name:            name,
		Type:            patternType,
		SourceCode:      source,
		CompiledCode:    compiled,
		Metadata:        metadata,
		CompilationTime: elapsed.Seconds(),
	}, nil
}

// Stats returns a copy of the compiler counters.
func (c *Compiler) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Compiler) recordError() {
	c.mu.Lock()
	c.stats.Errors++
	c.mu.Unlock()
}

// optimize applies per-type passes to the source. Unknown pattern
// types only get the whitespace trim.
func optimize(source, patternType string) string {
	code := strings.TrimSpace(source)
	switch patternType {
	case "synth_def":
		code = foldConstants(code)
	case "effect", "pattern":
		// The engine-side compiler already handles these well; only
		// the trimmed form is stored.
	}
	return code
}

// foldConstants precomputes integer literal arithmetic like "2 * 3".
// Anything that does not fold cleanly (division by zero, inexact
// division, overflow-prone operands) is left byte-identical.
func foldConstants(code string) string {
	return constExpr.ReplaceAllStringFunc(code, func(expr string) string {
		parts := constExpr.FindStringSubmatch(expr)
		if parts == nil {
			return expr
		}
		prefix, suffix := parts[1], parts[5]

		lhs, err1 := strconv.ParseInt(parts[2], 10, 32)
		rhs, err2 := strconv.ParseInt(parts[4], 10, 32)
		if err1 != nil || err2 != nil {
			return expr
		}

		var result int64
		switch parts[3] {
		case "+":
			result = lhs + rhs
		case "-":
			result = lhs - rhs
		case "*":
			result = lhs * rhs
		case "/":
			if rhs == 0 || lhs%rhs != 0 {
				return expr
			}
			result = lhs / rhs
		default:
			return expr
		}
		return prefix + strconv.FormatInt(result, 10) + suffix
	})
}
