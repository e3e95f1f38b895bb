package sel

import (
	"testing"
)

type alphaSource struct{}

func (alphaSource) Label() string { return "alpha" }

type betaSource struct{}

func (betaSource) Label() string { return "beta" }

func TestMixedModePromotionThreshold(t *testing.T) {
	expr, err := ParseWithConfig("1 + 2 * 3", &Config{Mode: CompileMixed, PromotionThreshold: 3})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := NewStandardContext(nil)

	for i := 0; i < 2; i++ {
		v, err := expr.GetValue(ctx, nil)
		if err != nil || v != int64(7) {
			t.Fatalf("eval %d: %v, %v", i, v, err)
		}
		if expr.IsCompiled() {
			t.Fatalf("compiled after %d evaluations, threshold is 3", i+1)
		}
	}
	if v, err := expr.GetValue(ctx, nil); err != nil || v != int64(7) {
		t.Fatalf("threshold eval: %v, %v", v, err)
	}
	if !expr.IsCompiled() {
		t.Fatalf("not compiled after reaching threshold")
	}

	// The compiled form produces the same value.
	if v, err := expr.GetValue(ctx, nil); err != nil || v != int64(7) {
		t.Fatalf("compiled eval: %v, %v", v, err)
	}
}

func TestImmediateModeCompilesAfterFirstEval(t *testing.T) {
	expr, err := ParseWithConfig("#n * 2", &Config{Mode: CompileImmediate})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := NewStandardContext(nil)
	ctx.SetVariable("n", int64(21))

	if expr.IsCompiled() {
		t.Fatalf("compiled before first evaluation")
	}
	if v, err := expr.GetValue(ctx, nil); err != nil || v != int64(42) {
		t.Fatalf("first eval: %v, %v", v, err)
	}
	if !expr.IsCompiled() {
		t.Fatalf("immediate mode did not compile after first evaluation")
	}
	if v, err := expr.GetValue(ctx, nil); err != nil || v != int64(42) {
		t.Fatalf("compiled eval: %v, %v", v, err)
	}
}

func TestOffModeNeverCompiles(t *testing.T) {
	expr, err := ParseWithConfig("1 + 1", &Config{Mode: CompileOff})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := NewStandardContext(nil)
	for i := 0; i < 200; i++ {
		if _, err := expr.GetValue(ctx, nil); err != nil {
			t.Fatalf("eval %d: %v", i, err)
		}
	}
	if expr.IsCompiled() {
		t.Fatalf("off mode compiled the expression")
	}
}

func TestMixedModeRevertsOnCompiledFailure(t *testing.T) {
	expr, err := ParseWithConfig("label()", &Config{Mode: CompileMixed, PromotionThreshold: 1})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := NewStandardContext(nil)

	if v, err := expr.GetValue(ctx, alphaSource{}); err != nil || v != "alpha" {
		t.Fatalf("warmup eval: %v, %v", v, err)
	}
	if !expr.IsCompiled() {
		t.Fatalf("expression did not compile at threshold 1")
	}

	// The compiled routine is specialized on alphaSource. A different target
	// type fails the compiled form; mixed mode must drop it and serve the
	// call from the interpreter instead of surfacing the error.
	v, err := expr.GetValue(ctx, betaSource{})
	if err != nil {
		t.Fatalf("eval after target change: %v", err)
	}
	if v != "beta" {
		t.Fatalf("eval after target change = %v, want beta", v)
	}
	if expr.IsCompiled() {
		t.Fatalf("compiled form survived a runtime failure in mixed mode")
	}
}

func TestMixedModeRevertClearsCounters(t *testing.T) {
	expr, err := ParseWithConfig("label()", &Config{Mode: CompileMixed, PromotionThreshold: 1})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := NewStandardContext(nil)
	if _, err := expr.GetValue(ctx, alphaSource{}); err != nil {
		t.Fatalf("warmup eval: %v", err)
	}
	if !expr.IsCompiled() {
		t.Fatalf("expression did not compile at threshold 1")
	}

	expr.failedAttempts.Store(7)
	if v, err := expr.GetValue(ctx, betaSource{}); err != nil || v != "beta" {
		t.Fatalf("reverting eval: %v, %v", v, err)
	}
	if got := expr.failedAttempts.Load(); got != 0 {
		t.Fatalf("failedAttempts = %d after revert, want 0", got)
	}
	if got := expr.interpretedCount.Load(); got != 0 {
		t.Fatalf("interpretedCount = %d after revert, want 0", got)
	}
	if expr.IsCompiled() {
		t.Fatalf("expression re-promoted on the reverting call")
	}

	// Counting resumes on the next call.
	if v, err := expr.GetValue(ctx, betaSource{}); err != nil || v != "beta" {
		t.Fatalf("post-revert eval: %v, %v", v, err)
	}
	if !expr.IsCompiled() {
		t.Fatalf("expression did not promote again after the revert")
	}
}

func TestImmediateModeSurfacesCompiledFailure(t *testing.T) {
	expr, err := ParseWithConfig("label()", &Config{Mode: CompileImmediate})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := NewStandardContext(nil)

	if v, err := expr.GetValue(ctx, alphaSource{}); err != nil || v != "alpha" {
		t.Fatalf("warmup eval: %v, %v", v, err)
	}
	if !expr.IsCompiled() {
		t.Fatalf("immediate mode did not compile")
	}
	if _, err := expr.GetValue(ctx, betaSource{}); err == nil {
		t.Fatalf("immediate mode swallowed the compiled failure")
	}
}

func TestCompileNow(t *testing.T) {
	expr := MustParse("foo == 'x' ? 1 : 2")
	ctx := NewStandardContext(nil)
	root := map[string]any{"foo": "x"}

	// Compilation needs type observations from at least one interpreted run.
	if v, err := expr.GetValue(ctx, root); err != nil || v != int64(1) {
		t.Fatalf("interpreted eval: %v, %v", v, err)
	}
	if !expr.CompileNow() {
		t.Fatalf("CompileNow failed after an interpreted run")
	}
	if !expr.IsCompiled() {
		t.Fatalf("IsCompiled false after CompileNow")
	}
	if v, err := expr.GetValue(ctx, root); err != nil || v != int64(1) {
		t.Fatalf("compiled eval: %v, %v", v, err)
	}
}

func TestInterpretedCompiledEquivalence(t *testing.T) {
	root := map[string]any{
		"name":  "ada",
		"score": int64(90),
		"tags":  []any{"a", "b", "c"},
	}
	vars := map[string]any{"bonus": int64(5)}
	exprs := []string{
		"score + #bonus",
		"score > 50 ? 'pass' : 'fail'",
		"name + '!'",
		"name == 'ada' and score >= 90",
		"score ?: 0",
		"-score + 100",
		"!(score < 50)",
	}
	for _, src := range exprs {
		expr := MustParse(src)
		ctx := NewStandardContext(root)
		for k, v := range vars {
			ctx.SetVariable(k, v)
		}
		interpreted, err := expr.GetValue(ctx, root)
		if err != nil {
			t.Errorf("interpret %q: %v", src, err)
			continue
		}
		if !expr.CompileNow() {
			t.Errorf("compile %q failed", src)
			continue
		}
		compiled, err := expr.GetValue(ctx, root)
		if err != nil {
			t.Errorf("compiled %q: %v", src, err)
			continue
		}
		if compiled != interpreted {
			t.Errorf("%q: compiled %v (%T) != interpreted %v (%T)", src, compiled, compiled, interpreted, interpreted)
		}
	}
}

func TestCompiledChainThreadsElements(t *testing.T) {
	root := map[string]any{
		"user": map[string]any{"profile": map[string]any{"city": "oslo"}},
	}
	expr := MustParse("user.profile.city")
	ctx := NewStandardContext(root)
	if v, err := expr.GetValue(ctx, root); err != nil || v != "oslo" {
		t.Fatalf("interpreted chain: %v, %v", v, err)
	}
	if !expr.CompileNow() {
		t.Fatalf("chain did not compile")
	}
	if v, err := expr.GetValue(ctx, root); err != nil || v != "oslo" {
		t.Fatalf("compiled chain: %v, %v", v, err)
	}
}
