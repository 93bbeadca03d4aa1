package bundler

import (
	"context"
	"fmt"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
)

// Strategy selects a minifier.
type Strategy string

// Minifier strategies.
const (
	// StrategyFast is the engine's single-pass minifier.
	StrategyFast Strategy = "fast"

	// StrategyAST parses the code into a syntax tree and rewrites it.
	StrategyAST Strategy = "ast-based"
)

// DefaultStrategy is used when none is configured.
const DefaultStrategy = StrategyFast

// ParseStrategy accepts "fast" and "ast-based" (or "ast").
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(StrategyFast):
		return StrategyFast, nil
	case string(StrategyAST), "ast":
		return StrategyAST, nil
	default:
		return "", fmt.Errorf("unknown minifier %q (valid: fast, ast-based)", s)
	}
}

// Minifier shrinks JS code without changing its behavior.
type Minifier interface {
	Minify(ctx context.Context, code string) (string, error)
}

// engineMinifier minifies through the bundler's engine transform.
type engineMinifier struct {
	b *Bundler
}

func (m engineMinifier) Minify(ctx context.Context, code string) (string, error) {
	if err := m.b.Init(ctx); err != nil {
		return "", err
	}
	m.b.buildMu.Lock()
	defer m.b.buildMu.Unlock()
	return m.b.engine.Transform(ctx, code, TransformOptions{Minify: true, Format: FormatESM})
}

const jsMediaType = "application/javascript"

// ASTMinifier minifies with tdewolff/minify's JS parser and printer.
type ASTMinifier struct {
	m *minify.M
}

// NewASTMinifier returns an ASTMinifier.
func NewASTMinifier() *ASTMinifier {
	m := minify.New()
	m.Add(jsMediaType, &js.Minifier{})
	return &ASTMinifier{m: m}
}

// Minify implements Minifier.
func (a *ASTMinifier) Minify(_ context.Context, code string) (string, error) {
	return a.m.String(jsMediaType, code)
}

// Minifier returns the implementation for strategy.
func (b *Bundler) Minifier(strategy Strategy) Minifier {
	if strategy == StrategyAST {
		return NewASTMinifier()
	}
	return engineMinifier{b: b}
}

// MinifyCode minifies code with strategy. Failures and empty output keep
// the original code.
func (b *Bundler) MinifyCode(ctx context.Context, code string, strategy Strategy) string {
	out, err := b.Minifier(strategy).Minify(ctx, code)
	if err != nil {
		logger.Warn("minification failed, keeping original code", "strategy", strategy, "error", err)
		return code
	}
	if strings.TrimSpace(out) == "" {
		return code
	}
	return out
}
