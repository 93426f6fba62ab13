package ports

import (
	"context"
	"io"

	"go.keelbuild.dev/keel/internal/core/domain"
)

//go:generate mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Telemetry is the entry point for recording vertices (units of work)
// onto a build's progress log.
type Telemetry interface {
	// Record starts a new vertex under name and returns a context carrying
	// it alongside the vertex handle itself.
	Record(ctx context.Context, name string, opts ...VertexOption) (context.Context, Vertex)
	// Close flushes and closes the recording session.
	Close() error
}

// Vertex represents one unit of work (the worker records one per
// package, covering all of its stages) on the progress log.
type Vertex interface {
	// Stdout returns a writer for the vertex's standard output stream.
	Stdout() io.Writer
	// Stderr returns a writer for the vertex's error output stream.
	Stderr() io.Writer
	// Log records a structured log line associated with this vertex.
	Log(level domain.LogLevel, msg string)
	// Complete marks the vertex finished, successfully if err is nil.
	Complete(err error)
	// Cached marks the vertex as a cache hit rather than executed work.
	Cached()
}

// VertexConfig holds configuration for a vertex being recorded.
type VertexConfig struct {
	Package string
	Stage   domain.Stage
}

// VertexOption is a functional option for configuring a vertex at
// record time.
type VertexOption func(*VertexConfig)

// WithPackage annotates the vertex with the package it belongs to.
func WithPackage(pkg string) VertexOption {
	return func(c *VertexConfig) { c.Package = pkg }
}

// WithStage annotates the vertex with the build stage it represents.
func WithStage(stage domain.Stage) VertexOption {
	return func(c *VertexConfig) { c.Stage = stage }
}

type vertexCtxKey struct{}

// ContextWithVertex returns a context carrying v, retrievable with
// VertexFromContext.
func ContextWithVertex(ctx context.Context, v Vertex) context.Context {
	return context.WithValue(ctx, vertexCtxKey{}, v)
}

// VertexFromContext retrieves the vertex previously attached with
// ContextWithVertex, if any.
func VertexFromContext(ctx context.Context) (Vertex, bool) {
	v, ok := ctx.Value(vertexCtxKey{}).(Vertex)
	return v, ok
}
