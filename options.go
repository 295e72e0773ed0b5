package buckettree

import "github.com/datatrails/go-datatrails-common/logger"

// treeOptions holds the configurable, non-structural dependencies of a
// BucketTree. Kept separate from the geometry/storage fields set by
// Initialize itself, matching the teacher's split between its
// StorageOptions/ReaderOptions (options.go, readeroptions.go) and the
// structural constructor arguments passed alongside them.
type treeOptions struct {
	allocator Allocator
	log       logger.Logger
}

// Option configures a BucketTree at Initialize. Implementations ignore
// option kinds that don't apply to them, following the teacher's generic
// `Option func(any)` convention (options.go, anyfinderoptions.go) rather
// than a bespoke options type per call site.
type Option func(any)

// WithAllocator overrides the node Allocator. The default is a
// make()-backed heap allocator (NewDefaultAllocator).
func WithAllocator(allocator Allocator) Option {
	return func(a any) {
		if o, ok := a.(*treeOptions); ok {
			o.allocator = allocator
		}
	}
}

// WithLogger attaches a logger.Logger for Debug-level tracing of
// Initialize, Find's entry-set resolution path, and InvalidateCache.
// Movement within an already-loaded entry set never logs.
func WithLogger(log logger.Logger) Option {
	return func(a any) {
		if o, ok := a.(*treeOptions); ok {
			o.log = log
		}
	}
}

func newTreeOptions(opts ...Option) treeOptions {
	o := treeOptions{allocator: NewDefaultAllocator()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// VisitorOption configures a Visitor. Currently only logging is
// adjustable; geometry and storage are always inherited from the tree.
type VisitorOption func(any)

type visitorOptions struct {
	log logger.Logger
}

// WithVisitorLogger attaches a logger.Logger to a single Visitor,
// independent of the tree's own logger (e.g. to tag a particular
// caller's traversal).
func WithVisitorLogger(log logger.Logger) VisitorOption {
	return func(a any) {
		if o, ok := a.(*visitorOptions); ok {
			o.log = log
		}
	}
}

func newVisitorOptions(tree *BucketTree, opts ...VisitorOption) visitorOptions {
	o := visitorOptions{log: tree.opts.log}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
