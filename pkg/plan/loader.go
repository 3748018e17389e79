package plan

import "context"

// Loader produces a plan from some discovery source (a file, a directory of documents,
// an in-memory definition).
type Loader interface {
	Load(ctx context.Context) (*Plan, error)
}

// FileLoader loads a single YAML plan file.
type FileLoader struct {
	Path string
}

// NewFileLoader returns a loader for the plan at path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}

func (l *FileLoader) Load(ctx context.Context) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadFile(l.Path)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (*Plan, error)

func (f LoaderFunc) Load(ctx context.Context) (*Plan, error) {
	return f(ctx)
}
