package contracts

import (
	"context"
	"errors"

	"github.com/meysamhadeli/unitcache/models"
)

// Failure modes a backend reports while creating a translation unit.
var (
	ErrBackendCrashed   = errors.New("compiler backend crashed")
	ErrInvalidArguments = errors.New("invalid compiler arguments")
	ErrASTRead          = errors.New("failed to read source")
	ErrNoUnit           = errors.New("no translation unit produced")
)

type CursorKind uint8

const (
	CursorOther CursorKind = iota
	CursorTypedefDecl
	CursorTypeAliasDecl
	CursorFunctionDecl
	CursorMacroDefinition
	CursorMacroExpansion
	CursorVariableDecl
	CursorFieldDecl
	CursorStructDecl
	CursorEnumConstant
)

// Cursor is one declaration, definition or macro reference in a parsed unit.
type Cursor struct {
	Kind     CursorKind
	Spelling string
	// Path is the file the cursor lives in; headers reached through
	// #include report their own path.
	Path     string
	Location models.Position
	// TopLevel is set for declarations at file scope.
	TopLevel bool
}

type IndexOptions struct {
	// BackgroundPriority asks the backend to keep its own worker threads at
	// low priority.
	BackgroundPriority bool
}

type ParseRequest struct {
	File  models.FileIdentity
	Flags models.FlagSet
	// Overlays replace on-disk content for any file they name.
	Overlays []models.UnsavedFile
}

// IBackend creates indexes. One index is shared by every parse of a service
// so the backend can reuse its internal state.
type IBackend interface {
	NewIndex(opts IndexOptions) (IIndex, error)
}

type IIndex interface {
	Parse(ctx context.Context, req ParseRequest) (ITranslationUnit, error)
	Close() error
}

// ITranslationUnit is an immutable parse result. All methods are safe for
// concurrent use.
type ITranslationUnit interface {
	// Visit walks cursors depth first in source order, descending into
	// included files at their #include, until fn returns false.
	Visit(fn func(Cursor) bool)
	// CompleteAt lists the names visible at pos in the main file, unfiltered.
	CompleteAt(ctx context.Context, pos models.Position) ([]models.CompletionItem, error)
	Diagnostics() []models.Diagnostic
	// Source returns the main file content the unit was parsed from.
	Source() []byte
	Close()
}
