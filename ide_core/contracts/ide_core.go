package contracts

import (
	"context"

	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/symbol_index"
	"github.com/meysamhadeli/unitcache/task_scheduler"
)

// IBuildSystem is implemented by anything able to tell how a file is
// compiled. Build systems that do not know return an empty FlagSet.
type IBuildSystem interface {
	BuildFlags(ctx context.Context, file models.FileIdentity) (models.FlagSet, error)
}

// IIdeCore is the surface editor front ends call into.
type IIdeCore interface {
	RequestCompletion(ctx context.Context, file models.FileIdentity, pos models.Position) *task_scheduler.Future[[]models.CompletionItem]
	RequestBuildFlags(ctx context.Context, file models.FileIdentity) *task_scheduler.Future[models.FlagSet]
	RequestDiagnostics(ctx context.Context, file models.FileIdentity) *task_scheduler.Future[[]models.Diagnostic]
	NotifyEdit(file models.FileIdentity, content []byte) int64
	SetActiveFile(file models.FileIdentity)
	QuerySymbolKind(word string) (symbol_index.Kind, bool)
}
