package contracts

import (
	"context"

	"github.com/meysamhadeli/unitcache/models"
)

// IBuildFlagsProvider supplies compiler flags for a file. Build systems that
// know nothing about a file return an empty FlagSet rather than failing.
type IBuildFlagsProvider interface {
	BuildFlags(ctx context.Context, file models.FileIdentity) (models.FlagSet, error)
}
