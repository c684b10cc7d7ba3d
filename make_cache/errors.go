package make_cache

import (
	"errors"

	"github.com/meysamhadeli/unitcache/utils"
)

var (
	ErrSpawn      = utils.ErrSpawn
	ErrSubprocess = utils.ErrSubprocess
	// ErrInvalidOutput is returned when a build tool prints non UTF-8 text.
	ErrInvalidOutput = errors.New("subprocess output is not valid UTF-8")

	ErrRename      = errors.New("failed to move make database into place")
	ErrMmap        = errors.New("failed to map make database")
	ErrEmptyDump   = errors.New("make database is empty")
	ErrInvalidDump = errors.New("make database is not valid UTF-8")
	ErrClosed      = errors.New("make cache is closed")

	// ErrNotFound reports a confirmed absence: the file belongs to no target
	// in the current make database. Callers treat it as "no flags apply".
	ErrNotFound = errors.New("no make targets reference file")
	// ErrExtractFlags means targets exist but no compiler line could be
	// recovered from any of them.
	ErrExtractFlags = errors.New("could not extract flags")
)
