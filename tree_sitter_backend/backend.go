// Package tree_sitter_backend implements the compiler backend contract with
// tree-sitter's C and C++ grammars.
package tree_sitter_backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pterm/pterm"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/meysamhadeli/unitcache/clang_service/contracts"
	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/utils"
)

// DefaultMaxIncludeDepth bounds how deep quoted #include chains are followed.
const DefaultMaxIncludeDepth = 8

type Language string

const (
	LanguageC   Language = "c"
	LanguageCPP Language = "c++"
)

var cppExtensions = map[string]bool{
	".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
	".hh": true, ".hpp": true, ".hxx": true,
}

// Backend creates tree-sitter indexes.
type Backend struct {
	MaxIncludeDepth int
	Logger          *pterm.Logger
}

func New(logger *pterm.Logger) *Backend {
	return &Backend{MaxIncludeDepth: DefaultMaxIncludeDepth, Logger: logger}
}

func (b *Backend) NewIndex(opts contracts.IndexOptions) (contracts.IIndex, error) {
	depth := b.MaxIncludeDepth
	if depth <= 0 {
		depth = DefaultMaxIncludeDepth
	}
	idx := &index{
		maxDepth: depth,
		logger:   utils.LoggerOr(b.Logger),
		opts:     opts,
	}
	idx.parsers[0].New = func() interface{} {
		p := sitter.NewParser()
		p.SetLanguage(c.GetLanguage())
		return p
	}
	idx.parsers[1].New = func() interface{} {
		p := sitter.NewParser()
		p.SetLanguage(cpp.GetLanguage())
		return p
	}
	return idx, nil
}

// index pools parsers per language. Parsers are not safe for concurrent use,
// so each parse borrows one.
type index struct {
	parsers  [2]sync.Pool
	maxDepth int
	logger   *pterm.Logger
	opts     contracts.IndexOptions
	closed   atomic.Bool
}

func (idx *index) Close() error {
	idx.closed.Store(true)
	return nil
}

func (idx *index) pool(lang Language) *sync.Pool {
	if lang == LanguageCPP {
		return &idx.parsers[1]
	}
	return &idx.parsers[0]
}

// LanguageFor picks the grammar from an explicit -x flag or the extension.
func LanguageFor(path string, flags models.FlagSet) (Language, error) {
	for _, f := range flags {
		if !strings.HasPrefix(f, "-x") {
			continue
		}
		switch strings.TrimPrefix(f, "-x") {
		case "c", "c-header":
			return LanguageC, nil
		case "c++", "c++-header":
			return LanguageCPP, nil
		default:
			return "", fmt.Errorf("%w: unsupported language %q", contracts.ErrInvalidArguments, f)
		}
	}
	if cppExtensions[strings.ToLower(filepath.Ext(path))] {
		return LanguageCPP, nil
	}
	return LanguageC, nil
}

func includeDirs(flags models.FlagSet) []string {
	var dirs []string
	for _, f := range flags {
		if strings.HasPrefix(f, "-I") && len(f) > 2 {
			dirs = append(dirs, f[2:])
		}
	}
	return dirs
}

func (idx *index) Parse(ctx context.Context, req contracts.ParseRequest) (unit contracts.ITranslationUnit, err error) {
	defer func() {
		if r := recover(); r != nil {
			idx.logger.Error("tree-sitter parse panicked", idx.logger.Args("file", req.File.String(), "panic", fmt.Sprint(r), "stack", string(debug.Stack())))
			unit, err = nil, fmt.Errorf("%w: %v", contracts.ErrBackendCrashed, r)
		}
	}()

	if idx.closed.Load() {
		return nil, fmt.Errorf("%w: index closed", contracts.ErrInvalidArguments)
	}
	if req.File.IsZero() {
		return nil, fmt.Errorf("%w: no file", contracts.ErrInvalidArguments)
	}
	lang, err := LanguageFor(req.File.Path, req.Flags)
	if err != nil {
		return nil, err
	}

	overlays := make(map[string][]byte, len(req.Overlays))
	for _, o := range req.Overlays {
		overlays[o.File.Path] = o.Content
	}

	p := &parse{
		ctx:      ctx,
		idx:      idx,
		lang:     lang,
		overlays: overlays,
		dirs:     includeDirs(req.Flags),
		tu: &translationUnit{
			main:  req.File.Path,
			file:  req.File,
			files: make(map[string]*parsedFile),
		},
	}

	parser := idx.pool(lang).Get().(*sitter.Parser)
	defer idx.pool(lang).Put(parser)
	p.parser = parser

	main, err := p.file(req.File.Path, 0)
	if err != nil {
		p.tu.Close()
		return nil, err
	}
	if main == nil || main.tree == nil {
		p.tu.Close()
		return nil, fmt.Errorf("%w: %s", contracts.ErrNoUnit, req.File)
	}
	return p.tu, nil
}

// parse is the state of one Parse call.
type parse struct {
	ctx      context.Context
	idx      *index
	parser   *sitter.Parser
	lang     Language
	overlays map[string][]byte
	dirs     []string
	tu       *translationUnit
}

func (p *parse) read(path string) ([]byte, error) {
	if content, ok := p.overlays[path]; ok {
		return content, nil
	}
	return os.ReadFile(path)
}

func (p *parse) file(path string, depth int) (*parsedFile, error) {
	if pf, ok := p.tu.files[path]; ok {
		return pf, nil
	}
	src, err := p.read(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrASTRead, err)
	}

	tree, err := p.parser.ParseCtx(p.ctx, nil, src)
	if err != nil {
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", contracts.ErrNoUnit, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: %s", contracts.ErrNoUnit, path)
	}

	pf := &parsedFile{path: path, src: src, tree: tree, includes: make(map[uint32]string)}
	p.tu.files[path] = pf

	if depth >= p.idx.maxDepth {
		return pf, nil
	}
	for _, inc := range quotedIncludes(tree.RootNode(), src) {
		resolved := p.resolve(filepath.Dir(path), inc.name)
		if resolved == "" {
			continue
		}
		if _, err := p.file(resolved, depth+1); err != nil {
			if p.ctx.Err() != nil {
				return nil, p.ctx.Err()
			}
			p.idx.logger.Debug("skipping unreadable include", p.idx.logger.Args("include", resolved, "error", err))
			continue
		}
		pf.includes[inc.at] = resolved
	}
	return pf, nil
}

func (p *parse) resolve(fromDir, name string) string {
	candidates := make([]string, 0, len(p.dirs)+1)
	if filepath.IsAbs(name) {
		candidates = append(candidates, name)
	} else {
		candidates = append(candidates, filepath.Join(fromDir, name))
		for _, d := range p.dirs {
			candidates = append(candidates, filepath.Join(d, name))
		}
	}
	for _, c := range candidates {
		c = filepath.Clean(c)
		if _, ok := p.overlays[c]; ok {
			return c
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

type include struct {
	at   uint32
	name string
}

// quotedIncludes lists #include "x" directives anywhere in the tree,
// including those nested in conditional blocks.
func quotedIncludes(root *sitter.Node, src []byte) []include {
	var out []include
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "preproc_include" {
			if path := n.ChildByFieldName("path"); path != nil && path.Type() == "string_literal" {
				name := strings.Trim(path.Content(src), `"`)
				if name != "" {
					out = append(out, include{at: n.StartByte(), name: name})
				}
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil {
				walk(child)
			}
		}
	}
	walk(root)
	return out
}
