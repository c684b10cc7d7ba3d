package tree_sitter_backend

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"fortio.org/safecast"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/meysamhadeli/unitcache/clang_service/contracts"
	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/utils"
)

type parsedFile struct {
	path string
	src  []byte
	tree *sitter.Tree
	// includes maps the start byte of a resolved #include to its target.
	includes map[uint32]string
}

type translationUnit struct {
	main  string
	file  models.FileIdentity
	files map[string]*parsedFile

	// tree-sitter nodes are not safe to walk from several goroutines at once.
	mu     sync.Mutex
	closed bool

	diagOnce sync.Once
	diags    []models.Diagnostic
}

func (tu *translationUnit) Source() []byte {
	if pf := tu.files[tu.main]; pf != nil {
		return pf.src
	}
	return nil
}

func (tu *translationUnit) Close() {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	if tu.closed {
		return
	}
	tu.closed = true
	for _, pf := range tu.files {
		if pf.tree != nil {
			pf.tree.Close()
		}
	}
}

func (tu *translationUnit) Visit(fn func(contracts.Cursor) bool) {
	tu.mu.Lock()
	defer tu.mu.Unlock()
	if tu.closed {
		return
	}
	v := &visitor{
		tu:      tu,
		fn:      fn,
		macros:  make(map[string]bool),
		visited: make(map[string]bool),
	}
	v.visitFile(tu.main)
}

type visitor struct {
	tu      *translationUnit
	fn      func(contracts.Cursor) bool
	macros  map[string]bool
	visited map[string]bool
	stopped bool
}

func (v *visitor) visitFile(path string) {
	pf := v.tu.files[path]
	if pf == nil || v.visited[path] {
		return
	}
	v.visited[path] = true
	v.walk(pf, pf.tree.RootNode(), true)
}

func (v *visitor) emit(pf *parsedFile, kind contracts.CursorKind, name *sitter.Node, topLevel bool) {
	if v.stopped || name == nil {
		return
	}
	spelling := name.Content(pf.src)
	if spelling == "" {
		return
	}
	if !v.fn(contracts.Cursor{
		Kind:     kind,
		Spelling: spelling,
		Path:     pf.path,
		Location: pointPosition(name.StartPoint()),
		TopLevel: topLevel,
	}) {
		v.stopped = true
	}
}

func (v *visitor) children(pf *parsedFile, n *sitter.Node, topLevel bool) {
	for i := 0; i < int(n.NamedChildCount()) && !v.stopped; i++ {
		if child := n.NamedChild(i); child != nil {
			v.walk(pf, child, topLevel)
		}
	}
}

func (v *visitor) walk(pf *parsedFile, n *sitter.Node, topLevel bool) {
	if v.stopped {
		return
	}
	switch n.Type() {
	case "translation_unit", "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif",
		"linkage_specification", "declaration_list", "namespace_definition":
		// Conditional and linkage blocks do not open a scope.
		v.children(pf, n, topLevel)
		return

	case "preproc_include":
		if target, ok := pf.includes[n.StartByte()]; ok {
			v.visitFile(target)
		}
		return

	case "preproc_def", "preproc_function_def":
		if name := n.ChildByFieldName("name"); name != nil {
			v.macros[name.Content(pf.src)] = true
			v.emit(pf, contracts.CursorMacroDefinition, name, true)
		}
		return

	case "identifier", "type_identifier":
		if v.macros[n.Content(pf.src)] {
			v.emit(pf, contracts.CursorMacroExpansion, n, topLevel)
		}
		return

	case "type_definition":
		v.walkTypeSpecifier(pf, n, topLevel)
		for _, d := range fieldChildren(n, "declarator") {
			v.emit(pf, contracts.CursorTypedefDecl, declaratorName(d), topLevel)
		}
		return

	case "alias_declaration":
		v.emit(pf, contracts.CursorTypeAliasDecl, n.ChildByFieldName("name"), topLevel)
		if t := n.ChildByFieldName("type"); t != nil {
			v.walk(pf, t, topLevel)
		}
		return

	case "function_definition":
		v.walkTypeSpecifier(pf, n, topLevel)
		decl := n.ChildByFieldName("declarator")
		v.emit(pf, contracts.CursorFunctionDecl, declaratorName(decl), topLevel)
		if fd := functionDeclarator(decl); fd != nil {
			if params := fd.ChildByFieldName("parameters"); params != nil {
				v.children(pf, params, false)
			}
		}
		if body := n.ChildByFieldName("body"); body != nil {
			v.children(pf, body, false)
		}
		return

	case "declaration", "field_declaration", "parameter_declaration":
		v.walkTypeSpecifier(pf, n, topLevel)
		kind := contracts.CursorVariableDecl
		if n.Type() == "field_declaration" {
			kind = contracts.CursorFieldDecl
		}
		for _, d := range fieldChildren(n, "declarator") {
			if isFunction(d) {
				v.emit(pf, contracts.CursorFunctionDecl, declaratorName(d), topLevel)
				continue
			}
			v.emit(pf, kind, declaratorName(d), topLevel)
			if init := d.ChildByFieldName("value"); init != nil {
				v.walk(pf, init, false)
			}
		}
		return

	case "enumerator":
		v.emit(pf, contracts.CursorEnumConstant, n.ChildByFieldName("name"), topLevel)
		if val := n.ChildByFieldName("value"); val != nil {
			v.walk(pf, val, false)
		}
		return

	case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
		body := n.ChildByFieldName("body")
		if body != nil {
			v.emit(pf, contracts.CursorStructDecl, n.ChildByFieldName("name"), topLevel)
			// Enumerators share the enclosing scope; members do not.
			v.children(pf, body, topLevel && n.Type() == "enum_specifier")
		} else if name := n.ChildByFieldName("name"); name != nil {
			v.walk(pf, name, topLevel)
		}
		return
	}
	v.children(pf, n, false)
}

func (v *visitor) walkTypeSpecifier(pf *parsedFile, n *sitter.Node, topLevel bool) {
	if t := n.ChildByFieldName("type"); t != nil {
		v.walk(pf, t, topLevel)
	}
}

// fieldChildren returns every child stored under a repeated field name.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			if child := n.Child(i); child != nil {
				out = append(out, child)
			}
		}
	}
	return out
}

func isNameNode(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "type_identifier", "field_identifier", "qualified_identifier",
		"destructor_name", "operator_name", "primitive_type":
		return true
	}
	return false
}

// declaratorName digs through pointer, array, function and init
// declarators to the declared name.
func declaratorName(n *sitter.Node) *sitter.Node {
	for n != nil {
		if isNameNode(n) {
			return n
		}
		next := n.ChildByFieldName("declarator")
		if next == nil && n.Type() == "parenthesized_declarator" && n.NamedChildCount() > 0 {
			next = n.NamedChild(0)
		}
		n = next
	}
	return nil
}

// functionDeclarator returns the first function declarator on the chain.
func functionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		if n.Type() == "function_declarator" {
			return n
		}
		if isNameNode(n) {
			return nil
		}
		next := n.ChildByFieldName("declarator")
		if next == nil && n.Type() == "parenthesized_declarator" && n.NamedChildCount() > 0 {
			next = n.NamedChild(0)
		}
		n = next
	}
	return nil
}

// isFunction reports whether a declarator declares a function rather than a
// pointer to one: the function declarator must wrap the name directly.
func isFunction(n *sitter.Node) bool {
	fd := functionDeclarator(n)
	if fd == nil {
		return false
	}
	inner := fd.ChildByFieldName("declarator")
	return inner != nil && isNameNode(inner)
}

func pointPosition(p sitter.Point) models.Position {
	line, err := safecast.Conv[int](p.Row)
	if err != nil {
		line = 0
	}
	col, err := safecast.Conv[int](p.Column)
	if err != nil {
		col = 0
	}
	return models.Position{Line: line, Column: col}
}

func (tu *translationUnit) Diagnostics() []models.Diagnostic {
	tu.diagOnce.Do(func() {
		tu.mu.Lock()
		defer tu.mu.Unlock()
		if tu.closed {
			return
		}
		pf := tu.files[tu.main]
		if pf == nil {
			return
		}
		tu.diags = collectDiagnostics(tu.file, pf)
	})
	return append([]models.Diagnostic(nil), tu.diags...)
}

func collectDiagnostics(file models.FileIdentity, pf *parsedFile) []models.Diagnostic {
	var out []models.Diagnostic
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if !n.HasError() && !n.IsMissing() {
			return
		}
		switch {
		case n.IsMissing():
			out = append(out, models.Diagnostic{
				File:     file,
				Start:    pointPosition(n.StartPoint()),
				End:      pointPosition(n.EndPoint()),
				Severity: models.SeverityError,
				Message:  "expected '" + n.Type() + "'",
			})
			return
		case n.Type() == "ERROR":
			text := bytes.TrimSpace(pf.src[n.StartByte():n.EndByte()])
			if nl := bytes.IndexByte(text, '\n'); nl >= 0 {
				text = text[:nl]
			}
			out = append(out, models.Diagnostic{
				File:     file,
				Start:    pointPosition(n.StartPoint()),
				End:      pointPosition(n.EndPoint()),
				Severity: models.SeverityError,
				Message:  "syntax error near '" + string(text) + "'",
			})
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if child := n.Child(i); child != nil {
				walk(child)
			}
		}
	}
	walk(pf.tree.RootNode())
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Line != out[j].Start.Line {
			return out[i].Start.Line < out[j].Start.Line
		}
		return out[i].Start.Column < out[j].Start.Column
	})
	return out
}

var cKeywords = []string{
	"auto", "break", "case", "char", "const", "continue", "default", "do",
	"double", "else", "enum", "extern", "float", "for", "goto", "if", "inline",
	"int", "long", "register", "restrict", "return", "short", "signed",
	"sizeof", "static", "struct", "switch", "typedef", "union", "unsigned",
	"void", "volatile", "while", "_Bool", "_Static_assert",
}

var cppKeywords = []string{
	"bool", "class", "constexpr", "delete", "false", "namespace", "new",
	"nullptr", "private", "protected", "public", "template", "this", "true",
	"typename", "using", "virtual",
}

func completionKind(k contracts.CursorKind) models.CompletionKind {
	switch k {
	case contracts.CursorTypedefDecl, contracts.CursorTypeAliasDecl, contracts.CursorStructDecl:
		return models.CompletionType
	case contracts.CursorFunctionDecl:
		return models.CompletionFunction
	case contracts.CursorMacroDefinition:
		return models.CompletionMacro
	case contracts.CursorVariableDecl, contracts.CursorEnumConstant:
		return models.CompletionVariable
	case contracts.CursorFieldDecl:
		return models.CompletionField
	default:
		return models.CompletionOther
	}
}

func lineAt(src []byte, line int) string {
	start := utils.OffsetForPosition(src, line, 0)
	end := bytes.IndexByte(src[start:], '\n')
	if end < 0 {
		end = len(src) - start
	}
	return string(bytes.TrimSpace(src[start : start+end]))
}

func (tu *translationUnit) CompleteAt(ctx context.Context, pos models.Position) ([]models.CompletionItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var items []models.CompletionItem
	add := func(item models.CompletionItem) {
		if item.Text == "" || seen[item.Text] {
			return
		}
		seen[item.Text] = true
		items = append(items, item)
	}

	src := tu.Source()
	offset := utils.OffsetForPosition(src, pos.Line, pos.Column)

	var locals []contracts.Cursor
	tu.Visit(func(c contracts.Cursor) bool {
		if c.Kind == contracts.CursorMacroExpansion || c.Kind == contracts.CursorOther {
			return true
		}
		if c.TopLevel {
			detail := ""
			if pf := tu.files[c.Path]; pf != nil {
				detail = lineAt(pf.src, c.Location.Line)
			}
			add(models.CompletionItem{Text: c.Spelling, Kind: completionKind(c.Kind), Detail: detail})
		}
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tu.mu.Lock()
	if !tu.closed {
		if pf := tu.files[tu.main]; pf != nil {
			locals = localsAt(pf, offset)
		}
	}
	tu.mu.Unlock()
	for _, c := range locals {
		add(models.CompletionItem{Text: c.Spelling, Kind: completionKind(c.Kind), Detail: lineAt(src, c.Location.Line)})
	}

	lang, _ := LanguageFor(tu.main, nil)
	for _, kw := range cKeywords {
		add(models.CompletionItem{Text: kw, Kind: models.CompletionKeyword})
	}
	if lang == LanguageCPP {
		for _, kw := range cppKeywords {
			add(models.CompletionItem{Text: kw, Kind: models.CompletionKeyword})
		}
	}
	return items, nil
}

// localsAt collects parameters and block-scope declarations visible at
// offset in the main file.
func localsAt(pf *parsedFile, offset int) []contracts.Cursor {
	off, err := safecast.Conv[uint32](offset)
	if err != nil {
		return nil
	}
	var out []contracts.Cursor
	declare := func(kind contracts.CursorKind, d *sitter.Node) {
		if name := declaratorName(d); name != nil {
			out = append(out, contracts.Cursor{
				Kind:     kind,
				Spelling: name.Content(pf.src),
				Path:     pf.path,
				Location: pointPosition(name.StartPoint()),
			})
		}
	}

	n := pf.tree.RootNode()
	for n != nil {
		switch n.Type() {
		case "function_definition":
			if fd := functionDeclarator(n.ChildByFieldName("declarator")); fd != nil {
				if params := fd.ChildByFieldName("parameters"); params != nil {
					for i := 0; i < int(params.NamedChildCount()); i++ {
						if p := params.NamedChild(i); p != nil && p.Type() == "parameter_declaration" {
							declare(contracts.CursorVariableDecl, p.ChildByFieldName("declarator"))
						}
					}
				}
			}
		case "compound_statement", "for_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child == nil || child.StartByte() >= off {
					break
				}
				if child.Type() != "declaration" {
					continue
				}
				for _, d := range fieldChildren(child, "declarator") {
					if isFunction(d) {
						declare(contracts.CursorFunctionDecl, d)
					} else {
						declare(contracts.CursorVariableDecl, d)
					}
				}
			}
		}
		n = childContaining(n, off)
	}
	return out
}

func childContaining(n *sitter.Node, off uint32) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child != nil && child.StartByte() <= off && off <= child.EndByte() {
			return child
		}
	}
	return nil
}
