package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
)

// structInfo stores parsed information about a Go struct.
type structInfo struct {
	name   string
	fields []fieldInfo
}

// fieldInfo stores parsed information about a struct field.
type fieldInfo struct {
	jsonName string
	goType   string
	optional bool
}

// model is everything typegen learns from the source tree.
type model struct {
	// structs are keyed by "Name" (first package wins) and by "rel/dir:Name".
	structs map[string]*structInfo
	// aliases maps named types to their underlying primitive.
	aliases map[string]string
	// enums maps named types to their declared string constants.
	enums map[string][]string
	// eventIDs maps event struct names to the id their GetId returns.
	eventIDs map[string]string
}

func newModel() *model {
	return &model{
		structs:  map[string]*structInfo{},
		aliases:  map[string]string{},
		enums:    map[string][]string{},
		eventIDs: map[string]string{},
	}
}

// discoverGoDirs returns every directory under root holding non-test Go
// files, skipping vendored code, the examples and typegen itself.
func discoverGoDirs(root string) ([]string, error) {
	skip := map[string]bool{
		"vendor":       true,
		"node_modules": true,
		".git":         true,
		"_examples":    true,
		"typegen":      true,
	}
	seen := map[string]bool{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skip[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(info.Name(), ".go") && !strings.HasSuffix(info.Name(), "_test.go") {
			seen[filepath.Dir(path)] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// load parses dir and merges its declarations into m under rel.
func (m *model) load(dir, rel string) error {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, dir, func(fi os.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, 0)
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		for _, file := range pkg.Files {
			for _, decl := range file.Decls {
				switch d := decl.(type) {
				case *ast.GenDecl:
					m.loadGenDecl(d, rel)
				case *ast.FuncDecl:
					m.loadEventID(d)
				}
			}
		}
	}
	return nil
}

func (m *model) loadGenDecl(d *ast.GenDecl, rel string) {
	switch d.Tok {
	case token.TYPE:
		for _, spec := range d.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			if ident, ok := ts.Type.(*ast.Ident); ok {
				m.aliases[ts.Name.Name] = ident.Name
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			si := parseStruct(ts.Name.Name, st)
			m.structs[rel+":"+ts.Name.Name] = si
			if _, exists := m.structs[ts.Name.Name]; !exists {
				m.structs[ts.Name.Name] = si
			}
		}
	case token.CONST:
		for _, spec := range d.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok || vs.Type == nil {
				continue
			}
			typeName := typeExprToString(vs.Type)
			for _, val := range vs.Values {
				lit, ok := val.(*ast.BasicLit)
				if !ok || lit.Kind != token.STRING {
					continue
				}
				m.enums[typeName] = append(m.enums[typeName], strings.Trim(lit.Value, "\""))
			}
		}
	}
}

// loadEventID records `func (e *X) GetId() string { return "id" }`.
func (m *model) loadEventID(fn *ast.FuncDecl) {
	if fn.Name.Name != "GetId" || fn.Recv == nil || len(fn.Recv.List) != 1 || fn.Body == nil || len(fn.Body.List) != 1 {
		return
	}
	ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		return
	}
	lit, ok := ret.Results[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return
	}
	recv := strings.TrimPrefix(typeExprToString(fn.Recv.List[0].Type), "*")
	m.eventIDs[recv] = strings.Trim(lit.Value, "\"")
}

// parseStruct keeps the JSON-visible fields of a struct.
func parseStruct(name string, st *ast.StructType) *structInfo {
	si := &structInfo{name: name}
	for _, field := range st.Fields.List {
		if field.Tag == nil {
			continue
		}
		tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
		parts := strings.Split(tag.Get("json"), ",")
		jsonName := parts[0]
		if jsonName == "" || jsonName == "-" || isSecret(jsonName) {
			continue
		}
		omitempty := false
		for _, p := range parts[1:] {
			if p == "omitempty" {
				omitempty = true
			}
		}
		_, pointer := field.Type.(*ast.StarExpr)
		si.fields = append(si.fields, fieldInfo{
			jsonName: jsonName,
			goType:   typeExprToString(field.Type),
			optional: omitempty || pointer,
		})
	}
	return si
}

func isSecret(jsonName string) bool {
	return jsonName == "api_key" || jsonName == "password"
}

// typeExprToString converts an AST type expression to Go source form.
func typeExprToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + typeExprToString(t.X)
	case *ast.ArrayType:
		return "[]" + typeExprToString(t.Elt)
	case *ast.MapType:
		return "map[" + typeExprToString(t.Key) + "]" + typeExprToString(t.Value)
	case *ast.SelectorExpr:
		return typeExprToString(t.X) + "." + t.Sel.Name
	case *ast.InterfaceType:
		return "interface{}"
	default:
		return "unknown"
	}
}
