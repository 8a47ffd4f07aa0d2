package memory

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ExportedMethodsDocumented(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "memory.go", nil, parser.ParseComments)
	require.NoError(t, err)

	var methods int
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !fn.Name.IsExported() {
			continue
		}
		methods++
		assert.NotNil(t, fn.Doc, "%s has no doc comment", fn.Name.Name)
	}
	assert.Greater(t, methods, 15)
}
