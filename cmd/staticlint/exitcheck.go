package main

import (
	"go/ast"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// ExitCheckAnalyzer reports direct os.Exit calls in the main function of
// package main. Deferred cleanup (logger sync, recorder drain, storage close)
// never runs past os.Exit, so main must return instead.
var ExitCheckAnalyzer = &analysis.Analyzer{
	Name: "exitcheck",
	Doc:  "forbids direct os.Exit calls in the main function of package main",
	Run:  runExitCheck,
}

func isGenerated(file *ast.File) bool {
	for _, cg := range file.Comments {
		if strings.Contains(cg.Text(), "Code generated") {
			return true
		}
	}
	return false
}

func runExitCheck(pass *analysis.Pass) (interface{}, error) {
	if !strings.HasPrefix(pass.Pkg.Path(), "github.com/linkcut/linkcut") {
		return nil, nil
	}
	if pass.Pkg.Name() != "main" {
		return nil, nil
	}

	for _, file := range pass.Files {
		if isGenerated(file) {
			continue
		}
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Name.Name != "main" || fn.Body == nil {
				continue
			}
			ast.Inspect(fn.Body, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				sel, ok := call.Fun.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				ident, ok := sel.X.(*ast.Ident)
				if !ok {
					return true
				}
				if ident.Name == "os" && sel.Sel.Name == "Exit" {
					pass.Reportf(call.Pos(), "direct os.Exit call in main is forbidden")
				}
				return true
			})
		}
	}
	return nil, nil
}
