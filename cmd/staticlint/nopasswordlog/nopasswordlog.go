// Package nopasswordlog defines an analyzer that reports logging calls
// whose arguments mention passwords. Credentials and their hashes must
// never reach the log output, and a log argument named after them is
// almost always such a leak.
package nopasswordlog

import (
	"go/ast"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer reports log statements that reference password values.
var Analyzer = &analysis.Analyzer{
	Name: "nopasswordlog",
	Doc:  "prohibits passing password-related values to logging calls",
	Run:  run,
}

var logMethodPrefixes = []string{
	"Debug", "Info", "Warn", "Error", "Fatal", "Panic", "Print",
}

func isLogMethod(name string) bool {
	for _, prefix := range logMethodPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func mentionsPassword(expr ast.Expr) bool {
	found := false
	ast.Inspect(expr, func(n ast.Node) bool {
		ident, ok := n.(*ast.Ident)
		if ok && strings.Contains(strings.ToLower(ident.Name), "password") {
			found = true
			return false
		}
		return true
	})
	return found
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok || !isLogMethod(sel.Sel.Name) {
				return true
			}

			for _, arg := range call.Args {
				if mentionsPassword(arg) {
					pass.Reportf(arg.Pos(), "password-related value passed to a logging call")
				}
			}

			return true
		})
	}
	return nil, nil
}
