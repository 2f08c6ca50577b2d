// Package build is a helper package for building the loop fusion IR of Go
// source code, through golang.org/x/tools/go/ssa.
//
// Usage
//
// There are two ways of building IR from source code:
//
// Build from a list of files or package patterns
//
// This is the normal usage, where files or patterns are supplied (usually as
// command line arguments) and loaded with golang.org/x/tools/go/packages.
//
// Build from a Reader
//
// This is mostly used for testing or demo, where the input source code is a
// single file read from a given io.Reader and type checked in memory.
//
// In both cases every function with a body is lowered to an ir.Func. Functions
// the lowering does not support are reported through Program.Errs and left
// out; they do not stop the others from being lowered.
package build
