// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package instrument

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Size of the variables of a model, grouped by scope.
type Size struct {
	NumVariables  int
	NumParameters int
	Bytes         uintptr

	// Scopes holds the sizes per scope, truncated to the requested depth, sorted by scope.
	Scopes []ScopeSize
}

// ScopeSize is the size of the variables under one scope.
type ScopeSize struct {
	Scope         string
	NumVariables  int
	NumParameters int
	Bytes         uintptr
}

// ModelSize enumerates the variables under the current scope of ctx, and groups them by their scope truncated to
// depth levels below it (depth <= 0 groups all of them under the current scope).
func ModelSize(ctx *context.Context, depth int) Size {
	var size Size
	perScope := make(map[string]*ScopeSize)
	ctx.EnumerateVariablesInScope(func(v *context.Variable) {
		params, bytes := v.Shape().Size(), v.Shape().Memory()
		size.NumVariables++
		size.NumParameters += params
		size.Bytes += bytes
		scope := truncateScope(ctx.Scope(), v.Scope(), depth)
		s, found := perScope[scope]
		if !found {
			s = &ScopeSize{Scope: scope}
			perScope[scope] = s
		}
		s.NumVariables++
		s.NumParameters += params
		s.Bytes += bytes
	})
	for _, s := range perScope {
		size.Scopes = append(size.Scopes, *s)
	}
	slices.SortFunc(size.Scopes, func(a, b ScopeSize) int { return strings.Compare(a.Scope, b.Scope) })
	return size
}

// truncateScope keeps at most depth levels of scope below base.
func truncateScope(base, scope string, depth int) string {
	if depth <= 0 || !strings.HasPrefix(scope, base) {
		return base
	}
	rest := strings.Trim(strings.TrimPrefix(scope, base), context.ScopeSeparator)
	if rest == "" {
		return base
	}
	parts := strings.Split(rest, context.ScopeSeparator)
	if len(parts) > depth {
		parts = parts[:depth]
	}
	return strings.TrimSuffix(base, context.ScopeSeparator) + context.ScopeSeparator +
		strings.Join(parts, context.ScopeSeparator)
}

// String implements fmt.Stringer.
func (s Size) String() string {
	return fmt.Sprintf("%s variables, %s parameters, %s", humanize.Comma(int64(s.NumVariables)),
		humanize.Comma(int64(s.NumParameters)), humanize.Bytes(uint64(s.Bytes)))
}

// Table renders the sizes per scope, followed by the totals.
func (s Size) Table() string {
	table := NewTable("Scope", "# Variables", "# Parameters", "Memory")
	for _, scope := range s.Scopes {
		table.Row(scope.Scope, humanize.Comma(int64(scope.NumVariables)),
			humanize.Comma(int64(scope.NumParameters)), humanize.Bytes(uint64(scope.Bytes)))
	}
	table.Total("total", humanize.Comma(int64(s.NumVariables)),
		humanize.Comma(int64(s.NumParameters)), humanize.Bytes(uint64(s.Bytes)))
	return table.Render()
}
