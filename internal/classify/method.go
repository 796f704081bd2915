// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package classify

import (
	"strings"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Method selects how a class score is derived from its example embeddings.
type Method string

const (
	// MethodCosine scores a class by the best cosine similarity over its examples.
	MethodCosine Method = "cosine"
	// MethodCentroid scores a class by cosine similarity to the mean example.
	MethodCentroid Method = "centroid"
)

// Methods lists the supported methods.
var Methods = []Method{MethodCosine, MethodCentroid}

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	return m == MethodCosine || m == MethodCentroid
}

// ParseMethod converts a case-insensitive name to a Method.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", sigilerr.Errorf(sigilerr.CodeClassifyMethodInvalid,
			"unknown classification method %q (expected cosine or centroid)", s)
	}
	return m, nil
}
