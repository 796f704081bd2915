// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package experiment

import "time"

// SetNowFunc overrides the registry clock (for testing).
func (r *Registry) SetNowFunc(fn func() time.Time) {
	r.nowFunc = fn
}
