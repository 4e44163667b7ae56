// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[string](10)
	assert.Len(t, s, 0)

	s.Insert("data/train/a.aiff", "data/train/b.aiff")
	assert.True(t, s.Has("data/train/a.aiff"))
	assert.False(t, s.Has("data/test/a.aiff"))

	s2 := FromSlice([]string{"B.AIFF", "C.AIFF"}, func(e string) string {
		return "data/train/" + strings.ToLower(e)
	})
	assert.Equal(t, []string{"data/train/b.aiff", "data/train/c.aiff"}, Sorted(s2))

	assert.Equal(t, []string{"data/train/a.aiff"}, Sorted(s.Sub(s2)))
	assert.Equal(t, []string{"data/train/b.aiff"}, Sorted(s.Intersection(s2)))
	assert.Equal(t, []string{"data/train/b.aiff"}, Sorted(s2.Intersection(s)))
	assert.Len(t, s.Union(s2), 3)

	assert.False(t, s.Equal(s2))
	assert.True(t, s.Union(s2).Equal(s2.Union(s)))
	assert.Empty(t, Sorted(Make[int]()))
}
