// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"

	"github.com/gomlx/whalecalls/pkg/ingest"
	"github.com/gomlx/whalecalls/pkg/manifest"
	"github.com/gomlx/whalecalls/pkg/support/sets"
	"github.com/pkg/errors"
)

// maxListed is the number of offending clips listed per problem.
const maxListed = 3

// Check verifies how the subsets relate to each other and returns one message per problem found:
// train and val must be disjoint and together hold exactly the clips of all, noise clips must be
// negative train clips, and test clips must not be in all.
//
// manifestPaths are given in manifest.Subsets order.
func Check(manifestPaths []string) (problems []string, err error) {
	if len(manifestPaths) != len(manifest.Subsets) {
		return nil, errors.Errorf("expected %d manifests (%v), got %d", len(manifest.Subsets), manifest.Subsets, len(manifestPaths))
	}
	records := make(map[manifest.Subset][]manifest.Record, len(manifestPaths))
	audios := make(map[manifest.Subset]sets.Set[string], len(manifestPaths))
	for ii, p := range manifestPaths {
		subset := manifest.Subsets[ii]
		records[subset], err = manifest.Read(p)
		if err != nil {
			return nil, err
		}
		audios[subset] = sets.FromSlice(records[subset], func(r manifest.Record) string { return r.Audio })
	}

	report := func(s sets.Set[string], format string, args ...any) {
		if len(s) == 0 {
			return
		}
		listed := sets.Sorted(s)
		if len(listed) > maxListed {
			listed = listed[:maxListed]
		}
		problems = append(problems, fmt.Sprintf("%s (%d clips, e.g. %q)", fmt.Sprintf(format, args...), len(s), listed))
	}
	train, val, all := audios[manifest.SubsetTrain], audios[manifest.SubsetVal], audios[manifest.SubsetAll]
	report(train.Intersection(val), "train and val overlap")
	trainAndVal := train.Union(val)
	report(all.Sub(trainAndVal), "clips of all missing from train and val")
	report(trainAndVal.Sub(all), "clips of train and val missing from all")

	trainNegatives := sets.Make[string]()
	for _, r := range records[manifest.SubsetTrain] {
		if r.Label == ingest.NegativeLabel {
			trainNegatives.Insert(r.Audio)
		}
	}
	report(audios[manifest.SubsetNoise].Sub(trainNegatives), "noise clips that are not negative train clips")
	report(audios[manifest.SubsetTest].Intersection(all), "test clips also in all")
	return problems, nil
}
