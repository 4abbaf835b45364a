package merge

import "github.com/rescale-labs/taskorc/internal/models"

// Plan is what Commit resolves immediately: the ordered set of inputs the
// dispatcher turns into numbered sub-download tasks (spec §4.6 commit:
// "parallel sub-downloads into numbered subdirectories"). Mode selection
// and output-name pattern detection need the actual downloaded files and
// run later, once those sub-downloads finish — see SelectMode and
// DetectOutputName.
type Plan struct {
	Inputs []models.MergeInput
	Opts   models.MergeOptions
}

func planFor(inputs []models.MergeInput, opts models.MergeOptions) *Plan {
	ordered := make([]models.MergeInput, len(inputs))
	copy(ordered, inputs)
	return &Plan{Inputs: ordered, Opts: opts}
}
