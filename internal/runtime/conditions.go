package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/registry"
)

// DefaultEnabledReason is reported when no condition disabled a node.
const DefaultEnabledReason = "no condition disabled the node"

// EvaluateConditions runs the visible conditions in order and returns the first
// disabling verdict. A failing condition is a configuration error; the node must not be
// treated as enabled.
func EvaluateConditions(ctx context.Context, decls []registry.Declaration, ec *extension.Context) (extension.ConditionResult, error) {
	for _, d := range registry.Filter(decls, extension.CapabilityCondition) {
		res, err := d.Extension.Condition.Evaluate(ctx, ec)
		if err != nil {
			return extension.ConditionResult{}, &domain.ConfigurationError{
				Code:    domain.CodeConditionFailed,
				Subject: fmt.Sprintf("condition %q on node %q", d.Extension.ID, ec.Node.ID),
				Err:     err,
			}
		}
		if !res.Enabled {
			if res.Reason == "" {
				res.Reason = fmt.Sprintf("disabled by %s", d.Extension.ID)
			}
			return res, nil
		}
	}
	return extension.Enabled(DefaultEnabledReason), nil
}
