package loam

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/plan"
)

// KindPlan marks the document holding plan-wide settings instead of a node.
const KindPlan = "plan"

// NodeMetadata is the front matter (or JSON/YAML body) of one plan document.
// It uses "mapstructure" tags to match the keys of the YAML plan format.
type NodeMetadata struct {
	ID     string `json:"id" mapstructure:"id"`
	Kind   string `json:"kind" mapstructure:"kind"`
	Parent string `json:"parent" mapstructure:"parent"`
	// Order sorts siblings; ties break on ID.
	Order int `json:"order" mapstructure:"order"`

	DisplayName string                 `json:"display_name" mapstructure:"display_name"`
	Extensions  []string               `json:"extensions" mapstructure:"extensions"`
	Parameters  []domain.Parameter     `json:"parameters" mapstructure:"parameters"`
	Tags        []string               `json:"tags" mapstructure:"tags"`
	EnabledIf   string                 `json:"enabled_if" mapstructure:"enabled_if"`
	DisabledIf  string                 `json:"disabled_if" mapstructure:"disabled_if"`
	Assert      string                 `json:"assert" mapstructure:"assert"`
	Template    *domain.TemplateConfig `json:"template,omitempty" mapstructure:"template"`

	// Plan documents only.
	Name          string               `json:"name" mapstructure:"name"`
	Configuration map[string]any       `json:"configuration" mapstructure:"configuration"`
	Define        []plan.ExtensionSpec `json:"define" mapstructure:"define"`
}
