package domain

// Validation mode names accepted by TemplateConfig.ArgumentCountValidation and the
// argument-count-validation-mode configuration parameter.
const (
	ValidationDefault = "DEFAULT"
	ValidationNone    = "NONE"
	ValidationStrict  = "STRICT"
)

// TemplateConfig is the per-node configuration record of a template.
type TemplateConfig struct {
	// NamePattern is the display name pattern of each invocation.
	// Empty means the configured default pattern.
	NamePattern string `json:"name_pattern,omitempty" yaml:"name_pattern,omitempty" mapstructure:"name_pattern"`

	// ArgumentCountValidation overrides the global validation mode.
	// Empty or DEFAULT defers to configuration.
	ArgumentCountValidation string `json:"argument_count_validation,omitempty" yaml:"argument_count_validation,omitempty" mapstructure:"argument_count_validation"`

	// AllowZeroInvocations lets a template succeed when its sources produce nothing.
	AllowZeroInvocations bool `json:"allow_zero_invocations,omitempty" yaml:"allow_zero_invocations,omitempty" mapstructure:"allow_zero_invocations"`

	// AutoCloseArguments closes io.Closer arguments when their invocation finishes.
	// Nil means true.
	AutoCloseArguments *bool `json:"auto_close_arguments,omitempty" yaml:"auto_close_arguments,omitempty" mapstructure:"auto_close_arguments"`

	Sources []SourceSpec `json:"sources,omitempty" yaml:"sources,omitempty" mapstructure:"sources"`
}

// AutoClose reports whether closeable arguments are closed after each invocation.
func (c *TemplateConfig) AutoClose() bool {
	return c == nil || c.AutoCloseArguments == nil || *c.AutoCloseArguments
}

// SourceSpec declares one argument source as plain data.
// Options are decoded by the factory registered for Kind.
type SourceSpec struct {
	Kind    string         `json:"kind" yaml:"kind" mapstructure:"kind"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
}
