package plan

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/conditions"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/expressions"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/resolvers"
	"github.com/mitchellh/mapstructure"
)

// Extension kinds available to plan definitions.
const (
	KindDisabled   = "disabled"
	KindEnabledIf  = "enabled_if"
	KindDisabledIf = "disabled_if"
	KindOnOS       = "on_os"
	KindNotOnOS    = "not_on_os"
	KindIfEnv      = "if_env"
	KindUnlessEnv  = "unless_env"
	KindTagged     = "tagged"
	KindNotTagged  = "not_tagged"
	KindValue      = "value"
	KindTyped      = "typed"
)

type reasonOptions struct {
	Reason string `mapstructure:"reason"`
}

type expressionOptions struct {
	Expression string `mapstructure:"expression"`
}

type osOptions struct {
	OS []string `mapstructure:"os"`
}

type envOptions struct {
	Name    string `mapstructure:"name"`
	Pattern string `mapstructure:"pattern"`
}

type tagOptions struct {
	Tags []string `mapstructure:"tags"`
}

type valueOptions struct {
	Parameter string `mapstructure:"parameter"`
	Type      string `mapstructure:"type"`
	Value     any    `mapstructure:"value"`
}

// BuildExtension turns a definition into an extension.
func BuildExtension(spec ExtensionSpec) (extension.Extension, error) {
	fail := func(err error) (extension.Extension, error) {
		return extension.Extension{}, &domain.ConfigurationError{
			Code:    domain.CodeInvalidExtension,
			Subject: fmt.Sprintf("extension %q", spec.ID),
			Err:     err,
		}
	}
	if spec.ID == "" {
		return fail(fmt.Errorf("extension ID cannot be empty"))
	}

	switch spec.Kind {
	case KindDisabled:
		var o reasonOptions
		if err := decodeOptions(spec.Options, &o); err != nil {
			return fail(err)
		}
		return conditions.Disabled(spec.ID, o.Reason), nil

	case KindEnabledIf, KindDisabledIf:
		var o expressionOptions
		if err := decodeOptions(spec.Options, &o); err != nil {
			return fail(err)
		}
		mode := expressions.EnabledIf
		if spec.Kind == KindDisabledIf {
			mode = expressions.DisabledIf
		}
		ext, err := expressions.Condition(spec.ID, o.Expression, mode)
		if err != nil {
			return fail(err)
		}
		return ext, nil

	case KindOnOS, KindNotOnOS:
		var o osOptions
		if err := decodeOptions(spec.Options, &o); err != nil {
			return fail(err)
		}
		if len(o.OS) == 0 {
			return fail(fmt.Errorf("option os is required"))
		}
		if spec.Kind == KindOnOS {
			return conditions.OnOS(spec.ID, o.OS...), nil
		}
		return conditions.NotOnOS(spec.ID, o.OS...), nil

	case KindIfEnv, KindUnlessEnv:
		var o envOptions
		if err := decodeOptions(spec.Options, &o); err != nil {
			return fail(err)
		}
		build := conditions.IfEnv
		if spec.Kind == KindUnlessEnv {
			build = conditions.UnlessEnv
		}
		ext, err := build(spec.ID, o.Name, o.Pattern)
		if err != nil {
			return fail(err)
		}
		return ext, nil

	case KindTagged, KindNotTagged:
		var o tagOptions
		if err := decodeOptions(spec.Options, &o); err != nil {
			return fail(err)
		}
		if spec.Kind == KindTagged {
			return conditions.Tagged(spec.ID, o.Tags...), nil
		}
		return conditions.NotTagged(spec.ID, o.Tags...), nil

	case KindValue:
		var o valueOptions
		if err := decodeOptions(spec.Options, &o); err != nil {
			return fail(err)
		}
		if o.Parameter == "" {
			return fail(fmt.Errorf("option parameter is required"))
		}
		return resolvers.Value(spec.ID, o.Parameter, o.Value), nil

	case KindTyped:
		var o valueOptions
		if err := decodeOptions(spec.Options, &o); err != nil {
			return fail(err)
		}
		ext, err := resolvers.Typed(spec.ID, o.Type, o.Value)
		if err != nil {
			return fail(err)
		}
		return ext, nil

	default:
		return fail(fmt.Errorf("unknown extension kind %q", spec.Kind))
	}
}

func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}
