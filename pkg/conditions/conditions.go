// Package conditions provides ready-made Condition extensions.
package conditions

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"github.com/aretw0/arbor/pkg/extension"
)

// Disabled unconditionally disables every node it is visible to.
func Disabled(id, reason string) extension.Extension {
	if reason == "" {
		reason = "disabled"
	}
	return extension.Extension{
		ID: id,
		Condition: extension.ConditionFunc(func(context.Context, *extension.Context) (extension.ConditionResult, error) {
			return extension.Disabled(reason), nil
		}),
	}
}

// OnOS enables nodes only on the listed operating systems (GOOS values).
func OnOS(id string, goos ...string) extension.Extension {
	return osCondition(id, goos, true)
}

// NotOnOS disables nodes on the listed operating systems.
func NotOnOS(id string, goos ...string) extension.Extension {
	return osCondition(id, goos, false)
}

func osCondition(id string, goos []string, enableOnMatch bool) extension.Extension {
	current := runtime.GOOS
	return extension.Extension{
		ID: id,
		Condition: extension.ConditionFunc(func(context.Context, *extension.Context) (extension.ConditionResult, error) {
			match := slices.Contains(goos, current)
			if match == enableOnMatch {
				return extension.Enabled(fmt.Sprintf("running on %s", current)), nil
			}
			if enableOnMatch {
				return extension.Disabled(fmt.Sprintf("not on %s", strings.Join(goos, ", "))), nil
			}
			return extension.Disabled(fmt.Sprintf("disabled on %s", current)), nil
		}),
	}
}

// IfEnv enables nodes when the environment variable matches pattern entirely.
func IfEnv(id, name, pattern string) (extension.Extension, error) {
	return envCondition(id, name, pattern, true)
}

// UnlessEnv disables nodes when the environment variable matches pattern entirely.
func UnlessEnv(id, name, pattern string) (extension.Extension, error) {
	return envCondition(id, name, pattern, false)
}

func envCondition(id, name, pattern string, enableOnMatch bool) (extension.Extension, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return extension.Extension{}, fmt.Errorf("invalid pattern for environment variable %s: %w", name, err)
	}
	return extension.Extension{
		ID: id,
		Condition: extension.ConditionFunc(func(context.Context, *extension.Context) (extension.ConditionResult, error) {
			value, set := os.LookupEnv(name)
			match := set && re.MatchString(value)
			switch {
			case match && enableOnMatch:
				return extension.Enabled(fmt.Sprintf("environment variable [%s] matches %q", name, pattern)), nil
			case match:
				return extension.Disabled(fmt.Sprintf("environment variable [%s] matches %q", name, pattern)), nil
			case enableOnMatch:
				return extension.Disabled(fmt.Sprintf("environment variable [%s] does not match %q", name, pattern)), nil
			default:
				return extension.Enabled(fmt.Sprintf("environment variable [%s] does not match %q", name, pattern)), nil
			}
		}),
	}, nil
}

// Tagged enables nodes carrying at least one of tags.
func Tagged(id string, tags ...string) extension.Extension {
	return tagCondition(id, tags, true)
}

// NotTagged disables nodes carrying any of tags.
func NotTagged(id string, tags ...string) extension.Extension {
	return tagCondition(id, tags, false)
}

func tagCondition(id string, tags []string, enableOnMatch bool) extension.Extension {
	return extension.Extension{
		ID: id,
		Condition: extension.ConditionFunc(func(_ context.Context, ec *extension.Context) (extension.ConditionResult, error) {
			var hit string
			for _, tag := range ec.Node.Tags {
				if slices.Contains(tags, tag) {
					hit = tag
					break
				}
			}
			switch {
			case hit != "" && enableOnMatch:
				return extension.Enabled(fmt.Sprintf("tagged %q", hit)), nil
			case hit != "":
				return extension.Disabled(fmt.Sprintf("excluded by tag %q", hit)), nil
			case enableOnMatch:
				return extension.Disabled(fmt.Sprintf("none of the tags %s", strings.Join(tags, ", "))), nil
			default:
				return extension.Enabled("no excluded tag"), nil
			}
		}),
	}
}
