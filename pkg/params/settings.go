package params

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/store"
)

// Configuration parameter keys.
const (
	KeyMaxLength      = "argument.max-length"
	KeyValidationMode = "argument-count-validation-mode"
	KeyDefaultPattern = "display-name-default-pattern"
)

// ValidationMode controls argument count validation.
type ValidationMode string

const (
	ModeDefault ValidationMode = domain.ValidationDefault
	ModeNone    ValidationMode = domain.ValidationNone
	ModeStrict  ValidationMode = domain.ValidationStrict
)

// ParseValidationMode accepts the mode names in any case. Empty means ModeDefault.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch m := ValidationMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return ModeDefault, nil
	case ModeDefault, ModeNone, ModeStrict:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported argument count validation mode %q", s)
	}
}

var settingsNamespace = store.NewNamespace("arbor", "params", "settings")

// effectiveMode resolves the validation mode of a template. DEFAULT defers to the
// configuration value, which is read once per run and cached in the root scope.
func effectiveMode(ec *extension.Context, cfg *domain.TemplateConfig) (ValidationMode, error) {
	var local string
	if cfg != nil {
		local = cfg.ArgumentCountValidation
	}
	mode, err := ParseValidationMode(local)
	if err != nil {
		return "", &domain.ConfigurationError{
			Code:    domain.CodeUnsupportedMode,
			Subject: fmt.Sprintf("template %q", ec.Node.ID),
			Err:     err,
		}
	}
	if mode != ModeDefault {
		return mode, nil
	}
	if ec.Scope == nil {
		return globalMode(ec), nil
	}

	v, err := ec.Scope.Root().GetOrCompute(settingsNamespace, KeyValidationMode, func() (any, error) {
		return globalMode(ec), nil
	})
	if err != nil {
		return "", err
	}
	return v.(ValidationMode), nil
}

func globalMode(ec *extension.Context) ValidationMode {
	raw, ok := ec.Config.Get(KeyValidationMode)
	if !ok {
		return ModeNone
	}
	mode, err := ParseValidationMode(raw)
	if err != nil || mode == ModeDefault {
		loggerOf(ec).Warn("invalid argument count validation mode, falling back to NONE",
			"key", KeyValidationMode, "value", raw)
		return ModeNone
	}
	return mode
}

// formatSettings reads the display name settings from configuration.
func formatSettings(ec *extension.Context) (defaultPattern string, maxLength int) {
	defaultPattern = ec.Config.GetOr(KeyDefaultPattern, DefaultPattern)

	n, ok, err := ec.Config.Int(KeyMaxLength)
	switch {
	case err != nil || (ok && n < 1):
		raw, _ := ec.Config.Get(KeyMaxLength)
		loggerOf(ec).Warn("invalid argument max length, using default",
			"key", KeyMaxLength, "value", raw, "default", DefaultMaxLength)
		maxLength = DefaultMaxLength
	case ok:
		maxLength = n
	default:
		maxLength = DefaultMaxLength
	}
	return defaultPattern, maxLength
}

func loggerOf(ec *extension.Context) *slog.Logger {
	if ec.Logger != nil {
		return ec.Logger
	}
	return logging.NewNop()
}
