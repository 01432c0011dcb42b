package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gyaneshwarpardhi/never2/internal/params"
)

var validate = newValidator()

// newValidator reports fields by their YAML keys.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the config for:
//   - Struct constraints declared in the schema tags
//   - An input dimension made of positive sizes
//   - Distinct input and output identifiers
//   - A readable catalog file, when one is configured
func Validate(cfg *Config) error {
	var errs []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q (got %v)", fieldPath(fe.Namespace()), fe.Tag(), fe.Value()))
		}
	}

	if cfg.Editor.InputDim != "" {
		dim, err := params.TextToShape(cfg.Editor.InputDim)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("editor.input_dim: %s", err))
		default:
			for _, k := range dim {
				if k <= 0 {
					errs = append(errs, fmt.Sprintf("editor.input_dim: size %d must be positive", k))
					break
				}
			}
		}
	}
	if cfg.Editor.InputID != "" && cfg.Editor.InputID == cfg.Editor.OutputID {
		errs = append(errs, fmt.Sprintf("editor: input_id and output_id must differ (both %q)", cfg.Editor.InputID))
	}
	if p := cfg.Editor.CatalogPath; p != "" {
		if _, err := os.Stat(p); err != nil {
			errs = append(errs, fmt.Sprintf("editor.catalog_path: %s", err))
		}
	}
	for name := range cfg.Jobs.Verifiers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "jobs.verifiers: strategy name is required")
		}
	}
	for name := range cfg.Jobs.Trainers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "jobs.trainers: strategy name is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// fieldPath drops the root type from a namespace: "Config.editor.input_id"
// becomes "editor.input_id".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
