package runtime_test

import (
	"testing"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTree(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		root := container("root", test("a"), &domain.Node{ID: "tpl", Kind: domain.KindTemplate, Template: &domain.TemplateConfig{}})
		domain.Link(root)
		assert.NoError(t, runtime.ValidateTree(root))
	})

	t.Run("collects every problem", func(t *testing.T) {
		misplaced := test("misplaced")
		misplaced.Template = &domain.TemplateConfig{}
		typed := test("typed")
		typed.Parameters = []domain.Parameter{{Name: "p", Type: "[int"}}
		root := container("root", test(""), misplaced, typed)
		domain.Link(root)

		err := runtime.ValidateTree(root)
		require.Error(t, err)
		errs := schema.ValidationErrors(err)
		require.Len(t, errs, 3)
		assert.ErrorContains(t, errs[0], "node ID must not be empty")
		assert.ErrorContains(t, errs[1], `field "root/misplaced": template configuration on a non-template node`)
		assert.ErrorContains(t, errs[2], `parameter "p"`)
		assert.Contains(t, err.Error(), "3 validation errors:")
	})
}
