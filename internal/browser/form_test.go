// internal/browser/form_test.go
package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/marketpilot/api/schemas"
)

func TestOpenCreateForm(t *testing.T) {
	t.Run("form shown directly", func(t *testing.T) {
		page := newFakePage("")
		page.show(titleStrategies[1])
		m := newTestMarketplace(t, page)

		require.NoError(t, m.OpenCreateForm(context.Background()))
		assert.Equal(t, []string{"navigate https://www.facebook.com/marketplace/create/item"}, page.history())
	})

	t.Run("chooser page clicks through to the form", func(t *testing.T) {
		page := newFakePage("")
		page.show(createEntryStrategies[1])
		page.onClick = func(p *fakePage, selector string) {
			if selector == createEntryStrategies[1] {
				p.show(titleStrategies[0])
			}
		}
		m := newTestMarketplace(t, page)

		require.NoError(t, m.OpenCreateForm(context.Background()))
		assert.True(t, page.hasCall("click "+createEntryStrategies[1]))
	})

	t.Run("form never appears", func(t *testing.T) {
		m := newTestMarketplace(t, newFakePage(""))
		assert.ErrorIs(t, m.OpenCreateForm(context.Background()), schemas.ErrElementNotFound)
	})
}

func TestFillField(t *testing.T) {
	t.Run("text fields use their first matching strategy", func(t *testing.T) {
		page := newFakePage("")
		page.show(titleStrategies[2])
		page.show(priceStrategies[len(priceStrategies)-1])
		page.show(descriptionStrategies[0])
		m := newTestMarketplace(t, page)
		ctx := context.Background()

		require.NoError(t, m.FillField(ctx, schemas.FieldTitle, "Oak Desk"))
		require.NoError(t, m.FillField(ctx, schemas.FieldPrice, "100"))
		require.NoError(t, m.FillField(ctx, schemas.FieldDescription, "Solid oak"))

		assert.Equal(t, "Oak Desk", page.typed[titleStrategies[2]])
		assert.Equal(t, "100", page.typed[priceStrategies[len(priceStrategies)-1]])
		assert.Equal(t, "Solid oak", page.typed[descriptionStrategies[0]])
	})

	t.Run("missing field", func(t *testing.T) {
		m := newTestMarketplace(t, newFakePage(""))
		err := m.FillField(context.Background(), schemas.FieldPrice, "100")
		assert.ErrorIs(t, err, schemas.ErrElementNotFound)
	})

	t.Run("category picks the matching suggestion", func(t *testing.T) {
		page := newFakePage("")
		page.show(categoryStrategies[0])
		page.show(optionStrategies("Furniture")[1])
		m := newTestMarketplace(t, page)

		require.NoError(t, m.FillField(context.Background(), schemas.FieldCategory, "Furniture"))
		assert.Equal(t, []string{"type " + categoryStrategies[0], "click " + optionStrategies("Furniture")[1]}, page.history())
	})

	t.Run("category without suggestions commits with enter", func(t *testing.T) {
		page := newFakePage("")
		page.show(categoryStrategies[3])
		m := newTestMarketplace(t, page)

		require.NoError(t, m.FillField(context.Background(), schemas.FieldCategory, "Furniture"))
		assert.Equal(t, []string{"type " + categoryStrategies[3], "enter"}, page.history())
	})

	t.Run("condition opens the dropdown and picks by text", func(t *testing.T) {
		page := newFakePage("")
		page.show(openConditionStrategies[0])
		page.onClick = func(p *fakePage, selector string) {
			if selector == openConditionStrategies[0] {
				p.show(optionStrategies("Used - Good")[0])
			}
		}
		m := newTestMarketplace(t, page)

		require.NoError(t, m.FillField(context.Background(), schemas.FieldCondition, "Used - Good"))
		assert.Equal(t, []string{"click " + openConditionStrategies[0], "click " + optionStrategies("Used - Good")[0]}, page.history())
	})

	t.Run("unsupported kind", func(t *testing.T) {
		m := newTestMarketplace(t, newFakePage(""))
		assert.Error(t, m.FillField(context.Background(), schemas.FieldKind("brand"), "x"))
	})
}

func TestUploadFiles(t *testing.T) {
	page := newFakePage("")
	page.show(photoInputStrategies[1])
	m := newTestMarketplace(t, page)

	require.NoError(t, m.UploadFiles(context.Background(), []string{"/photos/26_1.jpg", "/photos/26_2.jpg"}))
	assert.Equal(t, []string{"upload " + photoInputStrategies[1] + " /photos/26_1.jpg,/photos/26_2.jpg"}, page.history())
}

func TestUploadFilesWaitsForProgress(t *testing.T) {
	page := newFakePage("")
	page.show(photoInputStrategies[0])
	page.show(uploadBusyStrategy)
	m := newTestMarketplace(t, page)

	err := m.UploadFiles(context.Background(), []string{"/photos/a.jpg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still in progress")
}

func TestAdvanceAndPublish(t *testing.T) {
	page := newFakePage("")
	page.show(nextStrategies[1])
	page.show(publishStrategies[0])
	m := newTestMarketplace(t, page)
	ctx := context.Background()

	require.NoError(t, m.AdvancePage(ctx))
	require.NoError(t, m.Publish(ctx))
	assert.Equal(t, []string{"click " + nextStrategies[1], "click " + publishStrategies[0]}, page.history())
}

func TestPublishDisabled(t *testing.T) {
	m := newTestMarketplace(t, newFakePage(""))
	assert.ErrorIs(t, m.Publish(context.Background()), schemas.ErrElementNotFound)
}
