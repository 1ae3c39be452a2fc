//go:build integration

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/testutil"
)

func TestCatalogRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := testutil.SetupPostgres(ctx, t)
	defer pg.Cleanup()

	repo := NewCatalogRepository(pg.DB)

	t.Run("category names are unique", func(t *testing.T) {
		c := domain.Category{Name: "Footwear"}
		require.NoError(t, repo.CreateCategory(ctx, &c))

		err := repo.CreateCategory(ctx, &domain.Category{Name: "Footwear"})
		assert.ErrorIs(t, err, domain.ErrConflict)

		_, err = repo.UpdateCategory(ctx, c.ID, "Apparel")
		assert.ErrorIs(t, err, domain.ErrConflict)

		updated, err := repo.UpdateCategory(ctx, c.ID, "Shoes")
		require.NoError(t, err)
		assert.Equal(t, "Shoes", updated.Name)

		_, err = repo.GetCategory(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("product lifecycle", func(t *testing.T) {
		p := domain.Product{
			Name:       "Wool Scarf",
			Price:      decimal.RequireFromString("30.00"),
			Stock:      5,
			CategoryID: testutil.AccessoriesID,
		}
		require.NoError(t, repo.CreateProduct(ctx, &p))

		got, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Accessories", got.Category)
		assert.True(t, got.Price.Equal(decimal.RequireFromString("30")))

		err = repo.CreateProduct(ctx, &domain.Product{Name: "Wool Scarf", Price: decimal.NewFromInt(1), CategoryID: testutil.AccessoriesID})
		assert.ErrorIs(t, err, domain.ErrConflict)

		err = repo.CreateProduct(ctx, &domain.Product{Name: "Ghost", Price: decimal.NewFromInt(1), CategoryID: uuid.NewString()})
		assert.ErrorIs(t, err, domain.ErrValidation)

		price := decimal.RequireFromString("27.50")
		image := "scarf.png"
		updated, err := repo.UpdateProduct(ctx, p.ID, ProductUpdate{Price: &price, Image: &image})
		require.NoError(t, err)
		assert.Equal(t, "Wool Scarf", updated.Name)
		assert.Equal(t, 5, updated.Stock)
		assert.True(t, updated.Price.Equal(price))
		require.NotNil(t, updated.Image)
		assert.Equal(t, image, *updated.Image)

		require.NoError(t, repo.ArchiveProduct(ctx, p.ID))

		active, err := repo.ListProducts(ctx)
		require.NoError(t, err)
		for _, a := range active {
			assert.NotEqual(t, p.ID, a.ID)
		}

		all, err := repo.ListAllProducts(ctx)
		require.NoError(t, err)
		assert.Greater(t, len(all), len(active))

		archived, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, archived.Archived)

		assert.ErrorIs(t, repo.ArchiveProduct(ctx, uuid.NewString()), domain.ErrNotFound)
	})
}
