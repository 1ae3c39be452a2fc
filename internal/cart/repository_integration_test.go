//go:build integration

package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/testutil"
)

func TestCartRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := testutil.SetupPostgres(ctx, t)
	defer pg.Cleanup()

	repo := NewCartRepository(pg.DB)

	t.Run("add merges lines and recomputes", func(t *testing.T) {
		userID := testutil.SeedCustomer(ctx, t, pg.DB)

		c, err := repo.AddItems(ctx, userID, []domain.AddItem{
			{ProductID: testutil.ToteID, Quantity: 2},
			{ProductID: testutil.JacketID, Quantity: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, c.Quantity)
		assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("45.00")))

		c, err = repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: testutil.ToteID, Quantity: 1}})
		require.NoError(t, err)
		require.Len(t, c.Items, 2)
		assert.Equal(t, 4, c.Quantity)

		stored, err := repo.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.True(t, stored.Consistent())
		assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("55.00")))
	})

	t.Run("captured price survives catalog change", func(t *testing.T) {
		userID := testutil.SeedCustomer(ctx, t, pg.DB)
		productID := testutil.SeedProduct(ctx, t, pg.DB, "8.00", 10)

		_, err := repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: productID, Quantity: 1}})
		require.NoError(t, err)

		_, err = pg.DB.ExecContext(ctx, `UPDATE products SET price = 9.00 WHERE id = $1`, productID)
		require.NoError(t, err)

		c, err := repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: productID, Quantity: 1}})
		require.NoError(t, err)
		require.Len(t, c.Items, 1)
		assert.True(t, c.Items[0].Price.Equal(decimal.RequireFromString("8.00")))
		assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("16.00")))
	})

	t.Run("archived and unknown products are not found", func(t *testing.T) {
		userID := testutil.SeedCustomer(ctx, t, pg.DB)
		productID := testutil.SeedProduct(ctx, t, pg.DB, "5.00", 10)
		_, err := pg.DB.ExecContext(ctx, `UPDATE products SET is_archive = TRUE WHERE id = $1`, productID)
		require.NoError(t, err)

		_, err = repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: productID, Quantity: 1}})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: uuid.New().String(), Quantity: 1}})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("failed batch leaves cart untouched", func(t *testing.T) {
		userID := testutil.SeedCustomer(ctx, t, pg.DB)

		_, err := repo.AddItems(ctx, userID, []domain.AddItem{
			{ProductID: testutil.ToteID, Quantity: 1},
			{ProductID: uuid.New().String(), Quantity: 1},
		})
		require.ErrorIs(t, err, domain.ErrNotFound)

		c, err := repo.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, c.Items)
		assert.Equal(t, 0, c.Quantity)
	})

	t.Run("update and delete", func(t *testing.T) {
		userID := testutil.SeedCustomer(ctx, t, pg.DB)
		c, err := repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: testutil.ToteID, Quantity: 2}})
		require.NoError(t, err)
		itemID := c.Items[0].ID

		c, err = repo.UpdateItem(ctx, userID, itemID, domain.ItemMutation{Action: domain.ActionSet, Quantity: 5})
		require.NoError(t, err)
		assert.Equal(t, 5, c.Quantity)
		assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("50.00")))

		_, err = repo.UpdateItem(ctx, userID, itemID, domain.ItemMutation{Action: domain.ActionSet, Quantity: 0})
		assert.ErrorIs(t, err, domain.ErrValidation)
		requireCart(t, repo, userID, 5, "50.00")

		other := testutil.SeedCustomer(ctx, t, pg.DB)
		fillOther, err := repo.AddItems(ctx, other, []domain.AddItem{{ProductID: testutil.JacketID, Quantity: 1}})
		require.NoError(t, err)

		_, err = repo.DeleteItem(ctx, other, itemID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.DeleteItem(ctx, userID, uuid.New().String())
		assert.ErrorIs(t, err, domain.ErrNotFound)

		mine := requireCart(t, repo, userID, 5, "50.00")
		require.Len(t, mine.Items, 1)
		assert.Equal(t, itemID, mine.Items[0].ID)
		theirs := requireCart(t, repo, other, 1, "25.00")
		require.Len(t, theirs.Items, 1)
		assert.Equal(t, fillOther.Items[0].ID, theirs.Items[0].ID)

		c, err = repo.DeleteItem(ctx, userID, itemID)
		require.NoError(t, err)
		assert.Equal(t, 0, c.Quantity)
		assert.True(t, c.TotalAmount.IsZero())

		_, err = repo.DeleteItem(ctx, userID, itemID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("decrement below one leaves cart untouched", func(t *testing.T) {
		userID := testutil.SeedCustomer(ctx, t, pg.DB)
		c, err := repo.AddItems(ctx, userID, []domain.AddItem{
			{ProductID: testutil.ToteID, Quantity: 1},
			{ProductID: testutil.JacketID, Quantity: 1},
		})
		require.NoError(t, err)
		toteLine := lineFor(t, c, testutil.ToteID)

		_, err = repo.UpdateItem(ctx, userID, toteLine.ID, domain.ItemMutation{Action: domain.ActionDecrement})
		require.ErrorIs(t, err, domain.ErrValidation)

		stored := requireCart(t, repo, userID, 2, "35.00")
		require.Len(t, stored.Items, 2)
		assert.Equal(t, toteLine, lineFor(t, stored, testutil.ToteID))
	})

	t.Run("quantity and total caps are validation errors", func(t *testing.T) {
		userID := testutil.SeedCustomer(ctx, t, pg.DB)

		_, err := repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: testutil.ToteID, Quantity: 3000000000}})
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: testutil.ToteID, Quantity: domain.MaxLineQuantity}})
		require.NoError(t, err)

		_, err = repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: testutil.ToteID, Quantity: 1}})
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = repo.AddItems(ctx, userID, []domain.AddItem{
			{ProductID: testutil.JacketID, Quantity: domain.MaxLineQuantity},
			{ProductID: testutil.JacketID, Quantity: 1},
		})
		require.ErrorIs(t, err, domain.ErrValidation)

		pricey := testutil.SeedProduct(ctx, t, pg.DB, "9999999999.99", 10)
		_, err = repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: pricey, Quantity: 2}})
		require.ErrorIs(t, err, domain.ErrValidation)

		requireCart(t, repo, userID, domain.MaxLineQuantity, "100000.00")
	})

	t.Run("missing cart", func(t *testing.T) {
		_, err := repo.GetByUserID(ctx, uuid.New().String())
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = repo.AddItems(ctx, uuid.New().String(), []domain.AddItem{{ProductID: testutil.ToteID, Quantity: 1}})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("concurrent writers keep aggregate consistent", func(t *testing.T) {
		userID := testutil.SeedCustomer(ctx, t, pg.DB)
		c, err := repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: testutil.JacketID, Quantity: 1}})
		require.NoError(t, err)
		jacketLine := c.Items[0].ID

		const writers = 20
		var wg sync.WaitGroup
		errs := make(chan error, writers*2)
		for i := 0; i < writers; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := repo.AddItems(ctx, userID, []domain.AddItem{{ProductID: testutil.ToteID, Quantity: 1}})
				errs <- err
			}()
			go func() {
				defer wg.Done()
				_, err := repo.UpdateItem(ctx, userID, jacketLine, domain.ItemMutation{Action: domain.ActionIncrement})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		stored, err := repo.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.True(t, stored.Consistent())
		assert.Equal(t, writers+writers+1, stored.Quantity)
		assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("725.00")), stored.TotalAmount.String())
	})
}

// requireCart re-reads the cart and checks its aggregate against the expected values.
func requireCart(t *testing.T, repo *CartRepository, userID string, quantity int, total string) domain.Cart {
	t.Helper()
	c, err := repo.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, c.Consistent())
	assert.Equal(t, quantity, c.Quantity)
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString(total)), "total %s", c.TotalAmount)
	return c
}

// lineFor returns the cart line for productID without its joined product.
func lineFor(t *testing.T, c domain.Cart, productID string) domain.CartItem {
	t.Helper()
	for _, item := range c.Items {
		if item.ProductID == productID {
			item.Product = nil
			return item
		}
	}
	t.Fatalf("no line for product %s", productID)
	return domain.CartItem{}
}
