package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/export"
	"github.com/joao-fontenele/storefront/internal/httpx"
)

type Store interface {
	CreateCategory(ctx context.Context, c *domain.Category) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (domain.Category, error)
	UpdateCategory(ctx context.Context, id, name string) (domain.Category, error)

	CreateProduct(ctx context.Context, p *domain.Product) error
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListAllProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	UpdateProduct(ctx context.Context, id string, u ProductUpdate) (domain.Product, error)
	ArchiveProduct(ctx context.Context, id string) error
}

type Images interface {
	Save(filename string, src io.Reader) (string, error)
	Remove(name string) error
}

type Handler struct {
	store      Store
	images     Images
	publicBase string
	logger     *slog.Logger
}

func NewHandler(store Store, images Images, publicBase string, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		images:     images,
		publicBase: publicBase,
		logger:     logger,
	}
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (req categoryRequest) name() (string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	return name, nil
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid category request")
		return
	}
	name, err := req.name()
	if err != nil {
		httpx.Fail(w, h.logger, err, "invalid category request")
		return
	}

	c := domain.Category{Name: name}
	if err := h.store.CreateCategory(r.Context(), &c); err != nil {
		httpx.Fail(w, h.logger, err, "failed to create category", "name", name)
		return
	}

	h.logger.Info("category created", "category_id", c.ID, "name", c.Name)
	httpx.WriteJSON(w, h.logger, http.StatusCreated, c)
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list categories")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, categories)
}

func (h *Handler) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := h.store.GetCategory(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to get category", "category_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

func (h *Handler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid category request")
		return
	}
	name, err := req.name()
	if err != nil {
		httpx.Fail(w, h.logger, err, "invalid category request")
		return
	}

	c, err := h.store.UpdateCategory(r.Context(), id, name)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to update category", "category_id", id)
		return
	}

	h.logger.Info("category updated", "category_id", c.ID, "name", c.Name)
	httpx.WriteJSON(w, h.logger, http.StatusOK, c)
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseProduct(r)
	if err != nil {
		httpx.Fail(w, h.logger, err, "invalid product request")
		return
	}
	if err := in.validateCreate(); err != nil {
		h.discard(in.image)
		httpx.Fail(w, h.logger, err, "invalid product request")
		return
	}

	p := domain.Product{
		Name:       *in.name,
		Price:      *in.price,
		CategoryID: *in.categoryID,
		Image:      in.image,
	}
	if in.stock != nil {
		p.Stock = *in.stock
	}

	if err := h.store.CreateProduct(r.Context(), &p); err != nil {
		h.discard(in.image)
		httpx.Fail(w, h.logger, err, "failed to create product", "name", p.Name)
		return
	}

	h.logger.Info("product created", "product_id", p.ID, "name", p.Name, "category_id", p.CategoryID)
	p.ResolveImage(h.publicBase)
	httpx.WriteJSON(w, h.logger, http.StatusCreated, p)
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list products")
		return
	}
	for i := range products {
		products[i].ResolveImage(h.publicBase)
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to get product", "product_id", id)
		return
	}
	p.ResolveImage(h.publicBase)
	httpx.WriteJSON(w, h.logger, http.StatusOK, p)
}

func (h *Handler) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	in, err := h.parseProduct(r)
	if err != nil {
		httpx.Fail(w, h.logger, err, "invalid product request")
		return
	}
	if err := in.validateUpdate(); err != nil {
		h.discard(in.image)
		httpx.Fail(w, h.logger, err, "invalid product request")
		return
	}

	var previous *string
	if in.image != nil {
		if current, err := h.store.GetProduct(r.Context(), id); err == nil {
			previous = current.Image
		}
	}

	p, err := h.store.UpdateProduct(r.Context(), id, ProductUpdate{
		Name:       in.name,
		Price:      in.price,
		Stock:      in.stock,
		CategoryID: in.categoryID,
		Image:      in.image,
	})
	if err != nil {
		h.discard(in.image)
		httpx.Fail(w, h.logger, err, "failed to update product", "product_id", id)
		return
	}
	h.discard(previous)

	h.logger.Info("product updated", "product_id", p.ID)
	p.ResolveImage(h.publicBase)
	httpx.WriteJSON(w, h.logger, http.StatusOK, p)
}

// HandleArchiveProduct hides the product from the catalog. Carts and orders keep
// referencing it.
func (h *Handler) HandleArchiveProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.ArchiveProduct(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, err, "failed to archive product", "product_id", id)
		return
	}

	h.logger.Info("product archived", "product_id", id)
	httpx.WriteMessage(w, h.logger, http.StatusOK, "product has been archived")
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListAllProducts(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list products for export")
		return
	}

	sheet := export.Sheet{
		Name:    "Products",
		Headers: []string{"ID", "Name", "Category", "Price", "Stock", "Archived", "CreatedAt"},
	}
	for _, p := range products {
		sheet.Rows = append(sheet.Rows, []any{
			p.ID, p.Name, p.Category, p.Price.StringFixed(2), p.Stock, p.Archived,
			p.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	if err := sheet.Write(w, "products.xlsx"); err != nil {
		httpx.Fail(w, h.logger, err, "failed to export products")
		return
	}
	h.logger.Info("products exported", "count", len(products))
}

func (h *Handler) discard(image *string) {
	if image == nil {
		return
	}
	if err := h.images.Remove(*image); err != nil {
		h.logger.Warn("failed to remove image", "error", err, "image", *image)
	}
}

// productInput carries the fields a client sent. Absent fields stay nil.
type productInput struct {
	name       *string
	price      *decimal.Decimal
	stock      *int
	categoryID *string
	image      *string
}

func (in productInput) validateUpdate() error {
	if in.name != nil && *in.name == "" {
		return fmt.Errorf("%w: name must not be empty", domain.ErrValidation)
	}
	if in.price != nil && in.price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	}
	if in.stock != nil && *in.stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", domain.ErrValidation)
	}
	if in.categoryID != nil {
		if _, err := uuid.Parse(*in.categoryID); err != nil {
			return fmt.Errorf("%w: unknown category", domain.ErrValidation)
		}
	}
	return nil
}

func (in productInput) validateCreate() error {
	var missing []string
	if in.name == nil {
		missing = append(missing, "name")
	}
	if in.price == nil {
		missing = append(missing, "price")
	}
	if in.categoryID == nil {
		missing = append(missing, "category_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return in.validateUpdate()
}

type productJSON struct {
	Name       *string          `json:"name"`
	Price      *decimal.Decimal `json:"price"`
	Stock      *int             `json:"stock"`
	CategoryID *string          `json:"category_id"`
}

// parseProduct reads a product from either a JSON body or a multipart form. Multipart
// uploads may carry the image under "image" or "imageUrl".
func (h *Handler) parseProduct(r *http.Request) (productInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body productJSON
		if err := httpx.DecodeJSON(r, &body); err != nil {
			return productInput{}, err
		}
		return productInput{
			name:       trimmed(body.Name),
			price:      body.Price,
			stock:      body.Stock,
			categoryID: trimmed(body.CategoryID),
		}, nil
	}

	if err := r.ParseMultipartForm(maxImageBytes + 1<<20); err != nil {
		return productInput{}, fmt.Errorf("%w: invalid multipart form", domain.ErrValidation)
	}

	var in productInput
	if v, ok := formValue(r, "name"); ok {
		in.name = trimmed(&v)
	}
	if v, ok := formValue(r, "category_id", "categoryId"); ok {
		in.categoryID = trimmed(&v)
	}
	if v, ok := formValue(r, "price"); ok {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return productInput{}, fmt.Errorf("%w: invalid price %q", domain.ErrValidation, v)
		}
		in.price = &price
	}
	if v, ok := formValue(r, "stock"); ok {
		stock, err := strconv.Atoi(v)
		if err != nil {
			return productInput{}, fmt.Errorf("%w: invalid stock %q", domain.ErrValidation, v)
		}
		in.stock = &stock
	}

	for _, field := range []string{"image", "imageUrl"} {
		file, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return productInput{}, fmt.Errorf("%w: invalid image upload", domain.ErrValidation)
		}
		name, err := h.images.Save(header.Filename, file)
		_ = file.Close()
		if err != nil {
			return productInput{}, err
		}
		in.image = &name
		break
	}

	return in, nil
}

func formValue(r *http.Request, keys ...string) (string, bool) {
	for _, key := range keys {
		if values, ok := r.MultipartForm.Value[key]; ok && len(values) > 0 {
			return strings.TrimSpace(values[0]), true
		}
	}
	return "", false
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
