package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prodcat/apiserver/internal/services"
	"github.com/prodcat/apiserver/types"
)

const (
	defaultPage        = 1
	defaultLimit       = 12
	maxLimit           = 100
	maxMultipartMemory = 32 << 20
	maxImageBytes      = 8 << 20
	formFieldName      = "name"
	formFieldDesc      = "description"
	formFieldPrice     = "price"
	formFieldCategory  = "category"
	formFieldInStock   = "inStock"
	formFieldImage     = "image"
)

// ProductHandler provides HTTP handlers for products.
type ProductHandler struct {
	productService *services.ProductService
}

// NewProductHandler constructs a handler with the provided service.
func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// ProductRouter registers product routes on the given router. Reads are
// public; every mutation requires authentication, and the service
// additionally enforces ownership.
func ProductRouter(r chi.Router, productService *services.ProductService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewProductHandler(productService)

	r.Get("/", handler.ListProducts)
	r.With(authMiddleware).Post("/", handler.CreateProduct)
	r.Route("/{productID}", func(r chi.Router) {
		r.Get("/", handler.GetProduct)
		r.With(authMiddleware).Put("/", handler.UpdateProduct)
		r.With(authMiddleware).Delete("/", handler.DeleteProduct)
		r.With(authMiddleware).Delete("/force", handler.ForceDeleteProduct)
		r.With(authMiddleware).Put("/restore", handler.RestoreProduct)
	})
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.productService.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	if totalPages < 1 {
		totalPages = 1
	}

	writeJSON(w, http.StatusOK, ProductListResponse{
		Items:      items,
		Page:       filter.Page,
		Limit:      filter.Limit,
		Total:      total,
		TotalPages: totalPages,
	})
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.productService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to fetch product")
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	input, image, err := parseProductForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.productService.Create(r.Context(), userID, input, image)
	if err != nil {
		writeServiceError(w, err, "failed to create product")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input, image, err := parseProductForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.productService.Update(r.Context(), userID, id, input, image)
	if err != nil {
		writeServiceError(w, err, "failed to update product")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.productService.SoftDelete, "Product moved to trash")
}

func (h *ProductHandler) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.productService.Restore, "Product restored")
}

func (h *ProductHandler) ForceDeleteProduct(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.productService.ForceDelete, "Product permanently deleted")
}

func (h *ProductHandler) lifecycleAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, callerID, id int) error,
	message string,
) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := action(r.Context(), userID, id); err != nil {
		writeServiceError(w, err, "operation failed")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// ProductListResponse is the paginated list response payload.
type ProductListResponse struct {
	Items      []types.Product `json:"items"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	Total      int             `json:"total"`
	TotalPages int             `json:"totalPages"`
}

func parseProductID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "productID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid product id")
	}
	return id, nil
}

func parseProductFilter(r *http.Request) (types.ProductFilter, error) {
	query := r.URL.Query()
	filter := types.ProductFilter{
		Page:  defaultPage,
		Limit: defaultLimit,
		Sort:  types.SortLatest,
	}

	var err error
	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		filter.Page, err = strconv.Atoi(raw)
		if err != nil || filter.Page < 1 {
			return types.ProductFilter{}, errors.New("invalid page")
		}
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		filter.Limit, err = strconv.Atoi(raw)
		if err != nil || filter.Limit < 1 {
			return types.ProductFilter{}, errors.New("invalid limit")
		}
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	filter.Search = strings.TrimSpace(query.Get("search"))

	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		category := types.Category(raw)
		if !category.Valid() {
			return types.ProductFilter{}, errors.New("invalid category")
		}
		filter.Category = category
	}

	if raw := strings.TrimSpace(query.Get("isDeleted")); raw != "" {
		filter.IsDeleted, err = strconv.ParseBool(raw)
		if err != nil {
			return types.ProductFilter{}, errors.New("invalid isDeleted")
		}
	}

	if raw := strings.TrimSpace(query.Get("sort")); raw != "" {
		if !types.ValidSort(raw) {
			return types.ProductFilter{}, errors.New("invalid sort")
		}
		filter.Sort = raw
	}

	if raw := strings.TrimSpace(query.Get("minPrice")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return types.ProductFilter{}, errors.New("invalid minPrice")
		}
		filter.MinPrice = &value
	}
	if raw := strings.TrimSpace(query.Get("maxPrice")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return types.ProductFilter{}, errors.New("invalid maxPrice")
		}
		filter.MaxPrice = &value
	}
	if raw := strings.TrimSpace(query.Get("inStock")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return types.ProductFilter{}, errors.New("invalid inStock")
		}
		filter.InStock = &value
	}

	return filter, nil
}

func parseProductForm(r *http.Request) (services.ProductInput, *services.ImageUpload, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.ProductInput{}, nil, errors.New("invalid multipart form")
	}

	name := strings.TrimSpace(r.FormValue(formFieldName))
	if name == "" {
		return services.ProductInput{}, nil, errors.New("name is required")
	}

	description := strings.TrimSpace(r.FormValue(formFieldDesc))
	if description == "" {
		return services.ProductInput{}, nil, errors.New("description is required")
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue(formFieldPrice)), 64)
	if err != nil {
		return services.ProductInput{}, nil, errors.New("invalid price")
	}

	inStock := true
	if raw := strings.TrimSpace(r.FormValue(formFieldInStock)); raw != "" {
		inStock, err = strconv.ParseBool(raw)
		if err != nil {
			return services.ProductInput{}, nil, errors.New("invalid inStock")
		}
	}

	input := services.ProductInput{
		Name:        name,
		Description: description,
		Price:       price,
		Category:    types.Category(strings.TrimSpace(r.FormValue(formFieldCategory))),
		InStock:     inStock,
	}

	image, err := parseImageFile(r.MultipartForm)
	if err != nil {
		return services.ProductInput{}, nil, err
	}

	return input, image, nil
}

// parseImageFile returns nil when no image was attached; edits without
// a replacement image keep the stored one.
func parseImageFile(form *multipart.Form) (*services.ImageUpload, error) {
	if form == nil {
		return nil, nil
	}

	files := form.File[formFieldImage]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, errors.New("only one image is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return nil, errors.New("failed to read image")
	}

	data, err := readFileLimited(file, maxImageBytes)
	_ = file.Close()
	if err != nil {
		return nil, err
	}

	return &services.ImageUpload{
		Filename: fileHeader.Filename,
		Data:     data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
