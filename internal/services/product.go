package services

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/prodcat/apiserver/internal/storage"
	"github.com/prodcat/apiserver/types"
	"github.com/rs/zerolog"
)

// ProductRepository defines persistence operations for products.
type ProductRepository interface {
	List(ctx context.Context, filter types.ProductFilter) ([]types.Product, int, error)
	Get(ctx context.Context, id int) (types.Product, error)
	Create(ctx context.Context, product types.Product) (types.Product, error)
	Update(ctx context.Context, product types.Product) (types.Product, error)
	SetDeleted(ctx context.Context, id int, deleted bool) error
	Delete(ctx context.Context, id int) error
}

// ImageUpload is an in-memory uploaded image file.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// ProductInput carries the writable product fields.
type ProductInput struct {
	Name        string
	Description string
	Price       float64
	Category    types.Category
	InStock     bool
}

// ProductService encapsulates the product lifecycle: create, edit,
// soft-delete, restore, and permanent removal, plus image storage.
// Ownership is enforced here; handlers only authenticate.
type ProductService struct {
	repo   ProductRepository
	images storage.ObjectStorage
	events *EventPublisher
	logger zerolog.Logger
}

func NewProductService(repo ProductRepository, images storage.ObjectStorage, events *EventPublisher, logger zerolog.Logger) *ProductService {
	return &ProductService{
		repo:   repo,
		images: images,
		events: events,
		logger: logger,
	}
}

func (s *ProductService) List(ctx context.Context, filter types.ProductFilter) ([]types.Product, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 12
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	return s.repo.List(ctx, filter)
}

func (s *ProductService) Get(ctx context.Context, id int) (types.Product, error) {
	return s.repo.Get(ctx, id)
}

// Create stores the image and inserts the product in the active state.
func (s *ProductService) Create(ctx context.Context, ownerID int, input ProductInput, image *ImageUpload) (types.Product, error) {
	if err := validateInput(input); err != nil {
		return types.Product{}, err
	}
	if image == nil {
		return types.Product{}, ErrImageRequired
	}

	filename, err := s.storeImage(ctx, *image)
	if err != nil {
		return types.Product{}, err
	}

	product, err := s.repo.Create(ctx, types.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Category:    input.Category,
		InStock:     input.InStock,
		Image:       filename,
		CreatedBy:   ownerID,
	})
	if err != nil {
		s.removeImage(ctx, filename)
		return types.Product{}, err
	}

	s.events.ProductChanged(ctx, EventProductCreated, product)
	return product, nil
}

// Update edits the product in place. The image is optional: when nil
// the stored image object is preserved, when present the old object is
// replaced.
func (s *ProductService) Update(ctx context.Context, callerID, id int, input ProductInput, image *ImageUpload) (types.Product, error) {
	if err := validateInput(input); err != nil {
		return types.Product{}, err
	}

	existing, err := s.ownedProduct(ctx, callerID, id)
	if err != nil {
		return types.Product{}, err
	}

	filename := existing.Image
	if image != nil {
		filename, err = s.storeImage(ctx, *image)
		if err != nil {
			return types.Product{}, err
		}
	}

	updated, err := s.repo.Update(ctx, types.Product{
		ID:          id,
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Category:    input.Category,
		InStock:     input.InStock,
		Image:       filename,
		CreatedBy:   existing.CreatedBy,
		IsDeleted:   existing.IsDeleted,
		CreatedAt:   existing.CreatedAt,
	})
	if err != nil {
		if image != nil {
			s.removeImage(ctx, filename)
		}
		return types.Product{}, err
	}

	if image != nil && existing.Image != "" && existing.Image != filename {
		s.removeImage(ctx, existing.Image)
	}

	s.events.ProductChanged(ctx, EventProductUpdated, updated)
	return updated, nil
}

// SoftDelete moves the product to the trash. It stays queryable under
// the trash filter and can be restored.
func (s *ProductService) SoftDelete(ctx context.Context, callerID, id int) error {
	product, err := s.ownedProduct(ctx, callerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.SetDeleted(ctx, id, true); err != nil {
		return err
	}

	product.IsDeleted = true
	s.events.ProductChanged(ctx, EventProductTrashed, product)
	return nil
}

// Restore moves a trashed product back to the active state.
func (s *ProductService) Restore(ctx context.Context, callerID, id int) error {
	product, err := s.ownedProduct(ctx, callerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.SetDeleted(ctx, id, false); err != nil {
		return err
	}

	product.IsDeleted = false
	s.events.ProductChanged(ctx, EventProductRestored, product)
	return nil
}

// ForceDelete permanently removes the product and its stored image.
// It is reachable from both the active and the trashed state; prior
// soft deletion is not required.
func (s *ProductService) ForceDelete(ctx context.Context, callerID, id int) error {
	product, err := s.ownedProduct(ctx, callerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if product.Image != "" {
		s.removeImage(ctx, product.Image)
	}

	s.events.ProductChanged(ctx, EventProductPurged, product)
	return nil
}

// OpenImage streams a stored product image by filename.
func (s *ProductService) OpenImage(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	filename = path.Base(filename) // object keys never contain separators
	reader, err := s.images.Get(ctx, imageKey(filename))
	if err != nil {
		return nil, "", err
	}
	return reader, contentTypeForFilename(filename), nil
}

func (s *ProductService) ownedProduct(ctx context.Context, callerID, id int) (types.Product, error) {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Product{}, err
	}
	if product.CreatedBy != callerID {
		return types.Product{}, ErrForbidden
	}
	return product, nil
}

func (s *ProductService) storeImage(ctx context.Context, image ImageUpload) (string, error) {
	contentType, ext, err := sniffImage(image.Data)
	if err != nil {
		return "", err
	}

	filename := uuid.NewString() + ext
	err = s.images.Put(ctx, imageKey(filename), bytes.NewReader(image.Data), int64(len(image.Data)), contentType)
	if err != nil {
		return "", err
	}
	return filename, nil
}

func (s *ProductService) removeImage(ctx context.Context, filename string) {
	if err := s.images.Delete(ctx, imageKey(filename)); err != nil {
		s.logger.Warn().Err(err).Str("image", filename).Msg("delete image object")
	}
}

func validateInput(input ProductInput) error {
	if input.Price < 0 {
		return ErrInvalidPrice
	}
	if !input.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

func imageKey(filename string) string {
	return "products/" + filename
}

// sniffImage detects the content type from the file bytes and maps it
// to the PNG/JPEG/WEBP allow-list. Declared form content types are
// ignored; the bytes decide.
func sniffImage(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", ErrImageRequired
	}
	switch http.DetectContentType(data) {
	case "image/png":
		return "image/png", ".png", nil
	case "image/jpeg":
		return "image/jpeg", ".jpg", nil
	case "image/webp":
		return "image/webp", ".webp", nil
	default:
		return "", "", ErrUnsupportedImage
	}
}

func contentTypeForFilename(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
