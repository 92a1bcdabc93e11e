// Package client is the HTTP client for the prodcat API. It implements
// flow.AuthAPI for the verification flow and exposes the product
// lifecycle operations the admin CLI drives.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prodcat/apiserver/internal/flow"
	"github.com/prodcat/apiserver/types"
)

const defaultTimeout = 30 * time.Second

// Client talks to a prodcat backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New constructs a Client for the backend at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// SetToken installs the bearer token attached to subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ProductInput carries the product form fields for create and update.
type ProductInput struct {
	Name        string
	Description string
	Price       float64
	Category    string
	InStock     bool
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Items      []types.Product `json:"items"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	Total      int             `json:"total"`
	TotalPages int             `json:"totalPages"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// Register implements flow.AuthAPI.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	payload := map[string]string{"name": name, "email": email, "password": password}
	return c.postJSON(ctx, "/auth/register", payload, nil)
}

// VerifyOTP implements flow.AuthAPI.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) error {
	payload := map[string]string{"email": email, "otp": code}
	return c.postJSON(ctx, "/auth/verify-email", payload, nil)
}

// ResendOTP implements flow.AuthAPI.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	return c.postJSON(ctx, "/auth/resend-otp", map[string]string{"email": email}, nil)
}

// VerifyLink implements flow.AuthAPI.
func (c *Client) VerifyLink(ctx context.Context, token string) error {
	return c.postJSON(ctx, "/auth/verify-email", map[string]string{"token": token}, nil)
}

// ResendVerificationLink implements flow.AuthAPI.
func (c *Client) ResendVerificationLink(ctx context.Context, email string) error {
	return c.postJSON(ctx, "/auth/resend-verification", map[string]string{"email": email}, nil)
}

// RequestPasswordReset implements flow.AuthAPI.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.postJSON(ctx, "/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword implements flow.AuthAPI.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	path := "/auth/reset-password/" + url.PathEscape(token)
	return c.postJSON(ctx, path, map[string]string{"password": password}, nil)
}

// Login authenticates and installs the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (types.User, error) {
	var resp authResponse
	payload := map[string]string{"email": email, "password": password}
	if err := c.postJSON(ctx, "/auth/login", payload, &resp); err != nil {
		return types.User{}, err
	}
	c.token = resp.Token
	return resp.User, nil
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (types.User, error) {
	var user types.User
	err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &user)
	return user, err
}

// ListProducts fetches one page of products matching the filter.
func (c *Client) ListProducts(ctx context.Context, filter types.ProductFilter) (ProductPage, error) {
	var page ProductPage
	err := c.doJSON(ctx, http.MethodGet, "/products?"+encodeFilter(filter), nil, &page)
	return page, err
}

// GetProduct fetches a single product by id.
func (c *Client) GetProduct(ctx context.Context, id int) (types.Product, error) {
	var product types.Product
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/products/%d", id), nil, &product)
	return product, err
}

// CreateProduct uploads a new product. The image is required on create.
func (c *Client) CreateProduct(ctx context.Context, input ProductInput, imageName string, image io.Reader) (types.Product, error) {
	var product types.Product
	err := c.doMultipart(ctx, http.MethodPost, "/products", input, imageName, image, &product)
	return product, err
}

// UpdateProduct edits a product. A nil image keeps the stored one.
func (c *Client) UpdateProduct(ctx context.Context, id int, input ProductInput, imageName string, image io.Reader) (types.Product, error) {
	var product types.Product
	path := fmt.Sprintf("/products/%d", id)
	err := c.doMultipart(ctx, http.MethodPut, path, input, imageName, image, &product)
	return product, err
}

// TrashProduct soft-deletes a product.
func (c *Client) TrashProduct(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/products/%d", id), nil, nil)
}

// RestoreProduct brings a trashed product back.
func (c *Client) RestoreProduct(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/products/%d/restore", id), nil, nil)
}

// ForceDeleteProduct removes a product permanently.
func (c *Client) ForceDeleteProduct(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/products/%d/force", id), nil, nil)
}

// ResolveImageURL turns a stored image reference into a fetchable URL.
// Absolute references pass through untouched; bare filenames resolve
// against the backend's static image route.
func (c *Client) ResolveImageURL(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return c.baseURL + "/static/images/" + url.PathEscape(ref)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) doMultipart(ctx context.Context, method, path string, input ProductInput, imageName string, image io.Reader, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"name":        input.Name,
		"description": input.Description,
		"price":       strconv.FormatFloat(input.Price, 'f', -1, 64),
		"category":    input.Category,
		"inStock":     strconv.FormatBool(input.InStock),
	}
	for field, value := range fields {
		if err := writer.WriteField(field, value); err != nil {
			return fmt.Errorf("write form field: %w", err)
		}
	}

	if image != nil {
		part, err := writer.CreateFormFile("image", imageName)
		if err != nil {
			return fmt.Errorf("attach image: %w", err)
		}
		if _, err := io.Copy(part, image); err != nil {
			return fmt.Errorf("copy image: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError maps the backend's error envelope onto flow.APIError
// so the flow layer can surface the server's message verbatim.
func decodeAPIError(resp *http.Response) error {
	apiErr := &flow.APIError{Status: resp.StatusCode}
	var envelope errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope); err == nil {
		apiErr.Message = envelope.Error
	}
	return apiErr
}

func encodeFilter(filter types.ProductFilter) string {
	query := url.Values{}
	if filter.Page > 0 {
		query.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	if filter.Category != "" {
		query.Set("category", string(filter.Category))
	}
	if filter.IsDeleted {
		query.Set("isDeleted", "true")
	}
	if filter.Sort != "" {
		query.Set("sort", filter.Sort)
	}
	if filter.MinPrice != nil {
		query.Set("minPrice", strconv.FormatFloat(*filter.MinPrice, 'f', -1, 64))
	}
	if filter.MaxPrice != nil {
		query.Set("maxPrice", strconv.FormatFloat(*filter.MaxPrice, 'f', -1, 64))
	}
	if filter.InStock != nil {
		query.Set("inStock", strconv.FormatBool(*filter.InStock))
	}
	return query.Encode()
}
