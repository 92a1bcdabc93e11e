package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prodcat/apiserver/internal/flow"
	"github.com/prodcat/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveImageURL(t *testing.T) {
	c := New("http://localhost:8080/")

	assert.Equal(t,
		"http://localhost:8080/static/images/abc.png",
		c.ResolveImageURL("abc.png"),
		"bare filenames resolve against the static route")

	assert.Equal(t,
		"https://cdn.example.com/img/abc.png",
		c.ResolveImageURL("https://cdn.example.com/img/abc.png"),
		"absolute URLs pass through untouched")

	assert.Empty(t, c.ResolveImageURL(""))
}

func TestBackendErrorsBecomeAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"email already registered"}`))
	}))
	defer server.Close()

	c := New(server.URL)
	err := c.Register(context.Background(), "Ada", "ada@example.com", "hunter22")

	var apiErr *flow.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "email already registered", apiErr.Message)
}

func TestListProductsEncodesFilter(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[],"page":1,"limit":12,"total":0,"totalPages":1}`))
	}))
	defer server.Close()

	min := 5.0
	inStock := true
	c := New(server.URL)
	page, err := c.ListProducts(context.Background(), types.ProductFilter{
		Search:    "lamp",
		IsDeleted: true,
		MinPrice:  &min,
		InStock:   &inStock,
		Sort:      types.SortPriceAsc,
		Page:      2,
		Limit:     12,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, []string{"lamp"}, gotQuery["search"])
	assert.Equal(t, []string{"true"}, gotQuery["isDeleted"])
	assert.Equal(t, []string{"5"}, gotQuery["minPrice"])
	assert.Equal(t, []string{"true"}, gotQuery["inStock"])
	assert.Equal(t, []string{"price_asc"}, gotQuery["sort"])
	assert.Equal(t, []string{"2"}, gotQuery["page"])
}

func TestLoginInstallsToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"jwt-123","user":{"id":1,"email":"ada@example.com"}}`))
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"email":"ada@example.com"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.URL)
	user, err := c.Login(context.Background(), "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer jwt-123", gotAuth)
}
