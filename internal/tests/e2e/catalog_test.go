//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prodcat/apiserver/config"
	"github.com/prodcat/apiserver/internal/db"
	"github.com/prodcat/apiserver/internal/server"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 16)...)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setTestEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAccountAndProductLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	email := fmt.Sprintf("admin_%d@example.com", time.Now().UnixNano())
	password := "testpass123!"

	if err := registerUser(t, baseURL, email, password); err != nil {
		t.Fatalf("register user: %v", err)
	}

	// The login must be refused before verification.
	if status := tryLogin(t, baseURL, email, password); status != http.StatusForbidden {
		t.Fatalf("expected login before verification to return 403, got %d", status)
	}

	otp, err := fetchOTPFromDB(email)
	if err != nil {
		t.Fatalf("fetch OTP: %v", err)
	}
	if err := verifyEmail(t, baseURL, email, otp); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	token, err := login(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	product, err := createProduct(t, baseURL, token)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.ID == 0 {
		t.Fatalf("expected product ID to be set")
	}
	if product.IsDeleted {
		t.Fatalf("expected created product to be active")
	}

	if err := expectImageServed(t, baseURL, product.Image); err != nil {
		t.Fatalf("fetch product image: %v", err)
	}

	if err := lifecycleRequest(t, baseURL, token, http.MethodDelete, fmt.Sprintf("/products/%d", product.ID)); err != nil {
		t.Fatalf("trash product: %v", err)
	}
	if err := expectListing(t, baseURL, "", 0); err != nil {
		t.Fatalf("active listing after trash: %v", err)
	}
	if err := expectListing(t, baseURL, "?isDeleted=true", 1); err != nil {
		t.Fatalf("trash listing: %v", err)
	}

	if err := lifecycleRequest(t, baseURL, token, http.MethodPut, fmt.Sprintf("/products/%d/restore", product.ID)); err != nil {
		t.Fatalf("restore product: %v", err)
	}
	if err := expectListing(t, baseURL, "", 1); err != nil {
		t.Fatalf("active listing after restore: %v", err)
	}

	if err := lifecycleRequest(t, baseURL, token, http.MethodDelete, fmt.Sprintf("/products/%d/force", product.ID)); err != nil {
		t.Fatalf("force delete product: %v", err)
	}
	if err := expectProductNotFound(t, baseURL, product.ID); err != nil {
		t.Fatalf("expected purged product to be missing: %v", err)
	}
}

type productResponse struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	IsDeleted bool   `json:"is_deleted"`
}

type listResponse struct {
	Items []productResponse `json:"items"`
	Total int               `json:"total"`
}

type authResponse struct {
	Token string `json:"token"`
}

func registerUser(t *testing.T, baseURL, email, password string) error {
	t.Helper()

	payload := map[string]string{
		"name":     "Test Admin",
		"email":    email,
		"password": password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/auth/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// fetchOTPFromDB reads the issued code straight from the challenge
// table; e2e has no mailbox to read it from.
func fetchOTPFromDB(email string) (string, error) {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var code string
	err = conn.QueryRowContext(ctx, "SELECT code FROM otp_challenges WHERE email = $1", email).Scan(&code)
	return code, err
}

func verifyEmail(t *testing.T, baseURL, email, otp string) error {
	t.Helper()

	body, err := json.Marshal(map[string]string{"email": email, "otp": otp})
	if err != nil {
		return err
	}

	resp, err := http.Post(baseURL+"/auth/verify-email", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("verify status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func tryLogin(t *testing.T, baseURL, email, password string) int {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(baseURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func login(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(baseURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in login response")
	}
	return parsed.Token, nil
}

func createProduct(t *testing.T, baseURL, token string) (productResponse, error) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	_ = writer.WriteField("name", "Cat Tree Deluxe")
	_ = writer.WriteField("description", "Three levels of premium sisal and plush.")
	_ = writer.WriteField("price", "129.99")
	_ = writer.WriteField("category", "home")
	_ = writer.WriteField("inStock", "true")

	part, err := writer.CreateFormFile("image", "cat-tree.png")
	if err != nil {
		return productResponse{}, err
	}
	if _, err := part.Write(pngBytes); err != nil {
		return productResponse{}, err
	}
	if err := writer.Close(); err != nil {
		return productResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/products", &body)
	if err != nil {
		return productResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return productResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return productResponse{}, fmt.Errorf("create product status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed productResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return productResponse{}, err
	}
	return parsed, nil
}

func lifecycleRequest(t *testing.T, baseURL, token, method, path string) error {
	t.Helper()

	req, err := http.NewRequest(method, baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func expectListing(t *testing.T, baseURL, query string, want int) error {
	t.Helper()

	resp, err := http.Get(baseURL + "/products" + query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("list status %d", resp.StatusCode)
	}

	var parsed listResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	if len(parsed.Items) != want {
		return fmt.Errorf("expected %d items, got %d", want, len(parsed.Items))
	}
	return nil
}

func expectImageServed(t *testing.T, baseURL, filename string) error {
	t.Helper()

	resp, err := http.Get(baseURL + "/static/images/" + filename)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		return fmt.Errorf("unexpected content type %q", got)
	}
	return nil
}

func expectProductNotFound(t *testing.T, baseURL string, id int) error {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/products/%d", baseURL, id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("expected 404 after purge, got %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// setTestEnv points the server at the compose services.
func setTestEnv() {
	env := map[string]string{
		"SERVER_PORT":      fmt.Sprintf("%d", serverPort),
		"BASE_URL":         fmt.Sprintf("http://localhost:%d", serverPort),
		"JWT_SECRET":       "e2e-test-secret",
		"DB_HOST":          "localhost",
		"DB_PORT":          "5432",
		"DB_USER":          "prodcat",
		"DB_PASSWORD":      "password",
		"DB_NAME":          "prodcat_db",
		"STORAGE_BACKEND":  "minio",
		"MINIO_ENDPOINT":   "localhost:9000",
		"MINIO_ACCESS_KEY": "minioadmin",
		"MINIO_SECRET_KEY": "minioadmin",
		"MINIO_BUCKET":     "product-images",
		"MQ_BACKEND":       "",
		"SMTP_HOST":        "localhost",
		"SMTP_PORT":        "1025",
		"SMTP_FROM":        "no-reply@prodcat.local",
	}
	for key, value := range env {
		_ = os.Setenv(key, value)
	}
}

func startServer(ctx context.Context) (*server.Server, error) {
	cfg := config.LoadConfig()
	cfg.ServerPort = serverPort

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	go func() {
		_ = srv.Start()
	}()
	return srv, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, db.PostgresURL(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", append([]string{"compose"}, args...)...)
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
}
