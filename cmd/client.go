/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prodcat/apiserver/internal/client"
	"github.com/prodcat/apiserver/internal/flow"
	"github.com/prodcat/apiserver/types"
	"github.com/spf13/cobra"
)

var clientServerURL string

// clientCmd groups the admin client commands. They drive a running
// backend over HTTP using the same flow logic the tests exercise.
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Admin client for a running prodcat backend",
}

var clientRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an account and verify it interactively via OTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		api := client.New(clientServerURL)
		verification := flow.NewVerification(api)
		reader := bufio.NewReader(os.Stdin)

		name := prompt(reader, "Name: ")
		email := prompt(reader, "Email: ")
		password := prompt(reader, "Password: ")

		if err := verification.Register(cmd.Context(), name, email, password); err != nil {
			return fmt.Errorf("%s", verification.LastError())
		}
		fmt.Printf("OTP sent to %s\n", verification.Email())

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		clock := flow.NewWallClock()
		defer clock.Stop()
		go verification.RunCountdown(ctx, clock)

		for verification.State() != flow.StateVerified {
			fmt.Printf("Enter OTP (resend available in %s, type 'resend' when ready): ", verification.FormatTimeLeft())
			line := prompt(reader, "")
			if line == "resend" {
				if err := verification.Resend(cmd.Context()); err != nil {
					fmt.Println(verification.LastError())
				} else {
					fmt.Println("A new OTP has been sent")
				}
				continue
			}
			verification.SetCode(cmd.Context(), line)
			if verification.State() != flow.StateVerified && verification.LastError() != "" {
				fmt.Println(verification.LastError())
			}
		}

		fmt.Println("Email verified successfully")
		return nil
	},
}

var clientVerifyCmd = &cobra.Command{
	Use:   "verify-link [token]",
	Short: "Consume an emailed verification link token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api := client.New(clientServerURL)
		verification := flow.NewVerification(api)
		if err := verification.VerifyLink(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("%s", verification.LastError())
		}
		fmt.Println("Email verified successfully")
		return nil
	},
}

var (
	listSearch    string
	listCategory  string
	listSort      string
	listPage      int
	clientEmail    string
	clientPassword string
)

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products, including the trash view via --category trash",
	RunE: func(cmd *cobra.Command, args []string) error {
		api := client.New(clientServerURL)

		var page client.ProductPage
		var fetchErr error
		browse := flow.NewBrowse(flow.DefaultSearchDebounce, func(filter types.ProductFilter) {
			page, fetchErr = api.ListProducts(cmd.Context(), filter)
		})

		if listCategory != "" {
			browse.SetCategory(listCategory)
		}
		if listSort != "" {
			browse.SetSort(listSort)
		}
		if listSearch != "" {
			browse.SetSearch(listSearch)
			browse.FlushSearch()
		}
		if listPage > 1 {
			browse.SetPage(listPage)
		}
		if browse.Page() == 1 && listCategory == "" && listSort == "" && listSearch == "" {
			browse.ClearFilters()
		}
		if fetchErr != nil {
			return fetchErr
		}

		fmt.Printf("page %d/%d (%d total)\n", page.Page, page.TotalPages, page.Total)
		for _, p := range page.Items {
			status := "active"
			if p.IsDeleted {
				status = "trashed"
			}
			fmt.Printf("%4d  %-30s  %8.2f  %-12s  %s\n", p.ID, p.Name, p.Price, p.Category, status)
		}
		return nil
	},
}

var clientTrashCmd = &cobra.Command{
	Use:   "trash [id]",
	Short: "Move a product to trash",
	Args:  cobra.ExactArgs(1),
	RunE: lifecycleRunE(confirmTrash,
		func(ctx context.Context, c *client.Client, id int) error { return c.TrashProduct(ctx, id) },
		"Product moved to trash"),
}

var clientRestoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Restore a trashed product",
	Args:  cobra.ExactArgs(1),
	RunE: lifecycleRunE(nil,
		func(ctx context.Context, c *client.Client, id int) error { return c.RestoreProduct(ctx, id) },
		"Product restored"),
}

var clientPurgeCmd = &cobra.Command{
	Use:   "purge [id]",
	Short: "Permanently delete a product and its image",
	Args:  cobra.ExactArgs(1),
	RunE: lifecycleRunE(confirmPurge,
		func(ctx context.Context, c *client.Client, id int) error { return c.ForceDeleteProduct(ctx, id) },
		"Product permanently deleted"),
}

var clientCreateCmd = &cobra.Command{
	Use:   "create [image-file]",
	Short: "Create a product from flags and an image file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loggedInClient(cmd.Context())
		if err != nil {
			return err
		}

		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		price, _ := cmd.Flags().GetFloat64("price")
		category, _ := cmd.Flags().GetString("category")
		inStock, _ := cmd.Flags().GetBool("in-stock")

		product, err := c.CreateProduct(cmd.Context(), client.ProductInput{
			Name:        name,
			Description: description,
			Price:       price,
			Category:    category,
			InStock:     inStock,
		}, filepath.Base(args[0]), file)
		if err != nil {
			return err
		}
		fmt.Printf("created product %d (%s)\n", product.ID, c.ResolveImageURL(product.Image))
		return nil
	},
}

// confirmTrash asks before a soft delete. Trash is reversible, so a
// plain y/N answer is enough.
func confirmTrash(cmd *cobra.Command, id int) bool {
	reader := bufio.NewReader(cmd.InOrStdin())
	answer := prompt(reader, fmt.Sprintf("Move product %d to trash? [y/N]: ", id))
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}

// confirmPurge guards the irreversible delete behind a typed word
// rather than a single keystroke.
func confirmPurge(cmd *cobra.Command, id int) bool {
	reader := bufio.NewReader(cmd.InOrStdin())
	answer := prompt(reader, fmt.Sprintf("Permanently delete product %d? This cannot be undone and removes its image. Type 'delete' to confirm: ", id))
	return answer == "delete"
}

// lifecycleRunE builds the RunE for the trash/restore/purge commands.
// The confirmation runs before login, so a declined prompt issues no
// network call at all.
func lifecycleRunE(confirm func(*cobra.Command, int) bool, action func(context.Context, *client.Client, int) error, message string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id < 1 {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		if confirm != nil && !confirm(cmd, id) {
			fmt.Println("Aborted")
			return nil
		}
		c, err := loggedInClient(cmd.Context())
		if err != nil {
			return err
		}
		if err := action(cmd.Context(), c, id); err != nil {
			return err
		}
		fmt.Println(message)
		return nil
	}
}

func loggedInClient(ctx context.Context) (*client.Client, error) {
	c := client.New(clientServerURL)
	if clientEmail == "" || clientPassword == "" {
		return nil, fmt.Errorf("--email and --password are required")
	}
	if _, err := c.Login(ctx, clientEmail, clientPassword); err != nil {
		return nil, err
	}
	return c, nil
}

func prompt(reader *bufio.Reader, label string) string {
	if label != "" {
		fmt.Print(label)
	}
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.PersistentFlags().StringVar(&clientServerURL, "server", "http://localhost:8080", "backend base URL")
	clientCmd.PersistentFlags().StringVar(&clientEmail, "email", "", "account email for authenticated commands")
	clientCmd.PersistentFlags().StringVar(&clientPassword, "password", "", "account password for authenticated commands")

	clientListCmd.Flags().StringVar(&listSearch, "search", "", "search term")
	clientListCmd.Flags().StringVar(&listCategory, "category", "", "category filter (use 'trash' for deleted products)")
	clientListCmd.Flags().StringVar(&listSort, "sort", "", "sort order (latest, oldest, price_asc, price_desc, name)")
	clientListCmd.Flags().IntVar(&listPage, "page", 1, "page number")

	clientCreateCmd.Flags().String("name", "", "product name")
	clientCreateCmd.Flags().String("description", "", "product description")
	clientCreateCmd.Flags().Float64("price", 0, "product price")
	clientCreateCmd.Flags().String("category", string(types.CategoryOther), "product category")
	clientCreateCmd.Flags().Bool("in-stock", true, "whether the product is in stock")

	clientCmd.AddCommand(clientRegisterCmd)
	clientCmd.AddCommand(clientVerifyCmd)
	clientCmd.AddCommand(clientListCmd)
	clientCmd.AddCommand(clientCreateCmd)
	clientCmd.AddCommand(clientTrashCmd)
	clientCmd.AddCommand(clientRestoreCmd)
	clientCmd.AddCommand(clientPurgeCmd)
}
