package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/howdo/internal/config"
)

// --- login ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print a session token for the client commands",
	Long: `Log in and print a session token for the client commands.

Example:
  export HOWDO_TOKEN=$(howdo login --email ann@example.com --password secret)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			return fmt.Errorf("--email and --password are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		result, err := login(cmd.Context(), client, email, password)
		if err != nil {
			return err
		}
		if result.Token == "" {
			printWarning("server did not issue a token")
		}
		printSuccess("Logged in as %s (user %s)", result.User.Email, result.User.ID)
		fmt.Fprintln(cmd.OutOrStdout(), result.Token)
		return nil
	},
}

type loginResult struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Token string `json:"token"`
}

func login(ctx context.Context, client *apiClient, email, password string) (loginResult, error) {
	var result loginResult
	resp, err := client.post(ctx, "/api/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return result, err
	}
	err = decodeJSON(resp, &result)
	return result, err
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List, export or delete documents on a running server",
}

type documentSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's documents, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		docs, err := listDocuments(cmd.Context(), client, userID)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			printWarning("No documents")
			return nil
		}
		printDocuments(cmd.OutOrStdout(), docs)
		return nil
	},
}

func listDocuments(ctx context.Context, client *apiClient, userID string) ([]documentSummary, error) {
	resp, err := client.get(ctx, "/api/documents?user_id="+url.QueryEscape(userID))
	if err != nil {
		return nil, err
	}
	var docs []documentSummary
	if err := decodeJSON(resp, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func printDocuments(w io.Writer, docs []documentSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, colorize(colorBold, "ID")+"\t"+colorize(colorBold, "TYPE")+"\t"+colorize(colorBold, "CREATED")+"\t"+colorize(colorBold, "TITLE"))
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Type, d.CreatedAt, d.Title)
	}
	tw.Flush()
}

var documentsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Download a document as DOCX, PDF or HTML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		outDir, _ := cmd.Flags().GetString("out")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		res, err := exportDocument(cmd.Context(), client, args[0], format, outDir)
		if err != nil {
			return err
		}
		if res.fallback != "" {
			printWarning("PDF unavailable, saved %s instead", res.fallback)
		}
		printSuccess("Saved %s", res.path)
		return nil
	},
}

type exportResult struct {
	path     string
	fallback string
}

func exportDocument(ctx context.Context, client *apiClient, id, format, outDir string) (exportResult, error) {
	path := "/api/export/" + url.PathEscape(id)
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return exportResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return exportResult{}, apiError(resp)
	}

	name := filepath.Base(attachmentName(resp.Header.Get("Content-Disposition")))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = id
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return exportResult{}, fmt.Errorf("creating output directory: %w", err)
	}
	out := filepath.Join(outDir, name)
	f, err := os.Create(out)
	if err != nil {
		return exportResult{}, fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return exportResult{}, fmt.Errorf("writing %s: %w", out, err)
	}
	return exportResult{path: out, fallback: resp.Header.Get("X-Render-Fallback")}, nil
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := deleteDocument(cmd.Context(), client, args[0]); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func deleteDocument(ctx context.Context, client *apiClient, id string) error {
	resp, err := client.delete(ctx, "/api/documents/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	var result map[string]string
	return decodeJSON(resp, &result)
}

func init() {
	documentsCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "server base URL (default: from config)")
	documentsCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "session token (default: $HOWDO_TOKEN)")
	loginCmd.Flags().StringVar(&serverFlag, "server", "", "server base URL (default: from config)")

	documentsListCmd.Flags().String("user", "", "owner user ID")
	documentsExportCmd.Flags().String("format", "docx", "docx, pdf or html")
	documentsExportCmd.Flags().String("out", ".", "output directory")

	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsExportCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
