// Package main provides a CLI for the DigiSign API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjanat/digisign-cli/pkg/client"
	"github.com/kjanat/digisign-cli/pkg/webhook"
)

var (
	// Global flags
	apiURL     string
	token      string
	timeout    time.Duration
	jsonOutput bool
	retries    int
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "digisign",
	Short: "DigiSign API CLI",
	Long: `A command-line client for the DigiSign electronic signature API.

This tool allows you to:
  - Exchange API keys for a bearer token and cache it
  - Send raw API requests and list paginated collections
  - Upload and download documents
  - Verify webhook signatures

Environment variables:
  DIGISIGN_ACCESS_KEY   - API access key (for auth get-token)
  DIGISIGN_SECRET_KEY   - API secret key (for auth get-token)
  DIGISIGN_ACCESS_TOKEN - Bearer token, bypasses the token file
  DIGISIGN_API_URL      - API base URL (default: https://api.digisign.org)
  DIGISIGN_TOKEN_FILE   - Token cache (default: ~/.digisign/token.json)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "url", "", "API base URL (or DIGISIGN_API_URL env)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (or DIGISIGN_ACCESS_TOKEN env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().IntVar(&retries, "retries", 0, "Retry rate limited and 5xx responses up to N times")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests to stderr")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(webhookCmd)
}

// loadConfig returns the environment configuration with flag overrides applied
func loadConfig() client.Config {
	cfg := client.ConfigFromEnv()
	cfg.BaseURL = getBaseURL()
	cfg.AccessToken = getToken()
	return cfg
}

// getBaseURL returns the API base URL from flags or environment
func getBaseURL() string {
	if apiURL != "" {
		return strings.TrimRight(apiURL, "/")
	}
	return client.ConfigFromEnv().BaseURL
}

// getToken returns the bearer token from flags or environment
func getToken() string {
	if token != "" {
		return token
	}
	return os.Getenv(client.EnvAccessToken)
}

// newClient creates a new API client
func newClient() (*client.Client, error) {
	return client.New(getBaseURL(),
		client.WithTimeout(timeout),
		client.WithLogger(newLogger()),
		client.WithUserAgent("digisign-cli"),
	)
}

// authorize creates a client and resolves the bearer token for it
func authorize(ctx context.Context) (*client.Client, string, error) {
	c, err := newClient()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create client: %w", err)
	}
	tok, err := client.NewTokenProvider(loadConfig(), c).Resolve(ctx)
	if err != nil {
		return nil, "", err
	}
	return c, tok, nil
}

// withRetry runs fn once, or under a Retrier when --retries is set
func withRetry(ctx context.Context, fn func() error) error {
	if retries <= 0 {
		return fn()
	}
	r, err := client.NewRetrier(client.WithMaxRetries(retries))
	if err != nil {
		return err
	}
	return r.Do(ctx, fn)
}

// outputJSON prints the value as JSON
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// describeError adds violation details to validation failures
func describeError(err error) error {
	var ve *client.ValidationError
	if errors.As(err, &ve) && len(ve.Violations) > 0 {
		parts := make([]string, 0, len(ve.Violations))
		for _, v := range ve.Violations {
			parts = append(parts, describeViolation(v))
		}
		return fmt.Errorf("%w [%s]", err, strings.Join(parts, "; "))
	}
	return err
}

func describeViolation(v any) string {
	fields, ok := v.(map[string]any)
	if !ok {
		return fmt.Sprint(v)
	}
	path, _ := fields["propertyPath"].(string)
	message, _ := fields["message"].(string)
	if path == "" && message == "" {
		return fmt.Sprint(v)
	}
	if path == "" {
		return message
	}
	return fmt.Sprintf("%s: %s", path, message)
}

// readArg returns s, the contents of the file named by "@path", or stdin for "-"
func readArg(s string) ([]byte, error) {
	switch {
	case s == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(s, "@"):
		return os.ReadFile(strings.TrimPrefix(s, "@"))
	default:
		return []byte(s), nil
	}
}

// parseQuery turns repeated key=value flags into query parameters
func parseQuery(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	query := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q (use key=value)", pair)
		}
		query[key] = value
	}
	return query, nil
}

// Auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Token management",
	Long:  "Exchange API keys for a bearer token and manage the token cache.",
}

func init() {
	authCmd.AddCommand(authGetTokenCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authClearCmd)
}

var authGetTokenCmd = &cobra.Command{
	Use:   "get-token",
	Short: "Get a new bearer token",
	Long:  "Exchanges DIGISIGN_ACCESS_KEY and DIGISIGN_SECRET_KEY for a bearer token.",
	RunE: func(cmd *cobra.Command, args []string) error {
		save, _ := cmd.Flags().GetBool("save")

		cfg := loadConfig()
		if !cfg.HasKeys() {
			return fmt.Errorf("%s and %s must be set", client.EnvAccessKey, client.EnvSecretKey)
		}

		c, err := newClient()
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		provider := client.NewTokenProvider(cfg, c)
		if !save {
			rec, err := provider.Exchange(ctx)
			if err != nil {
				return err
			}
			return outputJSON(rec)
		}

		rec, err := provider.Refresh(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]any{
				"token_file": provider.Store().Path,
				"expires_at": rec.ExpiryTime().Format(time.RFC3339),
			})
		}

		fmt.Printf("Token saved to %s\n", provider.Store().Path)
		fmt.Printf("Expires at: %s\n", rec.ExpiryTime().Local().Format(time.DateTime))
		return nil
	},
}

func init() {
	authGetTokenCmd.Flags().Bool("save", false, "Save token to the token file")
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show token status",
	Long:  "Reports whether a cached token exists and when it expires.",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.NewTokenProvider(loadConfig(), nil).Status()
		if err != nil {
			return fmt.Errorf("failed to read token file: %w", err)
		}

		if jsonOutput {
			return outputJSON(status)
		}

		fmt.Printf("Token file: %s\n", status.TokenFile)
		fmt.Printf("API URL: %s\n", status.APIURL)
		if !status.Exists {
			fmt.Println("No token saved")
			return nil
		}
		fmt.Printf("Issued at: %s\n", status.IssuedAt.Local().Format(time.DateTime))
		fmt.Printf("Expires at: %s\n", status.ExpiresAt.Local().Format(time.DateTime))
		if status.Expired {
			fmt.Println("Status: expired")
		} else {
			fmt.Printf("Status: valid (%ds remaining)\n", status.ExpiresInSeconds)
		}
		return nil
	},
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := client.NewTokenProvider(loadConfig(), nil)
		path := provider.Store().Path

		existed := provider.Store().Exists()
		if err := provider.Clear(); err != nil {
			return fmt.Errorf("failed to clear token: %w", err)
		}

		if jsonOutput {
			return outputJSON(map[string]any{"token_file": path, "removed": existed})
		}
		if existed {
			fmt.Printf("Token file removed: %s\n", path)
		} else {
			fmt.Printf("No token file found at: %s\n", path)
		}
		return nil
	},
}

// Request command
var requestCmd = &cobra.Command{
	Use:   "request METHOD PATH",
	Short: "Send an API request",
	Long: `Sends an authenticated request and prints the JSON response.

Example:
  digisign request GET /api/envelopes/ENVELOPE_ID
  digisign request POST /api/envelopes --data '{"name":"Contract"}'
  digisign request PUT /api/envelopes/ENVELOPE_ID --data @envelope.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")
		pairs, _ := cmd.Flags().GetStringArray("query")
		expect, _ := cmd.Flags().GetIntSlice("expect")
		lang, _ := cmd.Flags().GetString("lang")

		query, err := parseQuery(pairs)
		if err != nil {
			return err
		}

		req := client.Request{
			Method:         strings.ToUpper(args[0]),
			Path:           args[1],
			Query:          query,
			ExpectedStatus: expect,
			AcceptLanguage: lang,
		}

		if data != "" {
			raw, err := readArg(data)
			if err != nil {
				return fmt.Errorf("failed to read request body: %w", err)
			}
			var body any
			if err := json.Unmarshal(raw, &body); err != nil {
				return fmt.Errorf("request body is not valid JSON: %w", err)
			}
			req.Body = body
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		c, tok, err := authorize(ctx)
		if err != nil {
			return err
		}

		var result any
		err = withRetry(ctx, func() error {
			var sendErr error
			result, sendErr = c.Send(ctx, req, tok)
			return sendErr
		})
		if err != nil {
			return describeError(err)
		}
		return outputJSON(result)
	},
}

func init() {
	requestCmd.Flags().String("data", "", "JSON body, @file or - for stdin")
	requestCmd.Flags().StringArray("query", nil, "Query parameter key=value (repeatable)")
	requestCmd.Flags().IntSlice("expect", nil, "Accepted status codes (default 200,201)")
	requestCmd.Flags().String("lang", "", "Accept-Language header")
}

// List command
var listCmd = &cobra.Command{
	Use:   "list PATH",
	Short: "List a collection",
	Long: `Lists the records of a collection endpoint.

By default only the first page is printed. --all follows the pagination
until the last page or --max-pages is reached.

Example:
  digisign list /api/envelopes --query status=completed
  digisign list /api/webhooks --all`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		maxPages, _ := cmd.Flags().GetInt("max-pages")
		pairs, _ := cmd.Flags().GetStringArray("query")
		lang, _ := cmd.Flags().GetString("lang")

		query, err := parseQuery(pairs)
		if err != nil {
			return err
		}

		ctx := context.Background()
		c, tok, err := authorize(ctx)
		if err != nil {
			return err
		}

		var records []any
		if all {
			err = withRetry(ctx, func() error {
				var collectErr error
				records, collectErr = c.Collect(ctx, args[0], tok, query,
					client.WithMaxPages(maxPages), client.WithPageLanguage(lang))
				return collectErr
			})
		} else {
			err = withRetry(ctx, func() error {
				reqCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				result, sendErr := c.Send(reqCtx, client.Request{
					Method:         http.MethodGet,
					Path:           args[0],
					Query:          query,
					AcceptLanguage: lang,
				}, tok)
				records = client.Items(result)
				return sendErr
			})
		}
		if err != nil {
			return describeError(err)
		}

		if records == nil {
			records = []any{}
		}
		return outputJSON(records)
	},
}

func init() {
	listCmd.Flags().Bool("all", false, "Fetch every page")
	listCmd.Flags().Int("max-pages", 0, "Stop after N pages with --all (0 means no limit)")
	listCmd.Flags().StringArray("query", nil, "Query parameter key=value (repeatable)")
	listCmd.Flags().String("lang", "", "Accept-Language header")
}

// Upload command
var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a file",
	Long:  "Uploads a document for use in envelopes and prints the stored file record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		c, tok, err := authorize(ctx)
		if err != nil {
			return err
		}

		var result any
		err = withRetry(ctx, func() error {
			var uploadErr error
			result, uploadErr = c.Upload(ctx, args[0], tok)
			return uploadErr
		})
		if err != nil {
			return describeError(err)
		}
		return outputJSON(result)
	},
}

// Download command
var downloadCmd = &cobra.Command{
	Use:   "download PATH",
	Short: "Download a binary resource",
	Long: `Downloads a binary resource such as a signed document.

Example:
  digisign download /api/envelopes/ENVELOPE_ID/download --output signed.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return fmt.Errorf("--output is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		c, tok, err := authorize(ctx)
		if err != nil {
			return err
		}

		var data []byte
		err = withRetry(ctx, func() error {
			var downloadErr error
			data, downloadErr = c.Download(ctx, client.Request{Method: http.MethodGet, Path: args[0]}, tok)
			return downloadErr
		})
		if err != nil {
			return err
		}

		if output == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}

		if jsonOutput {
			return outputJSON(map[string]any{"file": output, "bytes": len(data)})
		}
		fmt.Printf("Saved %d bytes to %s\n", len(data), output)
		return nil
	},
}

func init() {
	downloadCmd.Flags().String("output", "", "Destination file, or - for stdout (required)")
}

// Webhook command group
var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Webhook helpers",
}

func init() {
	webhookCmd.AddCommand(webhookVerifyCmd)
	webhookCmd.AddCommand(webhookSignCmd)
	webhookCmd.AddCommand(webhookEventsCmd)
}

var webhookVerifyCmd = &cobra.Command{
	Use:   "verify-signature",
	Short: "Verify a webhook signature",
	Long: `Checks a Signature header (t=...,s=...) against the request body.

The body may be given inline, as @file or - for stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		signature, _ := cmd.Flags().GetString("signature")
		bodyArg, _ := cmd.Flags().GetString("body")
		secret, _ := cmd.Flags().GetString("secret")
		tolerance, _ := cmd.Flags().GetDuration("tolerance")

		body, err := readArg(bodyArg)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}

		v := webhook.Verifier{Secret: secret, Tolerance: tolerance}
		if err := v.Verify(signature, body); err != nil {
			if jsonOutput {
				_ = outputJSON(map[string]any{"valid": false, "error": err.Error()})
			}
			return fmt.Errorf("signature invalid: %w", err)
		}

		if jsonOutput {
			return outputJSON(map[string]any{"valid": true})
		}
		fmt.Println("Signature valid")
		return nil
	},
}

func init() {
	webhookVerifyCmd.Flags().String("signature", "", "Signature header value (t=...,s=...)")
	webhookVerifyCmd.Flags().String("body", "", "Request body")
	webhookVerifyCmd.Flags().String("secret", "", "Webhook secret")
	webhookVerifyCmd.Flags().Duration("tolerance", webhook.DefaultTolerance, "Maximum signature age")
	_ = webhookVerifyCmd.MarkFlagRequired("signature")
	_ = webhookVerifyCmd.MarkFlagRequired("body")
	_ = webhookVerifyCmd.MarkFlagRequired("secret")
}

var webhookSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a webhook body",
	Long:  "Produces a Signature header for a body, for testing webhook receivers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		bodyArg, _ := cmd.Flags().GetString("body")
		secret, _ := cmd.Flags().GetString("secret")
		ts, _ := cmd.Flags().GetInt64("timestamp")

		body, err := readArg(bodyArg)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}

		at := time.Now()
		if ts > 0 {
			at = time.Unix(ts, 0)
		}

		header := webhook.Sign(secret, body, at)
		if jsonOutput {
			return outputJSON(map[string]string{"signature": header})
		}
		fmt.Println(header)
		return nil
	},
}

func init() {
	webhookSignCmd.Flags().String("body", "", "Request body")
	webhookSignCmd.Flags().String("secret", "", "Webhook secret")
	webhookSignCmd.Flags().Int64("timestamp", 0, "Unix timestamp (default: now)")
	_ = webhookSignCmd.MarkFlagRequired("body")
	_ = webhookSignCmd.MarkFlagRequired("secret")
}

var webhookEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List webhook event names",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return outputJSON(webhook.Events)
		}
		for _, event := range webhook.Events {
			fmt.Println(event)
		}
		return nil
	},
}
