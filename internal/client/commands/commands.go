// Package commands holds the cobra command tree for the securelink CLI.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"secure.link/internal/client"
	"secure.link/internal/secrets"
)

const (
	defaultServer = "http://localhost:8080"
	serverEnv     = "SECURELINK_SERVER"
)

// NewRootCommand builds the CLI. Each invocation gets its own flag state so
// tests can run commands side by side.
func NewRootCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
		asJSON  bool
	)

	getClient := func() *client.Client {
		return client.New(server)
	}

	rootCmd := &cobra.Command{
		Use:           "securelink",
		Short:         "SecureLink - share one-time secrets",
		Long:          "Create self-destructing secrets, check on them and burn them before they are read.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("server") {
				if env := os.Getenv(serverEnv); env != "" {
					server = env
				}
			}
			if server == "" {
				return errors.New("server address is required")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&server, "server", defaultServer, "Server base URL [env: "+serverEnv+"]")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print responses as JSON")

	ctxFor := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), timeout)
	}
	printer := func(cmd *cobra.Command) *output {
		return &output{w: cmd.OutOrStdout(), json: asJSON}
	}

	rootCmd.AddCommand(
		newCreateCmd(getClient, ctxFor, printer),
		newStatusCmd(getClient, ctxFor, printer),
		newCheckCmd(getClient, ctxFor, printer),
		newViewCmd(getClient, ctxFor),
		newBurnCmd(getClient, ctxFor, printer),
	)

	return rootCmd
}

type (
	clientFunc  func() *client.Client
	contextFunc func(*cobra.Command) (context.Context, context.CancelFunc)
	printerFunc func(*cobra.Command) *output
)

func newCreateCmd(getClient clientFunc, ctxFor contextFunc, printer printerFunc) *cobra.Command {
	var (
		password string
		ttl      int
	)

	cmd := &cobra.Command{
		Use:   "create [content]",
		Short: "Create a secret",
		Long:  "Create a secret from the argument, or from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, args)
			if err != nil {
				return err
			}

			var ttlPtr *int
			if cmd.Flags().Changed("ttl") {
				ttlPtr = &ttl
			}

			ctx, cancel := ctxFor(cmd)
			defer cancel()

			created, err := getClient().Create(ctx, content, password, ttlPtr)
			if err != nil {
				return fmt.Errorf("failed to create secret: %w", err)
			}

			out := printer(cmd)
			if out.json {
				return out.printJSON(created)
			}
			out.printf("ID:          %s\n", created.ID)
			out.printf("Admin token: %s\n", created.AdminToken)
			out.printf("URL:         %s\n", created.URL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Protect the secret with a password")
	cmd.Flags().IntVar(&ttl, "ttl", secrets.DefaultTTL, "Lifetime in seconds")

	return cmd
}

func newStatusCmd(getClient clientFunc, ctxFor contextFunc, printer printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show whether a secret is still waiting to be read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := ctxFor(cmd)
			defer cancel()

			status, err := getClient().Status(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			out := printer(cmd)
			if out.json {
				return out.printJSON(status)
			}
			if !status.Active {
				out.printf("inactive: viewed, burned or never existed\n")
				return nil
			}
			out.printf("active\n")
			if status.CreatedAt != nil {
				out.printf("Created: %s\n", status.CreatedAt.Format(time.RFC3339))
			}
			if status.ExpiresAt != nil {
				out.printf("Expires: %s\n", status.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newCheckCmd(getClient clientFunc, ctxFor contextFunc, printer printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Check whether a secret exists and needs a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := ctxFor(cmd)
			defer cancel()

			check, err := getClient().Check(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to check secret: %w", err)
			}

			out := printer(cmd)
			if out.json {
				return out.printJSON(check)
			}
			if check.RequiresPassword != nil && *check.RequiresPassword {
				out.printf("password required, %d attempts remaining\n", *check.RemainingAttempts)
				return nil
			}
			out.printf("no password required\n")
			return nil
		},
	}
}

func newViewCmd(getClient clientFunc, ctxFor contextFunc) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "view <id>",
		Short: "Reveal a secret. It is destroyed afterwards.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := ctxFor(cmd)
			defer cancel()

			content, err := getClient().View(ctx, args[0], password)
			var wrong *secrets.WrongPasswordError
			switch {
			case errors.As(err, &wrong):
				return fmt.Errorf("incorrect password, %d attempts remaining", wrong.Remaining)
			case errors.Is(err, secrets.ErrExhausted):
				return errors.New("secret destroyed after too many failed attempts")
			case err != nil:
				return fmt.Errorf("failed to view secret: %w", err)
			}

			w := cmd.OutOrStdout()
			io.WriteString(w, content)
			if !strings.HasSuffix(content, "\n") {
				io.WriteString(w, "\n")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password for a protected secret")

	return cmd
}

func newBurnCmd(getClient clientFunc, ctxFor contextFunc, printer printerFunc) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "burn <id>",
		Short: "Destroy a secret before it is read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := ctxFor(cmd)
			defer cancel()

			if err := getClient().Burn(ctx, args[0], token); err != nil {
				return fmt.Errorf("failed to burn secret: %w", err)
			}

			out := printer(cmd)
			if out.json {
				return out.printJSON(map[string]string{"status": "burned"})
			}
			out.printf("burned\n")
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Admin token returned by create")
	cmd.MarkFlagRequired("token")

	return cmd
}

func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return "", errors.New("content is required")
	}
	return content, nil
}

type output struct {
	w    io.Writer
	json bool
}

func (o *output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

func (o *output) printJSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
