package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-dead-mans-switch/internal/config"
	jwtinfra "github.com/go-dead-mans-switch/internal/infrastructure/jwt"
	"github.com/go-dead-mans-switch/internal/pkg/secretshare"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "switchctl",
		Short:         "Operator tool for the dead man's switch service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(splitCmd())
	rootCmd.AddCommand(reconstructCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(tickCmd())
	return rootCmd
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a secret into three shares, any two of which recover it",
		Long:  `Reads the secret from --hex, or from stdin when --hex is empty, and prints one share per line.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hexSecret, _ := cmd.Flags().GetString("hex")
			var secret []byte
			var err error
			if hexSecret != "" {
				secret, err = hex.DecodeString(strings.TrimPrefix(hexSecret, "0x"))
				if err != nil {
					return fmt.Errorf("decode --hex: %w", err)
				}
			} else if secret, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			shares, err := secretshare.Split(secret)
			if err != nil {
				return err
			}
			for _, s := range shares {
				fmt.Fprintln(cmd.OutOrStdout(), s.String())
			}
			return nil
		},
	}
	cmd.Flags().String("hex", "", "secret as hex (default: raw bytes from stdin)")
	return cmd
}

func reconstructCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconstruct <share> <share>",
		Short: "Recover a secret from two distinct shares and print it as hex",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := secretshare.ReconstructStrings(args[0], args[1])
			if err != nil {
				return fmt.Errorf("invalid shares")
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(secret))
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token with the configured JWT private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			p, err := jwtinfra.NewProvider(config.Load())
			if err != nil {
				return err
			}
			tok, err := p.Sign(userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id carried by the token (required)")
	cmd.Flags().String("role", "admin", "role carried by the token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func tickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass on a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			baseURL, _ := cmd.Flags().GetString("url")
			token, _ := cmd.Flags().GetString("token")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return postTick(ctx, http.DefaultClient, baseURL, token, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("url", "http://localhost:3000", "server base URL")
	cmd.Flags().String("token", os.Getenv("SWITCHCTL_TOKEN"), "admin bearer token")
	cmd.Flags().Duration("timeout", 5*time.Minute, "request timeout")
	return cmd
}

func postTick(ctx context.Context, client *http.Client, baseURL, token string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/v1/admin/tick", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("tick request: %w", err)
	}
	defer resp.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tick failed with status %d: %s", resp.StatusCode, body)
	}
	_, err = fmt.Fprintln(out, string(body))
	return err
}
