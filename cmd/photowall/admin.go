package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"photowall/internal/auth"
	"photowall/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations",
	}

	cmd.AddCommand(newAdminEnforceCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminHashKeyCmd())
	return cmd
}

func newAdminEnforceCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var adminKey string

	cmd := &cobra.Command{
		Use:   "enforce",
		Short: "Trim the catalog to max_photos now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(cfg, adminKey).Enforce(commandContext(cmd))
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(resp)
			}
			return writePlain("max_photos: %d\ncandidates: %d\nevicted: %d\nalready_gone: %d\nblob_failures: %d\nduration_ms: %d\n",
				resp.MaxPhotos, resp.Candidates, resp.Evicted, resp.AlreadyGone, resp.BlobFailures, resp.DurationMS)
		},
	}

	cmd.Flags().StringVar(&adminKey, "admin-key", "", "admin key (default ADMIN_KEY)")
	return cmd
}

func newAdminHashKeyCmd() *cobra.Command {
	var stdin bool

	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print a bcrypt hash of an admin key for admin_key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			switch {
			case stdin:
				line, err := readSecretLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				secret = line
			case len(args) == 1:
				secret = args[0]
			default:
				return fmt.Errorf("key is required (argument or --stdin)")
			}

			hashed, err := auth.HashSecret(secret)
			if err != nil {
				return err
			}
			return writePlain("%s\n", hashed)
		},
	}

	cmd.Flags().BoolVar(&stdin, "stdin", false, "read the key from stdin")
	return cmd
}

func readSecretLine(r io.Reader) (string, error) {
	if r == nil {
		r = os.Stdin
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
