package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"photowall/internal/api"
	"photowall/internal/config"
)

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image to the wall",
		Args:  requireExactlyArgs(1, "file path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			resp, err := newClient(cfg, "").UploadPhoto(commandContext(cmd), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(resp)
			}
			return writePlain("%s: %s\n", resp.Message, formatPhotoLine(resp.Photo))
		},
	}
}

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List photos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			photos, err := newClient(cfg, "").ListPhotos(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(photos)
			}
			return writePhotoList(photos)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum photos to list (server default when 0)")
	return cmd
}

func newShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one photo",
		Args:  requireExactlyArgs(1, "photo id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			photo, err := newClient(cfg, "").GetPhoto(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(photo)
			}
			return writePhotoDetail(photo)
		},
	}
}

func newDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var adminKey string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a photo (requires the admin key)",
		Args:  requireExactlyArgs(1, "photo id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(cfg, adminKey).DeletePhoto(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(resp)
			}
			return writePlain("%s: %s\n", resp.Message, resp.ID)
		},
	}

	cmd.Flags().StringVar(&adminKey, "admin-key", "", "admin key (default ADMIN_KEY)")
	return cmd
}

func newWatchCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live wall updates until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(commandContext(cmd))
			defer stop()

			return newClient(cfg, "").Watch(ctx, func(ev api.Event) error {
				if *jsonOutput {
					return writeJSON(ev)
				}
				return writePlain("%s\n", formatEventLine(ev))
			})
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
