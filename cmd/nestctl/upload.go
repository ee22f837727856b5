package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/birbparty/nestlink/sdk"
	"github.com/spf13/cobra"
)

func newUploadCmd(flags *globalFlags) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(args[0]))
			}

			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, _ *Session) error {
				info, err := c.Files.Upload(ctx, args[0], f, contentType)
				if err != nil {
					return report(cmd, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes): %s\n", info.Name, info.Size, info.URL)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: from the file extension)")
	return cmd
}
