package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}

		ref, err := parleyApp.Uploader.Upload(context.Background(), f, info.Size(), filepath.Base(args[0]),
			func(pct float64) {
				fmt.Fprintf(os.Stderr, "\ruploading... %3.0f%%", pct)
			})
		if err != nil {
			fmt.Fprintln(os.Stderr)
			return err
		}
		fmt.Fprintln(os.Stderr)
		fmt.Printf("file_id: %s\nurl: %s\n", ref.FileID, ref.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
