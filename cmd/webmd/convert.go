package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [url]",
	Short: "Fetch a webpage and print it as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		rich, _ := cmd.Flags().GetBool("rich")

		conv := newConverter(cfg)
		convert := conv.ParseWebpageToMarkdown
		if rich {
			convert = conv.ParseWebpageToRichMarkdown
		}
		md, err := convert(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if output != "" {
			return os.WriteFile(output, []byte(md), 0o644)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), md)
		return err
	},
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "write Markdown to this file instead of stdout")
	convertCmd.Flags().Bool("rich", false, "render the whole document with html-to-markdown, keeping inline markup and tables")
	rootCmd.AddCommand(convertCmd)
}
