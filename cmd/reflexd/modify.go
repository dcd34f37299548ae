package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	modifyContentPath string
	modifyDescription string
	modifyHistoryN    int
)

var modifyCmd = &cobra.Command{
	Use:   "modify",
	Short: "Apply and roll back file modifications with a single-level backup",
}

var modifyApplyCmd = &cobra.Command{
	Use:   "apply <target>",
	Short: "Replace a file's content, keeping the prior content as backup",
	Long: `Replace the content of an existing file. The prior content becomes the
target's backup; a second apply before rollback replaces that backup, so
rollback always restores the state just before the latest apply.

Examples:
  reflexd modify apply service.conf --content new.conf --description "raise timeout"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if modifyContentPath == "" {
			return fmt.Errorf("--content is required")
		}
		content, err := os.ReadFile(modifyContentPath)
		if err != nil {
			return fmt.Errorf("read content file: %w", err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.modify.Apply(cmd.Context(), args[0], string(content), modifyDescription); err != nil {
			return err
		}
		fmt.Printf("applied %s\n", args[0])
		return nil
	},
}

var modifyRollbackCmd = &cobra.Command{
	Use:   "rollback <target>",
	Short: "Restore the pending backup of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.modify.Rollback(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("rolled back %s\n", args[0])
		return nil
	},
}

var modifyHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List pending modifications",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		records, err := a.modify.History(cmd.Context(), modifyHistoryN)
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

func init() {
	modifyApplyCmd.Flags().StringVar(&modifyContentPath, "content", "", "file holding the new content")
	modifyApplyCmd.Flags().StringVar(&modifyDescription, "description", "", "what the change is for")
	modifyHistoryCmd.Flags().IntVar(&modifyHistoryN, "limit", 20, "maximum records to list")
	modifyCmd.AddCommand(modifyApplyCmd)
	modifyCmd.AddCommand(modifyRollbackCmd)
	modifyCmd.AddCommand(modifyHistoryCmd)
}
