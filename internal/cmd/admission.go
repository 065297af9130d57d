package cmd

import "github.com/spf13/cobra"

var admissionCmd = &cobra.Command{
	Use:   "admission",
	Short: "Manage persisted admission window state",
}

func init() {
	admissionCmd.AddCommand(admissionListCmd)
	admissionCmd.AddCommand(admissionResetCmd)
	admissionCmd.AddCommand(admissionCheckCmd)
	rootCmd.AddCommand(admissionCmd)
}
