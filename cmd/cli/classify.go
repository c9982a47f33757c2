package cli

import (
	"encoding/json"
	"fmt"

	"sweepnspect/internal/models"
	"sweepnspect/internal/services"

	"github.com/spf13/cobra"
)

var (
	classifyFrom    string
	classifyName    string
	classifySubject string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify an email by sender and subject",
	Example: `  sweepnspect classify --from billing@stripe.com --subject "Invoice available"
  sweepnspect classify --from ann@example.com --subject "[BUG] Crash on launch"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if classifyFrom == "" && classifySubject == "" {
			return fmt.Errorf("--from or --subject is required")
		}
		email := models.Email{
			Subject: classifySubject,
			From:    models.EmailAddress{Address: classifyFrom, Name: classifyName},
		}
		result := services.NewClassifier(nil).Classify(email)

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyFrom, "from", "", "sender address")
	classifyCmd.Flags().StringVar(&classifyName, "name", "", "sender display name")
	classifyCmd.Flags().StringVar(&classifySubject, "subject", "", "subject line")
	rootCmd.AddCommand(classifyCmd)
}
