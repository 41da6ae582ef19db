package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	webhookSecret    string
	webhookSignature string
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Webhook utilities",
}

var webhookVerifyCmd = &cobra.Command{
	Use:   "verify [payload-file]",
	Short: "Check a delivery body against its X-DCA-Signature",
	Long: `Check a webhook delivery body against the value of its X-DCA-Signature
header. The body is read from the given file, or from stdin when omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWebhookVerify,
}

func init() {
	webhookVerifyCmd.Flags().StringVar(&webhookSecret, "secret", os.Getenv("DCA_AUTH_WEBHOOK_SECRET"), "Webhook signing secret")
	webhookVerifyCmd.Flags().StringVar(&webhookSignature, "signature", "", "Signature header value (required)")
	if err := webhookVerifyCmd.MarkFlagRequired("signature"); err != nil {
		panic(err)
	}
	webhookCmd.AddCommand(webhookVerifyCmd)
}

func runWebhookVerify(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Webhooks.VerifySignature(payload, webhookSignature, webhookSecret); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signature OK")
	return nil
}
