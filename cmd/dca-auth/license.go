package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	dcaauth "github.com/opengovern/dca-auth-go"
	"github.com/opengovern/dca-auth-go/apierr"
)

var (
	hardwareID string
	deviceName string
	listPage   int
	listLimit  int
	listStatus string
)

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Verify, activate and inspect licenses",
}

var licenseVerifyCmd = &cobra.Command{
	Use:   "verify <key>",
	Short: "Verify a license key for this machine",
	Args:  cobra.ExactArgs(1),
	RunE:  runLicenseVerify,
}

var licenseActivateCmd = &cobra.Command{
	Use:   "activate <key>",
	Short: "Activate a license key on this machine",
	Args:  cobra.ExactArgs(1),
	RunE:  runLicenseActivate,
}

var licenseDeactivateCmd = &cobra.Command{
	Use:   "deactivate <key>",
	Short: "Release this machine's activation",
	Args:  cobra.ExactArgs(1),
	RunE:  runLicenseDeactivate,
}

var licenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List licenses visible to the current user",
	RunE:  runLicenseList,
}

func init() {
	for _, c := range []*cobra.Command{licenseVerifyCmd, licenseActivateCmd, licenseDeactivateCmd} {
		c.Flags().StringVar(&hardwareID, "hardware-id", "", "Hardware fingerprint of this machine (required)")
		if err := c.MarkFlagRequired("hardware-id"); err != nil {
			panic(err)
		}
	}
	licenseActivateCmd.Flags().StringVar(&deviceName, "device-name", "", "Human readable device name")

	licenseListCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	licenseListCmd.Flags().IntVar(&listLimit, "limit", 20, "Page size (max 100)")
	licenseListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (ACTIVE, EXPIRED, ...)")

	licenseCmd.AddCommand(licenseVerifyCmd)
	licenseCmd.AddCommand(licenseActivateCmd)
	licenseCmd.AddCommand(licenseDeactivateCmd)
	licenseCmd.AddCommand(licenseListCmd)
}

func runLicenseVerify(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	res, err := client.Licenses.Verify(commandContext(cmd), dcaauth.VerifyLicenseRequest{
		Key:        args[0],
		HardwareID: hardwareID,
	})
	if err != nil {
		return describeLicenseError(err)
	}
	if !res.Valid {
		return fmt.Errorf("license is not valid: %s", res.Error)
	}
	return printJSON(cmd, res)
}

func runLicenseActivate(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	act, err := client.Licenses.Activate(commandContext(cmd), dcaauth.ActivateLicenseRequest{
		Key:        args[0],
		HardwareID: hardwareID,
		DeviceName: deviceName,
	})
	if err != nil {
		return describeLicenseError(err)
	}
	return printJSON(cmd, act)
}

func runLicenseDeactivate(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	err = client.Licenses.Deactivate(commandContext(cmd), dcaauth.DeactivateLicenseRequest{
		Key:        args[0],
		HardwareID: hardwareID,
	})
	if err != nil {
		return describeLicenseError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Deactivated")
	return nil
}

func runLicenseList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	params := dcaauth.SearchParams{Page: listPage, Limit: listLimit}
	if listStatus != "" {
		params.Filters = map[string]string{"status": listStatus}
	}
	page, err := client.Licenses.List(commandContext(cmd), params)
	if err != nil {
		return err
	}
	for _, lic := range page.Data {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d/%d\n",
			lic.ID, lic.Key, lic.Status, lic.CurrentActivations, lic.MaxActivations)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d total)\n", page.Page, page.TotalPages, page.Total)
	return nil
}

// describeLicenseError turns license failures into one-line messages.
func describeLicenseError(err error) error {
	apiErr := apierr.FromError(err)
	switch apiErr.Kind {
	case apierr.KindLicenseExpired, apierr.KindLicenseNotFound, apierr.KindLicenseInactive, apierr.KindMaxActivations:
		return errors.New(apiErr.Message)
	case apierr.KindRateLimit:
		return fmt.Errorf("rate limited, retry in %ds", apiErr.RetryAfter)
	}
	return err
}
