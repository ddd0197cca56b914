// Package main is the entry point for the custos-sign binary.
// It provides a CLI for signing webhook payloads and sending test deliveries
// to a running gateway.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/custodix/custos-oss/internal/webhook"
	"github.com/custodix/custos-oss/pkg/domain"
)

const secretEnvVar = "CUSTOS_CUSTODY_WEBHOOK_SECRET"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "custos-sign",
		Short: "Sign and send custody webhook payloads",
		Long: `Signs webhook payloads with the shared HMAC secret and optionally delivers
them to a running custos-gate instance. Intended for integration testing and
operator diagnostics.

Example:
  custos-sign sign --secret s3cret payload.json
  custos-sign send --url http://localhost:8090/ --type transfer.requested payload.json`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("secret", "s", "", "Webhook HMAC secret (defaults to $"+secretEnvVar+")")

	rootCmd.AddCommand(newSignCmd())
	rootCmd.AddCommand(newSendCmd())

	return rootCmd
}

func newSignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign [payload-file]",
		Short: "Print the hex HMAC-SHA256 signature of a payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := resolveSecret(cmd)
			if err != nil {
				return err
			}
			body, err := readPayload(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign([]byte(secret), body))
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send [payload-file]",
		Short: "Wrap a payload in a signed envelope and POST it to a gateway",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSend,
	}

	sendCmd.Flags().StringP("url", "u", "http://localhost:8090/", "Gateway webhook URL")
	sendCmd.Flags().StringP("type", "t", "transfer.requested", "Event type")
	sendCmd.Flags().String("id", "", "Event id (defaults to a new UUID; reuse to exercise dedupe)")
	sendCmd.Flags().Duration("timeout", 10*time.Second, "Request timeout")

	return sendCmd
}

func runSend(cmd *cobra.Command, args []string) error {
	secret, err := resolveSecret(cmd)
	if err != nil {
		return err
	}
	payload, err := readPayload(args)
	if err != nil {
		return err
	}

	url, _ := cmd.Flags().GetString("url")
	eventType, _ := cmd.Flags().GetString("type")
	eventID, _ := cmd.Flags().GetString("id")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if eventID == "" {
		eventID = uuid.NewString()
	}

	envelope := domain.Envelope{
		ID:        eventID,
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
		Payload:   json.RawMessage(payload),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SignatureHeader, webhook.Sign([]byte(secret), body))

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.Status, string(bytes.TrimSpace(respBody)))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return nil
}

func resolveSecret(cmd *cobra.Command) (string, error) {
	secret, err := cmd.Flags().GetString("secret")
	if err != nil {
		return "", err
	}
	if secret == "" {
		secret = os.Getenv(secretEnvVar)
	}
	if secret == "" {
		return "", fmt.Errorf("no secret: pass --secret or set %s", secretEnvVar)
	}
	return secret, nil
}

// readPayload reads the payload from the named file, or stdin when no file
// is given.
func readPayload(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read payload file: %w", err)
	}
	return body, nil
}
