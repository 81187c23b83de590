package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode a credential locally without verifying it",
		Long: `Inspect decodes a ticket or scanner credential and pretty-prints
its contents. The signature is NOT checked; output is for display only and
proves nothing about authenticity.`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	token := strings.TrimSpace(args[0])
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return fmt.Errorf("not a credential: expected 3 segments, got %d", len(segments))
	}

	header, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return fmt.Errorf("malformed header segment: %w", err)
	}
	payload, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return fmt.Errorf("malformed payload segment: %w", err)
	}

	if jsonOutput {
		var h, p any
		if err := json.Unmarshal(header, &h); err != nil {
			return fmt.Errorf("header is not JSON: %w", err)
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("payload is not JSON: %w", err)
		}
		printJSON(map[string]any{"header": h, "payload": p})
		return nil
	}

	use := gjson.GetBytes(payload, "use").String()
	warnLabel.Printf("UNVERIFIED %s credential\n", use)
	fmt.Printf("  algorithm: %s\n", gjson.GetBytes(header, "alg").String())
	if eventID := gjson.GetBytes(payload, "event_id").String(); eventID != "" {
		fmt.Printf("  event:     %s", eventID)
		if title := gjson.GetBytes(payload, "event_title").String(); title != "" {
			fmt.Printf(" (%s)", title)
		}
		fmt.Println()
	}
	switch use {
	case "ticket":
		fmt.Printf("  ticket:    %s\n", gjson.GetBytes(payload, "ticket_id").String())
		fmt.Printf("  attendee:  %s\n", gjson.GetBytes(payload, "attendee_name").String())
		if ticketType := gjson.GetBytes(payload, "ticket_type").String(); ticketType != "" {
			fmt.Printf("  type:      %s\n", ticketType)
		}
	case "scanner":
		fmt.Printf("  scanner:   %s", gjson.GetBytes(payload, "scanner_id").String())
		if name := gjson.GetBytes(payload, "scanner_name").String(); name != "" {
			fmt.Printf(" (%s)", name)
		}
		fmt.Println()
	}
	if exp := gjson.GetBytes(payload, "exp").Int(); exp > 0 {
		expiry := time.Unix(exp, 0)
		if time.Now().After(expiry) {
			errorLabel.Printf("  expired:   %s\n", expiry.Local().Format(time.RFC1123))
		} else {
			fmt.Printf("  expires:   %s\n", expiry.Local().Format(time.RFC1123))
		}
	}

	var pretty map[string]any
	if err := json.Unmarshal(payload, &pretty); err != nil {
		return fmt.Errorf("payload is not JSON: %w", err)
	}
	prettyJSON, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(prettyJSON))
	return nil
}
