package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/admitd/admitd/internal/common/httpclient"
)

type scanResponse struct {
	Outcome      string     `json:"outcome"`
	Reason       string     `json:"reason,omitempty"`
	TicketID     string     `json:"ticket_id,omitempty"`
	AttendeeName string     `json:"attendee_name,omitempty"`
	TicketType   string     `json:"ticket_type,omitempty"`
	EventDay     string     `json:"event_day,omitempty"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy  string     `json:"checked_in_by,omitempty"`
	Location     string     `json:"location,omitempty"`
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Present a ticket credential for check-in",
		Long: `Scan presents a ticket credential at the server's check-in endpoint
using the scanner identity stored by a previous register.

Example:
  admitctl scan --token eyJhbGciOi...
  admitctl scan --token-file ticket.jwt --location "gate A"`,
		RunE: runScan,
	}
	cmd.Flags().String("token", "", "Ticket credential to present")
	cmd.Flags().String("token-file", "", "Read the ticket credential from a file")
	cmd.Flags().String("location", "", "Checkpoint location label")
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if cfg.Scanner.ScannerID == "" || cfg.Scanner.Credential == "" {
		return fmt.Errorf("no scanner identity found. Run \"admitctl register\" first")
	}

	token, _ := cmd.Flags().GetString("token")
	tokenFile, _ := cmd.Flags().GetString("token-file")
	if token == "" && tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return fmt.Errorf("failed to read token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return fmt.Errorf("no ticket credential provided. Use --token or --token-file")
	}
	location, _ := cmd.Flags().GetString("location")

	body, err := json.Marshal(map[string]string{
		"scanner_id":         cfg.Scanner.ScannerID,
		"device_fingerprint": cfg.Scanner.DeviceFingerprint,
		"token":              token,
		"location":           location,
	})
	if err != nil {
		return err
	}

	client := httpclient.NewClient(cfg)
	rspBody, _, err := client.DoRequest(httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   "checkins",
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("check-in request failed: %w", err)
	}

	var rsp scanResponse
	if err := json.Unmarshal(rspBody, &rsp); err != nil {
		return fmt.Errorf("failed to parse check-in response: %w", err)
	}

	if jsonOutput {
		printJSON(rsp)
		return nil
	}
	printScanResult(&rsp)
	return nil
}

func printScanResult(rsp *scanResponse) {
	switch rsp.Outcome {
	case "valid":
		okLabel.Printf("ADMIT")
	case "duplicate":
		warnLabel.Printf("DUPLICATE")
	default:
		errorLabel.Printf("REJECT (%s)", rsp.Outcome)
	}
	if rsp.AttendeeName != "" {
		fmt.Printf("  %s", rsp.AttendeeName)
	}
	if rsp.TicketType != "" {
		fmt.Printf("  [%s]", rsp.TicketType)
	}
	fmt.Println()

	if rsp.Reason != "" {
		fmt.Printf("  reason: %s\n", rsp.Reason)
	}
	if rsp.Outcome == "duplicate" && rsp.CheckedInAt != nil {
		fmt.Printf("  first checked in at %s", rsp.CheckedInAt.Local().Format(time.RFC1123))
		if rsp.Location != "" {
			fmt.Printf(" (%s)", rsp.Location)
		}
		fmt.Println()
	}
}
