package cli

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/admitd/admitd/internal/common/httpclient"
)

type registerResponse struct {
	ScannerID        string    `json:"scanner_id"`
	EventID          string    `json:"event_id"`
	Name             string    `json:"name"`
	Status           string    `json:"status"`
	Credential       string    `json:"credential"`
	CredentialExpiry time.Time `json:"credential_expiry"`
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this machine as a checkpoint scanner",
		Long: `Register exchanges a one-time bootstrap code for a signed scanner
credential and stores the scanner identity in the config file.

Example:
  admitctl register --token XXXXXXXX-XXXXXXXX --name "front gate"`,
		RunE: runRegister,
	}
	cmd.Flags().String("token", "", "One-time registration token from the organizer")
	cmd.Flags().String("name", "", "Scanner display name")
	cmd.Flags().String("fingerprint", "", "Device fingerprint (generated and persisted when omitted)")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("name")
	return cmd
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	token, _ := cmd.Flags().GetString("token")
	name, _ := cmd.Flags().GetString("name")
	fingerprint, _ := cmd.Flags().GetString("fingerprint")
	if fingerprint == "" {
		fingerprint = cfg.Scanner.DeviceFingerprint
	}
	if fingerprint == "" {
		var err error
		fingerprint, err = generateFingerprint()
		if err != nil {
			return fmt.Errorf("failed to generate device fingerprint: %w", err)
		}
	}

	deviceInfo := map[string]string{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": hostname(),
		"client":   "admitctl " + getCLIVersion(),
	}
	body, err := json.Marshal(map[string]any{
		"token":              token,
		"name":               name,
		"device_fingerprint": fingerprint,
		"device_info":        deviceInfo,
	})
	if err != nil {
		return err
	}

	client := httpclient.NewClient(cfg)
	rspBody, _, err := client.DoRequest(httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   "scanners",
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	var rsp registerResponse
	if err := json.Unmarshal(rspBody, &rsp); err != nil {
		return fmt.Errorf("failed to parse registration response: %w", err)
	}

	cfg.Scanner = ScannerState{
		ScannerID:         rsp.ScannerID,
		EventID:           rsp.EventID,
		Name:              rsp.Name,
		Credential:        rsp.Credential,
		CredentialExpiry:  rsp.CredentialExpiry.Format(time.RFC3339),
		DeviceFingerprint: fingerprint,
	}
	if err := cfg.WriteConfig(configFile); err != nil {
		return fmt.Errorf("failed to save scanner identity: %w", err)
	}

	if jsonOutput {
		printJSON(rsp)
	} else {
		okLabel.Printf("Registered scanner %q (%s) for event %s.\n", rsp.Name, rsp.ScannerID, rsp.EventID)
		fmt.Printf("Credential valid until %s.\n", rsp.CredentialExpiry.Local().Format(time.RFC1123))
	}
	return nil
}

// generateFingerprint builds a stable-looking device fingerprint from the
// hostname plus random bytes. It is persisted so re-registration presents the
// same identity.
func generateFingerprint() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hostname() + "-" + hex.EncodeToString(buf), nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "admitctl"
	}
	return h
}
