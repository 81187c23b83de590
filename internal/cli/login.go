package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/admitd/admitd/internal/common/httpclient"
)

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the admitd server",
		Long: `Login to the admitd server and store the identity token in the
config file. The server must run in single operator mode.

Example:
  admitctl login --passwd=mypassword
  admitctl login  # uses password from config file`,
		RunE: runLogin,
	}
	cmd.Flags().String("passwd", "", "Operator password")
	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	passwd, _ := cmd.Flags().GetString("passwd")
	if passwd == "" {
		passwd = cfg.Password
		if passwd == "" {
			return fmt.Errorf("no password provided. Use --passwd flag or set password in config file")
		}
	}

	body, err := json.Marshal(map[string]string{"password": passwd})
	if err != nil {
		return err
	}

	client := httpclient.NewClient(cfg)
	rspBody, _, err := client.DoRequest(httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   "auth/login",
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	var loginRsp loginResponse
	if err := json.Unmarshal(rspBody, &loginRsp); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}

	cfg.APIKey = loginRsp.Token
	cfg.Password = passwd
	if err := cfg.WriteConfig(configFile); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]any{
			"status":     "success",
			"expires_at": loginRsp.ExpiresAt,
		})
	} else {
		okLabel.Printf("Logged in. Token valid until %s.\n", loginRsp.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}
