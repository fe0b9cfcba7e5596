package ice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

// Twilio fetches Network Traversal Service tokens.
type Twilio struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	Client     *http.Client
}

func NewTwilio(accountSID, authToken string) *Twilio {
	return &Twilio{
		AccountSID: accountSID,
		AuthToken:  authToken,
		BaseURL:    DefaultTwilioBaseURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type twilioToken struct {
	ICEServers []twilioICEServer `json:"ice_servers"`
}

type twilioICEServer struct {
	URL        string       `json:"url"`
	URLs       stringOrList `json:"urls"`
	Username   string       `json:"username"`
	Credential string       `json:"credential"`
}

// stringOrList accepts "urls" as either a single string or an array.
type stringOrList []string

func (s *stringOrList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func (t *Twilio) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	if t.AccountSID == "" || t.AuthToken == "" {
		return nil, fmt.Errorf("%w: twilio credentials not set", ErrProviderUnavailable)
	}

	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = DefaultTwilioBaseURL
	}
	url := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Tokens.json", base, t.AccountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: twilio returned %s", ErrProviderUnavailable, resp.Status)
	}

	var tok twilioToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode twilio token: %w", err)
	}

	out := make([]webrtc.ICEServer, 0, len(tok.ICEServers))
	for _, s := range tok.ICEServers {
		urls := trimEmpty(s.URLs)
		if len(urls) == 0 && s.URL != "" {
			urls = []string{s.URL}
		}
		if len(urls) == 0 {
			continue
		}
		server := webrtc.ICEServer{URLs: urls, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: twilio token has no ice servers", ErrProviderUnavailable)
	}
	return out, nil
}
