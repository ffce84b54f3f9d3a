package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultZoomAPI   = "https://api.zoom.us/v2"
	defaultZoomToken = "https://zoom.us/oauth/token"
)

type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	TokenURL     string
	// HTTPClient is the transport for both the token and the API calls.
	HTTPClient *http.Client
}

func (c ZoomConfig) Enabled() bool {
	return c.AccountID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// ZoomAdapter creates scheduled meetings through a Server-to-Server OAuth app.
type ZoomAdapter struct {
	client  *http.Client
	baseURL string
}

func NewZoomAdapter(cfg ZoomConfig) *ZoomAdapter {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultZoomAPI
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultZoomToken
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountID},
		},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = base.Timeout
	return &ZoomAdapter{client: client, baseURL: strings.TrimRight(cfg.APIBaseURL, "/")}
}

type zoomCreateRequest struct {
	Topic     string       `json:"topic"`
	Type      int          `json:"type"`
	StartTime string       `json:"start_time"`
	Duration  int          `json:"duration"`
	Timezone  string       `json:"timezone"`
	Settings  zoomSettings `json:"settings"`
}

type zoomSettings struct {
	JoinBeforeHost bool `json:"join_before_host"`
	WaitingRoom    bool `json:"waiting_room"`
}

type zoomCreateResponse struct {
	ID        int64  `json:"id"`
	JoinURL   string `json:"join_url"`
	Password  string `json:"password"`
	HostEmail string `json:"host_email"`
}

func (a *ZoomAdapter) Provision(ctx context.Context, req Request) (Details, error) {
	user := "me"
	if req.HostEmail != "" {
		user = url.PathEscape(req.HostEmail)
	}
	minutes := int(req.Duration / time.Minute)
	if minutes <= 0 {
		minutes = 50
	}
	body, err := json.Marshal(zoomCreateRequest{
		Topic:     req.Topic,
		Type:      2,
		StartTime: req.StartsAt.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  minutes,
		Timezone:  "UTC",
		Settings:  zoomSettings{WaitingRoom: true},
	})
	if err != nil {
		return Details{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/users/"+user+"/meetings", bytes.NewReader(body))
	if err != nil {
		return Details{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Details{}, fmt.Errorf("zoom create meeting: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Details{}, fmt.Errorf("zoom create meeting: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out zoomCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Details{}, fmt.Errorf("zoom create meeting: decode: %w", err)
	}
	if out.JoinURL == "" {
		return Details{}, ErrNoMeetingLink
	}
	host := out.HostEmail
	if host == "" {
		host = req.HostEmail
	}
	return Details{
		Platform:   Zoom,
		URL:        out.JoinURL,
		MeetingID:  strconv.FormatInt(out.ID, 10),
		Password:   out.Password,
		HostEmail:  host,
		GuestEmail: req.GuestEmail,
	}, nil
}

func (a *ZoomAdapter) Cancel(ctx context.Context, d Details) error {
	if d.MeetingID == "" {
		return nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		a.baseURL+"/meetings/"+url.PathEscape(d.MeetingID)+"?schedule_for_reminder=true", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("zoom delete meeting: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("zoom delete meeting: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
