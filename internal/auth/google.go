package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"

	"github.com/emandor/quizdesk_service/internal/apierr"
	"github.com/emandor/quizdesk_service/internal/config"
	"github.com/emandor/quizdesk_service/internal/telemetry"
)

// UserInfo is the verified external identity returned by Google.
type UserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// IdentityExchanger turns an authorization code into a verified identity.
type IdentityExchanger interface {
	Exchange(ctx context.Context, code string) (*UserInfo, error)
}

const userinfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

type GoogleClient struct {
	oauth          *oauth2.Config
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	allowedDomains []string
	userinfoURL    string
}

func NewGoogleClient(cfg *config.Config) *GoogleClient {
	rps := cfg.GoogleRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.GoogleBurst
	if burst <= 0 {
		burst = 5
	}
	maxRetries := cfg.GoogleMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &GoogleClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		client:         &http.Client{Timeout: 15 * time.Second},
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries:     maxRetries,
		allowedDomains: cfg.OAuthAllowedDomains,
		userinfoURL:    userinfoEndpoint,
	}
}

// Exchange trades the authorization code for tokens and fetches the Google
// userinfo profile. Any exchange failure surfaces as BadRequest: the code
// was invalid, expired or already consumed.
func (g *GoogleClient) Exchange(ctx context.Context, code string) (*UserInfo, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	log := telemetry.L()
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("oauth_exchange_failed")
		return nil, apierr.BadRequest("Failed to authenticate with Google. Invalid authorization code.")
	}

	ui, err := g.fetchUserinfo(ctx, tok.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("oauth_userinfo_failed")
		return nil, apierr.BadRequest("Failed to authenticate with Google. Invalid authorization code.")
	}

	if len(g.allowedDomains) > 0 && !domainAllowed(ui.Email, g.allowedDomains) {
		return nil, apierr.Forbidden("Email domain not allowed")
	}

	log.Info().Str("email", ui.Email).Str("sub", ui.Sub).Msg("login_userinfo")
	return ui, nil
}

func (g *GoogleClient) fetchUserinfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", g.userinfoURL, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			d := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
			time.Sleep(d)
		}

		resp, err := g.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			continue
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var ui UserInfo
			if err := json.Unmarshal(raw, &ui); err != nil {
				return nil, err
			}
			if ui.Sub == "" || ui.Email == "" {
				return nil, errors.New("google userinfo: missing sub/email")
			}
			return &ui, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			telemetry.L().Warn().Int("status", resp.StatusCode).Msg("userinfo_429_retry")
			lastErr = errors.New("google userinfo 429")
			continue
		}

		lastErr = errors.New("google userinfo http " + resp.Status)
		break
	}
	return nil, lastErr
}

func domainAllowed(email string, domains []string) bool {
	for _, d := range domains {
		if strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(d)) {
			return true
		}
	}
	return false
}
