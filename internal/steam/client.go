package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/domain"
	"github.com/rf-checker/rf-checker-go/internal/retry"
)

// ErrGameNotFound the search returned no app, or the store has no data for it
var ErrGameNotFound = errors.New("game not found on Steam")

// Client Steam community search + store appdetails
type Client struct {
	httpClient *http.Client
	searchURL  string
	storeURL   string
	language   string
	currency   string
	policy     *retry.Policy
	logger     *logrus.Logger
}

func NewClient(cfg *config.SteamConfig, policy *retry.Policy, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		searchURL:  strings.TrimSuffix(cfg.SearchURL, "/"),
		storeURL:   cfg.StoreURL,
		language:   cfg.Language,
		currency:   cfg.Currency,
		policy:     policy,
		logger:     logger,
	}
}

// searchResult one entry of SearchApps; appid arrives as a string
type searchResult struct {
	AppID json.Number `json:"appid"`
	Name  string      `json:"name"`
}

type appDetailsEnvelope struct {
	Success bool        `json:"success"`
	Data    *appDetails `json:"data"`
}

type appDetails struct {
	Type             string   `json:"type"`
	Name             string   `json:"name"`
	Developers       []string `json:"developers"`
	Publishers       []string `json:"publishers"`
	HeaderImage      string   `json:"header_image"`
	Website          string   `json:"website"`
	ShortDescription string   `json:"short_description"`
	// plain string with HTML markup
	SupportedLanguages string `json:"supported_languages"`
	ReleaseDate        struct {
		Date string `json:"date"`
	} `json:"release_date"`
	PriceOverview struct {
		FinalFormatted string `json:"final_formatted"`
	} `json:"price_overview"`
	Genres []struct {
		Description string `json:"description"`
	} `json:"genres"`
	Categories []struct {
		Description string `json:"description"`
	} `json:"categories"`
	Metacritic struct {
		Score int `json:"score"`
	} `json:"metacritic"`
}

// GameInfo looks name up and returns the store metadata of the first hit.
func (c *Client) GameInfo(ctx context.Context, name string) (*domain.SteamGameInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrGameNotFound)
	}

	appID, err := c.searchAppID(ctx, name)
	if err != nil {
		return nil, err
	}

	info, err := c.appDetails(ctx, appID)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"game":   name,
		"app_id": appID,
		"title":  info.Name,
	}).Info("Steam game resolved")
	return info, nil
}

func (c *Client) searchAppID(ctx context.Context, name string) (int, error) {
	reqURL := fmt.Sprintf("%s/%s", c.searchURL, url.PathEscape(name))

	var results []searchResult
	if err := c.fetch(ctx, "steam.search", reqURL, &results); err != nil {
		return 0, fmt.Errorf("steam search failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrGameNotFound, name)
	}

	id, err := strconv.Atoi(results[0].AppID.String())
	if err != nil {
		return 0, fmt.Errorf("steam search returned invalid appid %q: %w", results[0].AppID, err)
	}
	return id, nil
}

func (c *Client) appDetails(ctx context.Context, appID int) (*domain.SteamGameInfo, error) {
	q := url.Values{}
	q.Set("appids", strconv.Itoa(appID))
	q.Set("cc", c.currency)
	q.Set("l", c.language)
	reqURL := c.storeURL + "?" + q.Encode()

	var envelope map[string]appDetailsEnvelope
	if err := c.fetch(ctx, "steam.appdetails", reqURL, &envelope); err != nil {
		return nil, fmt.Errorf("steam appdetails failed: %w", err)
	}

	entry, ok := envelope[strconv.Itoa(appID)]
	if !ok || !entry.Success || entry.Data == nil {
		return nil, fmt.Errorf("%w: no store data for app %d", ErrGameNotFound, appID)
	}
	d := entry.Data

	info := &domain.SteamGameInfo{
		AppID:              appID,
		Name:               d.Name,
		Type:               d.Type,
		Developers:         d.Developers,
		Publishers:         d.Publishers,
		ReleaseDate:        d.ReleaseDate.Date,
		Price:              d.PriceOverview.FinalFormatted,
		MetacriticScore:    d.Metacritic.Score,
		HeaderImage:        d.HeaderImage,
		Website:            d.Website,
		ShortDescription:   d.ShortDescription,
		SupportedLanguages: d.SupportedLanguages,
	}
	for _, g := range d.Genres {
		info.Genres = append(info.Genres, g.Description)
	}
	for _, cat := range d.Categories {
		info.Categories = append(info.Categories, cat.Description)
	}
	return info, nil
}

// fetch GETs reqURL into out through the retry policy.
func (c *Client) fetch(ctx context.Context, op, reqURL string, out interface{}) error {
	_, err := retry.Call(ctx, c.policy, op, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("steam returned status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return struct{}{}, retry.NewRetryableError(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, json.Unmarshal(body, out)
	}, nil)
	return err
}
