package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/magneticlabs/credits-backend/pkg/config"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
)

// TagReader fetches the marketing tags attached to a CRM contact.
type TagReader interface {
	ContactTags(ctx context.Context, email string) ([]string, error)
}

// Client talks to the CRM contact API. Plan entitlements live there as
// contact tags; the reconciliation sweep reads them back.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a CRM API client from configuration.
func NewClient(cfg config.CRMConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "crm base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type contactsResponse struct {
	Contacts []struct {
		Email string   `json:"email"`
		Tags  []string `json:"tags"`
	} `json:"contacts"`
}

// ContactTags returns the tags on the contact matching the email. An unknown
// contact yields an empty tag set, not an error.
func (c *Client) ContactTags(ctx context.Context, email string) ([]string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	endpoint := fmt.Sprintf("%s/contacts?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building crm request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Api-Token", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling crm api")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("crm api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed contactsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding crm response")
	}
	if len(parsed.Contacts) == 0 {
		return nil, nil
	}
	return parsed.Contacts[0].Tags, nil
}
