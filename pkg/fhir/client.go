// Package fhir reads the clinical records that back an episode from the
// external FHIR server. Lookups never fail the caller: each returns a Result
// that is either data or the reason it could not be fetched.
package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/msc-platform/ivr/pkg/common/httpclient"
	"github.com/msc-platform/ivr/pkg/common/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const npiSystem = "http://hl7.org/fhir/sid/us-npi"

// Result is the outcome of one external lookup.
type Result struct {
	Success bool
	Data    map[string]interface{}
	Reason  string
}

func ok(data map[string]interface{}) Result {
	return Result{Success: true, Data: data}
}

func failed(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
	Retries      int
}

type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewClient authenticates with client credentials when a token URL is set.
func NewClient(cfg Config) *Client {
	base := &http.Client{Transport: httpclient.NewTransport()}
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
			Transport: httpclient.NewTransport(),
			Timeout:   cfg.Timeout,
		})
		base = cc.Client(tokenCtx)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpclient.New(base, cfg.Timeout, cfg.Retries),
	}
}

func (c *Client) GetPatient(ctx context.Context, id string) Result {
	res := c.read(ctx, "Patient/"+url.PathEscape(id))
	if !res.Success {
		return res
	}
	return ok(summarizePatient(res.Data))
}

// SearchCoverage returns the first active coverage for the patient.
func (c *Client) SearchCoverage(ctx context.Context, patientID string) Result {
	q := url.Values{}
	q.Set("patient", patientID)
	q.Set("status", "active")
	res := c.read(ctx, "Coverage?"+q.Encode())
	if !res.Success {
		return res
	}

	entries := sliceAt(res.Data, "entry")
	if len(entries) == 0 {
		return failed("no active coverage for patient %s", patientID)
	}
	entry, _ := entries[0].(map[string]interface{})
	return ok(summarizeCoverage(mapAt(entry, "resource")))
}

func (c *Client) GetPractitioner(ctx context.Context, id string) Result {
	res := c.read(ctx, "Practitioner/"+url.PathEscape(id))
	if !res.Success {
		return res
	}
	return ok(summarizePractitioner(res.Data))
}

func (c *Client) GetOrganization(ctx context.Context, id string) Result {
	res := c.read(ctx, "Organization/"+url.PathEscape(id))
	if !res.Success {
		return res
	}
	return ok(summarizeOrganization(res.Data))
}

func (c *Client) read(ctx context.Context, path string) Result {
	if c.baseURL == "" {
		return failed("fhir server not configured")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return failed("build request: %v", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return failed("request %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return failed("%s not found", path)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failed("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var resource map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&resource); err != nil {
		return failed("decode %s: %v", path, err)
	}
	if kind, _ := resource["resourceType"].(string); kind == "OperationOutcome" {
		logger.Log.WithField("path", path).Warn("FHIR server returned OperationOutcome")
		return failed("%s returned OperationOutcome", path)
	}
	return ok(resource)
}
