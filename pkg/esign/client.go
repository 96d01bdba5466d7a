// Package esign talks to the DocuSeal e-signature API.
package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/msc-platform/ivr/pkg/common/httpclient"
	"github.com/msc-platform/ivr/pkg/common/logger"
)

var ErrNotFound = errors.New("docuseal resource not found")

// Field is one prefilled template field.
type Field struct {
	Name         string `json:"name"`
	DefaultValue string `json:"default_value"`
	Readonly     bool   `json:"readonly,omitempty"`
}

type Submitter struct {
	Role   string  `json:"role"`
	Email  string  `json:"email"`
	Name   string  `json:"name,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

type SubmissionRequest struct {
	TemplateID string      `json:"template_id"`
	SendEmail  bool        `json:"send_email"`
	Submitters []Submitter `json:"submitters"`
}

type Submission struct {
	ID         int64                    `json:"id"`
	Status     string                   `json:"status,omitempty"`
	Slug       string                   `json:"slug,omitempty"`
	EmbedSrc   string                   `json:"embed_src,omitempty"`
	CreatedAt  string                   `json:"created_at,omitempty"`
	Submitters []map[string]interface{} `json:"submitters,omitempty"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpclient.New(nil, timeout, retries),
	}
}

// CreateSubmission prefills the template for the given submitters without
// sending email.
func (c *Client) CreateSubmission(ctx context.Context, templateID string, submitters []Submitter) (*Submission, error) {
	body := SubmissionRequest{TemplateID: templateID, SendEmail: false, Submitters: submitters}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/submissions", body, &raw); err != nil {
		return nil, fmt.Errorf("create submission for template %s: %w", templateID, err)
	}

	// the API answers with either the submission or the list of its submitters
	var submission Submission
	if err := json.Unmarshal(raw, &submission); err == nil && submission.ID != 0 {
		return &submission, nil
	}
	var submitterList []map[string]interface{}
	if err := json.Unmarshal(raw, &submitterList); err != nil {
		return nil, fmt.Errorf("decode submission response: %w", err)
	}
	submission = Submission{Submitters: submitterList}
	if len(submitterList) > 0 {
		if id, ok := submitterList[0]["submission_id"].(float64); ok {
			submission.ID = int64(id)
		}
		submission.EmbedSrc, _ = submitterList[0]["embed_src"].(string)
		submission.Slug, _ = submitterList[0]["slug"].(string)
	}
	return &submission, nil
}

func (c *Client) GetSubmission(ctx context.Context, id int64) (*Submission, error) {
	var submission Submission
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/submissions/%d", id), nil, &submission); err != nil {
		return nil, fmt.Errorf("get submission %d: %w", id, err)
	}
	return &submission, nil
}

// TemplateFields lists the field names declared on a template.
func (c *Client) TemplateFields(ctx context.Context, templateID string) ([]string, error) {
	var template struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := c.do(ctx, http.MethodGet, "/templates/"+url.PathEscape(templateID), nil, &template); err != nil {
		return nil, fmt.Errorf("get template %s: %w", templateID, err)
	}

	names := make([]string, 0, len(template.Fields))
	for _, f := range template.Fields {
		if f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.Log.WithField("status", resp.StatusCode).WithField("path", path).Warn("DocuSeal request failed")
		return fmt.Errorf("docuseal returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
