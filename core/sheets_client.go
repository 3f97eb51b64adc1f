package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultSheetsBaseURL is the public Google Sheets API endpoint.
const DefaultSheetsBaseURL = "https://sheets.googleapis.com"

// FetchError reasons.
const (
	ReasonInvalidArgument = "invalid-argument"
	ReasonTransport       = "transport"
	ReasonDecode          = "decode"
	ReasonEmptyDataset    = "empty-dataset"
	ReasonQuery           = "query"
)

// FetchError reports why a credential grid could not be produced.
type FetchError struct {
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return "fetch credentials: " + e.Reason
	}
	return "fetch credentials: " + e.Reason + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// GridSource abstracts the tabular credential store.
type GridSource interface {
	Fetch(ctx context.Context, sheetID, cellRange, apiKey string) (CredentialGrid, error)
}

// HTTPSheetsClient reads value ranges from the Google Sheets v4 API.
type HTTPSheetsClient struct {
	client *http.Client
	base   string
}

func NewHTTPSheetsClient(baseURL string, timeout time.Duration) *HTTPSheetsClient {
	if baseURL == "" {
		baseURL = DefaultSheetsBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSheetsClient{
		client: &http.Client{Timeout: timeout},
		base:   strings.TrimRight(baseURL, "/"),
	}
}

// Sheets API payload structures

type valueRange struct {
	Range          string     `json:"range"`
	MajorDimension string     `json:"majorDimension"`
	Values         [][]string `json:"values"`
}

type sheetsErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Fetch performs a single GET of sheetID/cellRange. It never retries.
func (c *HTTPSheetsClient) Fetch(ctx context.Context, sheetID, cellRange, apiKey string) (CredentialGrid, error) {
	if sheetID == "" || cellRange == "" || apiKey == "" {
		return nil, &FetchError{Reason: ReasonInvalidArgument, Err: ErrSourceNotConfigured}
	}

	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s", c.base, url.PathEscape(sheetID), url.PathEscape(cellRange))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?key="+url.QueryEscape(apiKey), nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonInvalidArgument, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, key included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = fmt.Errorf("%s %s: %w", uerr.Op, endpoint, uerr.Err)
		}
		return nil, &FetchError{Reason: ReasonTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body sheetsErrorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
		return nil, &FetchError{
			Reason: fmt.Sprintf("status %d", resp.StatusCode),
			Err:    fmt.Errorf("sheets api: %s %s", body.Error.Status, body.Error.Message),
		}
	}

	var vr valueRange
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, &FetchError{Reason: ReasonDecode, Err: err}
	}
	if len(vr.Values) == 0 {
		return nil, &FetchError{Reason: ReasonEmptyDataset, Err: ErrEmptyDataset}
	}
	return CredentialGrid(vr.Values), nil
}
