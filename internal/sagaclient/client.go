// Package sagaclient is the outbound HTTP client for the ecommerce "saga"
// callback service — the two fire-and-forget POSTs the invoice service's
// event handlers make once an invoice's orders change state. Grounded on
// the teacher's ActaLinkClient: a plain net/http.Client wrapped in one
// struct holding just the base URL, a doRequest helper building and
// executing the request, and github.com/pkg/errors for wrapping non-2xx
// responses.
package sagaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cyphera/paymentd/internal/ledger"
)

// Client is the saga notifications the invoice service sends.
type Client interface {
	NotifyInvoicePaid(ctx context.Context, invoiceID uuid.UUID) error
	UpdateOrderState(ctx context.Context, orders []OrderState) error
}

// OrderState is one order's updated lifecycle state, as the saga service
// expects it on the wire.
type OrderState struct {
	OrderID string          `json:"order_id"`
	State   ledger.OrderState `json:"state"`
}

// HTTPClient talks to the saga service over plain HTTP with no
// authentication header, matching spec's saga contract (internal network
// call, no API key).
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a saga client against baseURL (e.g.
// "http://saga.internal").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type setPaidRequest struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

// NotifyInvoicePaid calls POST {saga_url}/orders/set_paid.
func (c *HTTPClient) NotifyInvoicePaid(ctx context.Context, invoiceID uuid.UUID) error {
	body, err := json.Marshal(setPaidRequest{InvoiceID: invoiceID})
	if err != nil {
		return errors.Wrap(err, "sagaclient: encode set_paid request")
	}
	_, err = c.doRequest(ctx, http.MethodPost, "/orders/set_paid", body)
	return err
}

type updateStateRequest struct {
	Orders []OrderState `json:"orders"`
}

// UpdateOrderState calls POST {saga_url}/orders/update_state.
func (c *HTTPClient) UpdateOrderState(ctx context.Context, orders []OrderState) error {
	body, err := json.Marshal(updateStateRequest{Orders: orders})
	if err != nil {
		return errors.Wrap(err, "sagaclient: encode update_state request")
	}
	_, err = c.doRequest(ctx, http.MethodPost, "/orders/update_state", body)
	return err
}

// doRequest sends one request against baseURL+path and returns the raw
// response body, wrapping non-2xx responses with their status code.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "sagaclient: build request")
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "sagaclient: request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "sagaclient: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrap(fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)), "sagaclient: saga service error")
	}
	return respBody, nil
}

var _ Client = (*HTTPClient)(nil)
