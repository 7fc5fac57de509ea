// Package cryptopsp is the crypto payment-service-provider client: signed
// rate lookups, pooled-account management, and inbound webhook signature
// verification. The real Client wraps the teacher's HTTPClient pattern
// (adapted in httpclient.go); FakeClient is an in-memory stand-in for tests.
package cryptopsp

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/pkg/errs"
)

// Account is a pooled wallet issued by the crypto PSP.
type Account struct {
	ID            string `json:"id"`
	Currency      string `json:"currency"`
	WalletAddress string `json:"walletAddress"`
	Pooled        bool   `json:"pooled"`
}

// Rate is an exchange quote between two currencies.
type Rate struct {
	ExchangeID string          `json:"exchangeId"`
	Rate       decimal.Decimal `json:"rate"`
}

// RefreshResult reports whether refresh_rate actually produced a new quote.
type RefreshResult struct {
	Rate      decimal.Decimal
	IsNewRate bool
}

// Client is the capability set the invoice service and event engine depend
// on — never the concrete HTTP implementation, so tests can swap in
// FakeClient.
type Client interface {
	GetRate(ctx context.Context, from, to string, amountInTo decimal.Decimal) (*Rate, error)
	RefreshRate(ctx context.Context, exchangeID string) (*RefreshResult, error)
	CreateAccount(ctx context.Context, idempotencyKey, currency string, pooled bool) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccount(ctx context.Context, id string) (*Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// RealClient talks to the crypto PSP's HTTP API, signing every outbound
// request per the wire contract in signing.go.
type RealClient struct {
	http    *HTTPClient
	signer  *Signer
	userJWT string
	log     *zap.Logger
}

// NewRealClient wraps an HTTPClient already configured with WithBaseURL.
// userJWT is the operator JWT sent as the bearer token on every request
// (6. EXTERNAL INTERFACES); it's verified once at startup via ParseOperatorJWT.
func NewRealClient(httpClient *HTTPClient, signer *Signer, userJWT string, log *zap.Logger) *RealClient {
	return &RealClient{http: httpClient, signer: signer, userJWT: userJWT, log: log}
}

// signedOptions builds the four headers required on every crypto PSP
// request: authorization, timestamp, device-id, sign. device-id is always
// empty, per the wire contract.
func (c *RealClient) signedOptions() ([]RequestOption, error) {
	ts, sig, err := c.signer.SignOutbound(time.Now())
	if err != nil {
		return nil, err
	}
	return []RequestOption{
		WithBearerToken(c.userJWT),
		WithHeader("timestamp", ts),
		WithHeader("device-id", ""),
		WithHeader("sign", sig),
	}, nil
}

type getRateResponse struct {
	ExchangeID string          `json:"exchangeId"`
	Rate       decimal.Decimal `json:"rate"`
}

func (c *RealClient) GetRate(ctx context.Context, from, to string, amountInTo decimal.Decimal) (*Rate, error) {
	opts, err := c.signedOptions()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: sign get_rate request")
	}
	opts = append(opts,
		WithQueryParam("from", from),
		WithQueryParam("to", to),
		WithQueryParam("amountInTo", amountInTo.String()))

	resp, err := c.http.Get(ctx, "rates", opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: get_rate")
	}
	var out getRateResponse
	if err := c.http.ProcessJSONResponse(resp, &out); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: decode get_rate response")
	}
	return &Rate{ExchangeID: out.ExchangeID, Rate: out.Rate}, nil
}

type refreshRateResponse struct {
	Rate      decimal.Decimal `json:"rate"`
	IsNewRate bool            `json:"isNewRate"`
}

func (c *RealClient) RefreshRate(ctx context.Context, exchangeID string) (*RefreshResult, error) {
	opts, err := c.signedOptions()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: sign refresh_rate request")
	}
	resp, err := c.http.Post(ctx, fmt.Sprintf("rates/%s/refresh", exchangeID), nil, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: refresh_rate")
	}
	var out refreshRateResponse
	if err := c.http.ProcessJSONResponse(resp, &out); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: decode refresh_rate response")
	}
	return &RefreshResult{Rate: out.Rate, IsNewRate: out.IsNewRate}, nil
}

type createAccountRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Currency       string `json:"currency"`
	Pooled         bool   `json:"pooled"`
}

func (c *RealClient) CreateAccount(ctx context.Context, idempotencyKey, currency string, pooled bool) (*Account, error) {
	opts, err := c.signedOptions()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: sign create_account request")
	}
	resp, err := c.http.Post(ctx, "accounts", createAccountRequest{
		IdempotencyKey: idempotencyKey, Currency: currency, Pooled: pooled,
	}, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: create_account")
	}
	var out Account
	if err := c.http.ProcessJSONResponse(resp, &out); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: decode create_account response")
	}
	return &out, nil
}

func (c *RealClient) ListAccounts(ctx context.Context) ([]Account, error) {
	opts, err := c.signedOptions()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: sign list_accounts request")
	}
	resp, err := c.http.Get(ctx, "accounts", opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: list_accounts")
	}
	var out []Account
	if err := c.http.ProcessJSONResponse(resp, &out); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: decode list_accounts response")
	}
	return out, nil
}

func (c *RealClient) GetAccount(ctx context.Context, id string) (*Account, error) {
	opts, err := c.signedOptions()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: sign get_account request")
	}
	resp, err := c.http.Get(ctx, fmt.Sprintf("accounts/%s", id), opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: get_account")
	}
	var out Account
	if err := c.http.ProcessJSONResponse(resp, &out); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cryptopsp: decode get_account response")
	}
	return &out, nil
}

func (c *RealClient) DeleteAccount(ctx context.Context, id string) error {
	opts, err := c.signedOptions()
	if err != nil {
		return errs.Wrap(errs.Internal, err, "cryptopsp: sign delete_account request")
	}
	_, err = c.http.Delete(ctx, fmt.Sprintf("accounts/%s", id), opts...)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "cryptopsp: delete_account")
	}
	return nil
}

var _ Client = (*RealClient)(nil)
