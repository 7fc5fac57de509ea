package sagaclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cyphera/paymentd/internal/ledger"
)

func TestNotifyInvoicePaid_PostsToSetPaid(t *testing.T) {
	invoiceID := uuid.New()
	var gotPath string
	var gotBody setPaidRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	err := c.NotifyInvoicePaid(context.Background(), invoiceID)
	require.NoError(t, err)
	require.Equal(t, "/orders/set_paid", gotPath)
	require.Equal(t, invoiceID, gotBody.InvoiceID)
}

func TestUpdateOrderState_PostsToUpdateState(t *testing.T) {
	var gotBody updateStateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/update_state", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	orders := []OrderState{{OrderID: "order-1", State: ledger.OrderCaptured}}
	err := c.UpdateOrderState(context.Background(), orders)
	require.NoError(t, err)
	require.Equal(t, orders, gotBody.Orders)
}

func TestDoRequest_NonSuccessStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	err := c.NotifyInvoicePaid(context.Background(), uuid.New())
	require.Error(t, err)
}
