//nolint:thelper,funlen // ok for tests
package extension

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/ledger"
)

type bridgeState struct {
	installed bool
	reject    bool
	network   string
	lastTx    ledger.Tx
}

func startBridge(t *testing.T, st *bridgeState) *Bridge {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, result any) {
		w.Header().Set("Content-Type", "application/json")
		if st.reject {
			_ = json.NewEncoder(w).Encode(map[string]any{"type": "reject"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"type": "response", "result": result})
	}
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"isInstalled": st.installed}})
	})
	mux.HandleFunc("GET /address", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"address": "rExtensionAddress1234567890", "publicKey": "ED00"})
	})
	mux.HandleFunc("GET /network", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"network": st.network})
	})
	mux.HandleFunc("POST /sign", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Transaction ledger.Tx `json:"transaction"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		st.lastTx = body.Transaction
		write(w, map[string]any{"hash": "HASH1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewBridge(srv.URL)
}

func TestInstalled(t *testing.T) {
	b := startBridge(t, &bridgeState{installed: true})
	ok, err := b.Installed(t.Context())
	require.NoError(t, err)
	assert.True(t, ok)

	b = startBridge(t, &bridgeState{installed: false})
	ok, err = b.Installed(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInstalledUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ok, err := NewBridge(url).Installed(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddressAndNetwork(t *testing.T) {
	b := startBridge(t, &bridgeState{installed: true, network: "Testnet"})
	addr, err := b.Address(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "rExtensionAddress1234567890", addr.Address)

	n, err := b.Network(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Testnet", n)
}

func TestSignAndSubmit(t *testing.T) {
	st := &bridgeState{installed: true}
	b := startBridge(t, st)
	tx := ledger.Tx{TransactionType: ledger.TxTypePayment, Account: "rA", Destination: "rB", Amount: "1000000"}
	res, err := b.SignAndSubmit(t.Context(), tx)
	require.NoError(t, err)
	assert.Equal(t, "HASH1", res.Hash)
	assert.Equal(t, ledger.ResultSuccess, res.Code)
	assert.Equal(t, tx, st.lastTx)
}

func TestRejected(t *testing.T) {
	b := startBridge(t, &bridgeState{installed: true, reject: true})
	_, err := b.Address(t.Context())
	assert.ErrorIs(t, err, errs.ErrUserRejected)
	_, err = b.SignAndSubmit(t.Context(), ledger.Tx{})
	assert.ErrorIs(t, err, errs.ErrUserRejected)
}
