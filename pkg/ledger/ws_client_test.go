//nolint:thelper,funlen,errcheck // ok for tests
package ledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrpracing/racegarage/pkg/errs"
)

// fakeLedger answers the subset of the ledger websocket API the client uses.
type fakeLedger struct {
	mu            sync.Mutex
	accounts      map[string]map[string]any
	engineResult  string
	finalResult   string
	validateAfter int // number of tx polls before the tx is validated; <0 never
	txPolls       int
	submitted     []string
}

func (f *fakeLedger) handle(cmd map[string]any) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := map[string]any{"id": cmd["id"], "type": "response", "status": "success"}
	switch cmd["command"] {
	case "account_info":
		acc, ok := f.accounts[cmd["account"].(string)]
		if !ok {
			resp["status"] = "error"
			resp["error"] = "actNotFound"
			resp["error_message"] = "Account not found."
			return resp
		}
		resp["result"] = map[string]any{"account_data": acc}
	case "fee":
		resp["result"] = map[string]any{"drops": map[string]any{"base_fee": "12"}, "ledger_current_index": 100}
	case "submit":
		f.submitted = append(f.submitted, cmd["tx_blob"].(string))
		resp["result"] = map[string]any{
			"engine_result": f.engineResult,
			"tx_json":       map[string]any{"hash": "ABCDEF"},
		}
	case "tx":
		f.txPolls++
		if f.validateAfter < 0 || f.txPolls <= f.validateAfter {
			resp["status"] = "error"
			resp["error"] = "txnNotFound"
			return resp
		}
		resp["result"] = map[string]any{
			"validated":    true,
			"ledger_index": 42,
			"meta":         map[string]any{"TransactionResult": f.finalResult},
		}
	default:
		resp["status"] = "error"
		resp["error"] = "unknownCmd"
	}
	return resp
}

func (f *fakeLedger) submittedBlobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func startFakeLedger(t *testing.T, f *fakeLedger) string {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd map[string]any
			if err := json.Unmarshal(data, &cmd); err != nil {
				return
			}
			if err := conn.WriteJSON(f.handle(cmd)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestClient(t *testing.T, f *fakeLedger, opts ...Option) *WSClient {
	url := startFakeLedger(t, f)
	c := NewWSClient(url, append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDropsConversion(t *testing.T) {
	assert.Equal(t, "1000000", XRPToDrops(decimal.NewFromInt(1)))
	assert.Equal(t, "500000", XRPToDrops(decimal.RequireFromString("0.5")))
	x, err := DropsToXRP("10000000")
	require.NoError(t, err)
	assert.True(t, x.Equal(decimal.NewFromInt(10)))
	_, err = DropsToXRP("abc")
	assert.Error(t, err)
}

func TestAccountInfo(t *testing.T) {
	f := &fakeLedger{accounts: map[string]map[string]any{
		"rKnown": {"Account": "rKnown", "Balance": "12500000", "Sequence": 7},
	}}
	c := newTestClient(t, f)

	info, err := c.AccountInfo(t.Context(), "rKnown")
	require.NoError(t, err)
	assert.True(t, info.Balance.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, uint32(7), info.Sequence)

	_, err = c.AccountInfo(t.Context(), "rUnknown")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAutofill(t *testing.T) {
	f := &fakeLedger{accounts: map[string]map[string]any{
		"rA": {"Account": "rA", "Balance": "1", "Sequence": 3},
	}}
	c := newTestClient(t, f)
	tx := &Tx{TransactionType: TxTypePayment, Account: "rA", Destination: "rB", Amount: "1000000"}
	require.NoError(t, c.Autofill(t.Context(), tx))
	assert.Equal(t, uint32(3), tx.Sequence)
	assert.Equal(t, "12", tx.Fee)
	assert.Equal(t, uint32(120), tx.LastLedgerSequence)
}

func TestSubmitAndWait(t *testing.T) {
	tests := []struct {
		name     string
		ledger   *fakeLedger
		opts     []Option
		wantCode string
		wantErr  error
	}{
		{
			name:     "validated after polling",
			ledger:   &fakeLedger{engineResult: "tesSUCCESS", finalResult: "tesSUCCESS", validateAfter: 2},
			wantCode: "tesSUCCESS",
		},
		{
			name:    "malformed tx is rejected immediately",
			ledger:  &fakeLedger{engineResult: "temBAD_AMOUNT", validateAfter: 0},
			wantErr: errs.ErrTransactionRejected,
		},
		{
			name:     "validated with failure code",
			ledger:   &fakeLedger{engineResult: "tesSUCCESS", finalResult: "tecUNFUNDED_PAYMENT", validateAfter: 0},
			wantCode: "tecUNFUNDED_PAYMENT",
			wantErr:  errs.ErrTransactionRejected,
		},
		{
			name:    "never validated",
			ledger:  &fakeLedger{engineResult: "tesSUCCESS", validateAfter: -1},
			opts:    []Option{WithValidationTimeout(50 * time.Millisecond)},
			wantErr: errs.ErrValidationTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.ledger, tt.opts...)
			res, err := c.SubmitAndWait(t.Context(), SignedTx{Blob: "00AA", Hash: "ABCDEF"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.NotErrorIs(t, err, errs.ErrRequestTimeout)
			} else {
				require.NoError(t, err)
			}
			if tt.wantCode != "" {
				require.NotNil(t, res)
				assert.Equal(t, tt.wantCode, res.Code)
				assert.Equal(t, "ABCDEF", res.Hash)
			}
			assert.Equal(t, []string{"00AA"}, tt.ledger.submittedBlobs())
		})
	}
}

func TestFund(t *testing.T) {
	var got map[string]any
	faucet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer faucet.Close()

	c := NewWSClient("ws://unused", WithFaucetURL(faucet.URL))
	require.NoError(t, c.Fund(t.Context(), "rNew", decimal.NewFromInt(10)))
	assert.Equal(t, "rNew", got["destination"])
	assert.Equal(t, "10", got["xrpAmount"])

	c = NewWSClient("ws://unused", WithFaucetURL(faucet.URL+"/broken"))
	assert.Error(t, c.Fund(t.Context(), "rNew", decimal.NewFromInt(10)))
}
