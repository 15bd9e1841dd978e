package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/errs"
)

type (
	WSClient struct {
		url               string
		faucetURL         string
		dialer            *websocket.Dialer
		httpClient        *http.Client
		requestTimeout    time.Duration
		validationTimeout time.Duration
		pollInterval      time.Duration
		l                 *log.Logger

		mu      sync.Mutex
		conn    *websocket.Conn
		nextID  uint64
		pending map[uint64]chan rpcResponse
	}
	Option func(*WSClient)

	rpcResponse struct {
		ID           uint64          `json:"id"`
		Status       string          `json:"status"`
		Type         string          `json:"type"`
		Result       json.RawMessage `json:"result"`
		Error        string          `json:"error"`
		ErrorMessage string          `json:"error_message"`
	}
	rpcError struct {
		Code    string
		Message string
	}
)

func (e *rpcError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ledger: %s: %s", e.Code, e.Message)
	}
	return "ledger: " + e.Code
}

var errConnClosed = errors.New("ledger: connection closed")

// number of ledgers a submitted transaction may wait before it expires
const ledgerOffset = 20

func WithFaucetURL(url string) Option {
	return func(c *WSClient) {
		c.faucetURL = url
	}
}

func WithHTTPClient(cl *http.Client) Option {
	return func(c *WSClient) {
		c.httpClient = cl
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *WSClient) {
		c.requestTimeout = d
	}
}

func WithValidationTimeout(d time.Duration) Option {
	return func(c *WSClient) {
		c.validationTimeout = d
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *WSClient) {
		c.pollInterval = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *WSClient) {
		c.l = l
	}
}

func NewWSClient(url string, opts ...Option) *WSClient {
	ret := &WSClient{
		url:               url,
		dialer:            &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		requestTimeout:    30 * time.Second,
		validationTimeout: 60 * time.Second,
		pollInterval:      time.Second,
		l:                 log.Default().Named("ledger"),
		pending:           make(map[uint64]chan rpcResponse),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *WSClient) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	c.l.Debug("dialing ledger", log.String("url", c.url))
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			c.l.Warn("ledger dial failed",
				log.String("status", resp.Status), log.String("body", string(body)))
		}
		return nil, fmt.Errorf("ledger: dial %s: %w", c.url, err)
	}
	c.conn = conn
	go c.reader(conn)
	return conn, nil
}

func (c *WSClient) reader(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.l.Debug("ledger reader stopped", log.ErrorField(err))
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}
		var msg rpcResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			c.l.Warn("ledger sent invalid json", log.ErrorField(err))
			continue
		}
		if msg.Type != "" && msg.Type != "response" {
			continue // stream messages are not used
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *WSClient) request(
	ctx context.Context,
	command string,
	params map[string]any,
) (json.RawMessage, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan rpcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	body := map[string]any{"id": id, "command": command}
	for k, v := range params {
		body[k] = v
	}
	data, _ := json.Marshal(body)

	c.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("ledger: write %s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ledger %s: %w", command, errs.ErrRequestTimeout)
		}
		return nil, ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return nil, errConnClosed
		}
		if msg.Status == "error" || msg.Error != "" {
			return nil, &rpcError{Code: msg.Error, Message: msg.ErrorMessage}
		}
		return msg.Result, nil
	}
}

func (c *WSClient) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *WSClient) AccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	raw, err := c.request(ctx, "account_info", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		var re *rpcError
		if errors.As(err, &re) && re.Code == "actNotFound" {
			return nil, fmt.Errorf("%s: %w", address, ErrAccountNotFound)
		}
		return nil, err
	}
	var res struct {
		AccountData struct {
			Account  string `json:"Account"`
			Balance  string `json:"Balance"`
			Sequence uint32 `json:"Sequence"`
		} `json:"account_data"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("ledger: account_info result: %w", err)
	}
	balance, err := DropsToXRP(res.AccountData.Balance)
	if err != nil {
		return nil, fmt.Errorf("ledger: account balance %q: %w", res.AccountData.Balance, err)
	}
	return &AccountInfo{
		Address:  address,
		Balance:  balance,
		Sequence: res.AccountData.Sequence,
	}, nil
}

// Autofill sets sequence, fee and last ledger sequence of tx from the
// current ledger state.
func (c *WSClient) Autofill(ctx context.Context, tx *Tx) error {
	if tx.Sequence == 0 {
		info, err := c.AccountInfo(ctx, tx.Account)
		if err != nil {
			return err
		}
		tx.Sequence = info.Sequence
	}
	if tx.Fee != "" && tx.LastLedgerSequence != 0 {
		return nil
	}
	raw, err := c.request(ctx, "fee", nil)
	if err != nil {
		return err
	}
	var res struct {
		LedgerCurrentIndex uint32 `json:"ledger_current_index"`
		Drops              struct {
			BaseFee string `json:"base_fee"`
		} `json:"drops"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("ledger: fee result: %w", err)
	}
	if tx.Fee == "" {
		tx.Fee = res.Drops.BaseFee
	}
	if tx.LastLedgerSequence == 0 && res.LedgerCurrentIndex > 0 {
		tx.LastLedgerSequence = res.LedgerCurrentIndex + ledgerOffset
	}
	return nil
}

// SubmitAndWait submits the signed transaction and waits until it is part
// of a validated ledger. The wait is bounded by the validation timeout,
// which is reported as errs.ErrValidationTimeout.
//
//nolint:funlen // by design
func (c *WSClient) SubmitAndWait(ctx context.Context, signed SignedTx) (*SubmitResult, error) {
	raw, err := c.request(ctx, "submit", map[string]any{"tx_blob": signed.Blob})
	if err != nil {
		return nil, err
	}
	var sub struct {
		EngineResult string `json:"engine_result"`
		TxJSON       struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("ledger: submit result: %w", err)
	}
	hash := sub.TxJSON.Hash
	if hash == "" {
		hash = signed.Hash
	}
	c.l.Debug("transaction submitted",
		log.String("hash", hash), log.String("engineResult", sub.EngineResult))
	if isFinalFailure(sub.EngineResult) {
		return nil, &errs.TxError{Code: sub.EngineResult, Hash: hash}
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.validationTimeout)
	defer cancel()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		res, done, err := c.checkValidated(waitCtx, hash)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("tx %s: %w", hash, errs.ErrValidationTimeout)
			}
			return nil, err
		}
		if done {
			if res.Code != ResultSuccess {
				return res, &errs.TxError{Code: res.Code, Hash: hash}
			}
			return res, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("tx %s: %w", hash, errs.ErrValidationTimeout)
		case <-ticker.C:
		}
	}
}

func (c *WSClient) checkValidated(ctx context.Context, hash string) (*SubmitResult, bool, error) {
	raw, err := c.request(ctx, "tx", map[string]any{"transaction": hash})
	if err != nil {
		var re *rpcError
		if errors.As(err, &re) && re.Code == "txnNotFound" {
			return nil, false, nil
		}
		return nil, false, err
	}
	var res struct {
		Validated   bool   `json:"validated"`
		LedgerIndex uint32 `json:"ledger_index"`
		Meta        struct {
			TransactionResult string `json:"TransactionResult"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("ledger: tx result: %w", err)
	}
	if !res.Validated {
		return nil, false, nil
	}
	return &SubmitResult{
		Hash:        hash,
		Code:        res.Meta.TransactionResult,
		LedgerIndex: res.LedgerIndex,
	}, true, nil
}

// tem: malformed, tef: failed, tel: local error. These never make it into a ledger.
func isFinalFailure(engineResult string) bool {
	for _, prefix := range []string{"tem", "tef", "tel"} {
		if strings.HasPrefix(engineResult, prefix) {
			return true
		}
	}
	return false
}

// Fund requests testnet funds for address from the faucet.
func (c *WSClient) Fund(ctx context.Context, address string, amount decimal.Decimal) error {
	if c.faucetURL == "" {
		return errors.New("ledger: no faucet configured")
	}
	body, _ := json.Marshal(map[string]any{
		"destination": address,
		"xrpAmount":   amount.String(),
	})
	url := strings.TrimRight(c.faucetURL, "/") + "/accounts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("faucet: %w", errs.ErrRequestTimeout)
		}
		return fmt.Errorf("faucet: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("faucet: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	c.l.Info("account funded", log.String("address", address), log.String("amount", amount.String()))
	return nil
}
