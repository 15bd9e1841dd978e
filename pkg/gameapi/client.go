// Package gameapi is the typed client of the game backend. The backend owns the
// hidden car attributes, the speed formula, matchmaking and payouts.
package gameapi

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

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/model"
)

type (
	Client struct {
		baseURL string
		prefix  string
		timeout time.Duration
		http    *http.Client
		tracer  trace.Tracer
		l       *log.Logger
	}
	Option func(*Client)
)

const (
	DefaultPrefix  = "/race"
	DefaultTimeout = 30 * time.Second
)

func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = "/" + strings.Trim(prefix, "/")
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.l = l
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	ret := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  DefaultPrefix,
		timeout: DefaultTimeout,
		http:    &http.Client{},
		l:       log.Default().Named("gameapi"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("rgc")
	}
	return ret
}

func (c *Client) CreateCar(ctx context.Context, p Player) (*CreateCarResult, error) {
	var res carResponse
	err := c.do(ctx, http.MethodPost, c.prefix+"/car/create", nil,
		carCreateRequest{WalletAddress: p.Address, WalletSeed: p.Seed}, &res)
	if err != nil {
		return nil, err
	}
	return &CreateCarResult{Car: res.Car, Payment: res.Payment}, nil
}

func (c *Client) Garage(ctx context.Context, address string) ([]model.Car, error) {
	var res garageResponse
	err := c.do(ctx, http.MethodGet, c.prefix+"/garage/"+url.PathEscape(address), nil, nil, &res)
	if err != nil {
		return nil, err
	}
	if res.Cars == nil {
		return []model.Car{}, nil
	}
	return res.Cars, nil
}

// Train forks a new car from req.CarID. The new car id is part of the result.
func (c *Client) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	var res trainResponse
	body := trainRequest{CarID: req.CarID, WalletAddress: req.Address, WalletSeed: req.Seed}
	if len(req.AttributeIndices) > 0 {
		body.AttributeIndices = req.AttributeIndices
	}
	err := c.do(ctx, http.MethodPost, c.prefix+"/train", nil, body, &res)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, unsuccessful(res.Message, "Training failed")
	}
	return &TrainResult{
		TrainResult: model.TrainResult{
			CarID:             lo.Ternary(res.CarID == "", req.CarID, res.CarID),
			PreviousCarID:     req.CarID,
			TrainingCount:     res.TrainingCount,
			TrainedAttributes: res.TrainedAttributes,
			Speed:             res.Speed,
			Message:           res.Message,
		},
		Payment: res.Payment,
	}, nil
}

func (c *Client) TestSpeed(ctx context.Context, carID, address string) (*model.SpeedReading, error) {
	var res testSpeedResponse
	err := c.do(ctx, http.MethodPost, c.prefix+"/test", nil,
		carRequest{CarID: carID, WalletAddress: address}, &res)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, unsuccessful(res.Message, "Speed test failed")
	}
	return &model.SpeedReading{
		CarID:     carID,
		Speed:     lo.FromPtr(res.Speed),
		Improved:  res.Improved,
		Message:   res.Message,
		Timestamp: time.Now(),
	}, nil
}

func (c *Client) EnterRace(ctx context.Context, carID string, p Player) (*RaceResult, error) {
	var res raceResponse
	err := c.do(ctx, http.MethodPost, c.prefix+"/enter", nil,
		enterRequest{CarID: carID, WalletAddress: p.Address, WalletSeed: p.Seed}, &res)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, unsuccessful(res.Message, "Race failed")
	}
	return res.result(), nil
}

func (c *Client) SellCar(ctx context.Context, carID, address string) (*SellResult, error) {
	var res sellResponse
	err := c.do(ctx, http.MethodPost, c.prefix+"/car/sell", nil,
		carRequest{CarID: carID, WalletAddress: address}, &res)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, unsuccessful(res.Message, "Sale failed")
	}
	return &SellResult{Message: res.Message, Refund: res.RefundAmount}, nil
}

// LatestRace returns the latest race of address or nil if there is none.
func (c *Client) LatestRace(ctx context.Context, address string) (*RaceResult, error) {
	var res latestResponse
	q := url.Values{}
	if address != "" {
		q.Set("address", address)
	}
	err := c.do(ctx, http.MethodGet, c.prefix+"/latest", q, nil, &res)
	if err != nil {
		var be *errs.BackendError
		if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if res.Race == nil {
		return nil, nil
	}
	return res.Race.result(), nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var res Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

//nolint:whitespace // editor/linter issue
func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	body, target any,
) error {
	ctx, span := c.tracer.Start(ctx, "gameapi "+method,
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()
	err := c.roundTrip(ctx, method, path, query, body, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errs.Message(err))
	}
	return err
}

//nolint:funlen // by design
func (c *Client) roundTrip(
	ctx context.Context,
	method, path string,
	query url.Values,
	body, target any,
) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gameapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("gameapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, errs.ErrRequestTimeout)
		}
		return fmt.Errorf("gameapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, errs.ErrRequestTimeout)
		}
		return fmt.Errorf("gameapi: read response: %w", err)
	}
	c.l.Debug("backend call",
		log.String("method", method),
		log.String("path", path),
		log.Int("status", resp.StatusCode),
		log.Duration("duration", time.Since(start)))

	if resp.StatusCode/100 != 2 {
		return &errs.BackendError{StatusCode: resp.StatusCode, Message: errorMessage(resp, data)}
	}
	if err := checkRedacted(data); err != nil {
		c.l.Error("backend response rejected", log.String("path", path), log.ErrorField(err))
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("gameapi: decode response: %w", err)
	}
	return nil
}

func errorMessage(resp *http.Response, data []byte) string {
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil {
		switch d := er.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case []any:
			// validation errors: [{"loc": [...], "msg": "...", "type": "..."}]
			msgs := lo.FilterMap(d, func(item any, _ int) (string, bool) {
				m, ok := item.(map[string]any)
				if !ok {
					return "", false
				}
				s, ok := m["msg"].(string)
				return s, ok
			})
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
		if er.Message != "" {
			return er.Message
		}
	}
	if s := strings.TrimSpace(string(data)); s != "" && !strings.HasPrefix(s, "{") {
		return s
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func unsuccessful(msg, fallback string) error {
	return &errs.BackendError{StatusCode: http.StatusOK, Message: lo.Ternary(msg == "", fallback, msg)}
}
