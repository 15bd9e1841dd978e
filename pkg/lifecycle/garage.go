package lifecycle

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/gameapi"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/wallet"
)

const selectionKeyPrefix = "garage.selected:"

// CreateCar creates a new car for the wallet and selects it.
func (c *Controller) CreateCar(ctx context.Context) (*model.Car, error) {
	if err := c.begin(""); err != nil {
		return nil, err
	}
	car, err := c.createCar(ctx)
	return car, c.finish(StateIdle, err)
}

func (c *Controller) createCar(ctx context.Context) (*model.Car, error) {
	op, err := c.require(ctx, needWallet|needSigner)
	if err != nil {
		return nil, err
	}
	if err = c.checkBalance(op.session, c.econ.CreateFee); err != nil {
		return nil, err
	}
	res, err := c.api.CreateCar(ctx, op.player())
	if err != nil {
		return nil, fmt.Errorf("create car: %w", err)
	}
	st, err := c.settle(ctx, op, res.Payment, model.TxCreateCar)
	if err != nil {
		return nil, fmt.Errorf("create car payment: %w", err)
	}
	if err = c.debit(ctx, op.session, st, opID("create", res.Car.ID), model.TxCreateCar, c.econ.CreateFee); err != nil {
		return nil, err
	}
	c.l.Info("car created", log.String("carId", res.Car.ID))
	c.garage.Invalidate(ctx, op.session.Address())
	c.setSelected(ctx, op.session.Address(), res.Car.ID)
	return &res.Car, nil
}

// Garage lists the cars of the wallet. The first car is selected when
// nothing is selected yet.
func (c *Controller) Garage(ctx context.Context) ([]model.Car, error) {
	if err := c.begin(""); err != nil {
		return nil, err
	}
	cars, err := c.listCars(ctx)
	return cars, c.finish("", err)
}

func (c *Controller) listCars(ctx context.Context) ([]model.Car, error) {
	op, err := c.require(ctx, needWallet)
	if err != nil {
		return nil, err
	}
	cars, err := c.cars(ctx, op.session.Address())
	if err != nil {
		return nil, err
	}
	if len(cars) > 0 && c.selectedCar(ctx, op.session.Address()) == "" {
		c.setSelected(ctx, op.session.Address(), cars[0].ID)
	}
	c.emit(Event{Kind: EventGarage, Cars: cars}, false)
	return cars, nil
}

func (c *Controller) cars(ctx context.Context, address string) ([]model.Car, error) {
	cars, err := c.garage.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("garage: %w", err)
	}
	return slices.Clone(*cars), nil
}

// SelectCar makes carID the car used by train, test and race.
func (c *Controller) SelectCar(ctx context.Context, carID string) error {
	if err := c.begin(""); err != nil {
		return err
	}
	return c.finish("", c.selectCar(ctx, carID))
}

func (c *Controller) selectCar(ctx context.Context, carID string) error {
	op, err := c.require(ctx, needWallet)
	if err != nil {
		return err
	}
	cars, err := c.cars(ctx, op.session.Address())
	if err != nil {
		return err
	}
	if !lo.ContainsBy(cars, func(x model.Car) bool { return x.ID == carID }) {
		return fmt.Errorf("%s: %w", carID, ErrUnknownCar)
	}
	c.setSelected(ctx, op.session.Address(), carID)
	return nil
}

// SellCar sells carID (the selected car if empty) and credits the refund.
// Selling the selected car moves the selection to the first remaining car.
func (c *Controller) SellCar(ctx context.Context, carID string) (*gameapi.SellResult, error) {
	if err := c.begin(""); err != nil {
		return nil, err
	}
	res, err := c.sellCar(ctx, carID)
	return res, c.finish(StateIdle, err)
}

func (c *Controller) sellCar(ctx context.Context, carID string) (*gameapi.SellResult, error) {
	op, err := c.require(ctx, needWallet)
	if err != nil {
		return nil, err
	}
	address := op.session.Address()
	selected := c.selectedCar(ctx, address)
	if carID == "" {
		carID = selected
	}
	if carID == "" {
		return nil, fmt.Errorf("sell: %w", errs.ErrNoCarSelected)
	}
	res, err := c.api.SellCar(ctx, carID, address)
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", carID, err)
	}
	if !res.Refund.IsPositive() {
		res.Refund = c.econ.RefundAmount
	}
	if err = c.apply(ctx, op.session, wallet.Entry{
		OpID:   opID("sell", carID),
		Kind:   model.TxSellRefund,
		Amount: res.Refund,
	}); err != nil {
		return nil, err
	}
	c.l.Info("car sold", log.String("carId", carID), log.String("refund", res.Refund.String()))

	c.garage.Invalidate(ctx, address)
	c.mu.Lock()
	delete(c.speeds, carID)
	c.mu.Unlock()
	if selected != carID {
		return res, nil
	}
	next := ""
	if cars, err := c.cars(ctx, address); err == nil {
		if first, ok := lo.Find(cars, func(x model.Car) bool { return x.ID != carID }); ok {
			next = first.ID
		}
	} else {
		c.l.Warn("could not reload garage after sell", log.ErrorField(err))
	}
	c.setSelected(ctx, address, next)
	return res, nil
}

// selectedCar returns the selection of address, restoring it from the
// selection store when the wallet changed.
func (c *Controller) selectedCar(ctx context.Context, address string) string {
	c.mu.Lock()
	if c.selectFor == address {
		defer c.mu.Unlock()
		return c.selected
	}
	c.mu.Unlock()

	id := ""
	if c.store != nil {
		v, err := c.store.Get(ctx, selectionKeyPrefix+address)
		if err != nil {
			c.l.Warn("could not restore car selection", log.ErrorField(err))
		}
		id = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = id
	c.selectFor = address
	return id
}

func (c *Controller) setSelected(ctx context.Context, address, carID string) {
	c.mu.Lock()
	c.selected = carID
	c.selectFor = address
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Set(ctx, selectionKeyPrefix+address, carID); err != nil {
			c.l.Warn("could not store car selection", log.ErrorField(err))
		}
	}
	c.emit(Event{Kind: EventSelection, CarID: carID}, false)
}
