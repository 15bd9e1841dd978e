package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/gameapi"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/wallet"
)

// Train trains the selected car. The backend forks a new car id which
// becomes the selection once the train fee is confirmed.
// An empty attributeIndices trains all attributes.
func (c *Controller) Train(ctx context.Context, attributeIndices []int) (*gameapi.TrainResult, error) {
	if err := c.begin(StateTraining); err != nil {
		return nil, err
	}
	res, err := c.train(ctx, attributeIndices)
	return res, c.finish(StateIdle, err)
}

func (c *Controller) train(ctx context.Context, attributeIndices []int) (*gameapi.TrainResult, error) {
	op, err := c.require(ctx, needWallet|needSigner|needCar)
	if err != nil {
		return nil, err
	}
	if err = c.checkBalance(op.session, c.econ.TrainFee); err != nil {
		return nil, err
	}
	res, err := c.api.Train(ctx, gameapi.TrainRequest{
		Player:           op.player(),
		CarID:            op.carID,
		AttributeIndices: attributeIndices,
	})
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", op.carID, err)
	}
	st, err := c.settle(ctx, op, res.Payment, model.TxTrain)
	if err != nil {
		return nil, fmt.Errorf("train payment: %w", err)
	}
	newID := res.CarID
	if newID == "" {
		newID = op.carID
	}
	if err = c.debit(ctx, op.session, st, trainOpID(st.hash, op.carID, newID), model.TxTrain, c.econ.TrainFee); err != nil {
		return nil, err
	}
	c.l.Info("car trained",
		log.String("from", op.carID),
		log.String("to", newID),
		log.Int("trainingCount", res.TrainingCount))

	c.garage.Invalidate(ctx, op.session.Address())
	c.mu.Lock()
	c.training = res.TrainingCount
	if res.Speed != nil {
		c.speeds[newID] = &model.SpeedReading{
			CarID:     newID,
			Speed:     *res.Speed,
			Message:   res.Message,
			Timestamp: time.Now(),
		}
	}
	c.mu.Unlock()
	c.setSelected(ctx, op.session.Address(), newID)
	return res, nil
}

// TestSpeed reads the current speed of the selected car. No payment is involved.
func (c *Controller) TestSpeed(ctx context.Context) (*model.SpeedReading, error) {
	if err := c.begin(StateTesting); err != nil {
		return nil, err
	}
	res, err := c.testSpeed(ctx)
	return res, c.finish(StateIdle, err)
}

func (c *Controller) testSpeed(ctx context.Context) (*model.SpeedReading, error) {
	op, err := c.require(ctx, needWallet|needCar)
	if err != nil {
		return nil, err
	}
	res, err := c.api.TestSpeed(ctx, op.carID, op.session.Address())
	if err != nil {
		return nil, fmt.Errorf("test %s: %w", op.carID, err)
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	c.mu.Lock()
	c.speeds[op.carID] = res
	c.lastSpeed = res
	c.mu.Unlock()
	c.emit(Event{Kind: EventSpeedTest, CarID: op.carID, SpeedTest: res}, false)
	return res, nil
}

func opID(kind, id string) string {
	if id == "" {
		return wallet.NewOpID()
	}
	return kind + ":" + id
}

// trainOpID keys a train fee. Training in place keeps the car id, so each
// paid train needs an id of its own.
func trainOpID(hash, from, to string) string {
	switch {
	case hash != "":
		return "train:" + hash
	case to != from:
		return "train:" + to
	default:
		return wallet.NewOpID()
	}
}
