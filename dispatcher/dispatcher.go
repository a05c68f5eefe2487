// Package dispatcher sends remediation calls to the chain in fixed-size
// chunks, one extrinsic per chunk, strictly in order.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/logx"
	"github.com/mezonai/balances-maintenance/monitoring"
	"github.com/mezonai/balances-maintenance/types"
)

// Submitter is the part of the chain client the dispatcher needs.
type Submitter interface {
	Sign(ctx context.Context, call *client.Call, kp *client.Keypair) (*client.SignedExtrinsic, error)
	Submit(ctx context.Context, ext *client.SignedExtrinsic, waitForInclusion bool) (*client.Receipt, error)
}

// Recorder keeps a durable trace of chunk outcomes.
type Recorder interface {
	Record(outcome types.ChunkOutcome) error
}

type Options struct {
	DryRun   bool
	Recorder Recorder
	Metrics  *monitoring.Metrics
	// FormatFee renders receipt fees in log lines; defaults to the raw planck value.
	FormatFee func(fee *uint256.Int) string
}

type Summary struct {
	Chunks      int
	Submitted   int
	Failed      int
	ShortEvents int
}

type Dispatcher struct {
	chain  Submitter
	sender *client.Keypair
	log    *logx.Logger
	opts   Options
	now    func() time.Time
}

func New(chain Submitter, sender *client.Keypair, log *logx.Logger, opts Options) *Dispatcher {
	if opts.FormatFee == nil {
		opts.FormatFee = func(fee *uint256.Int) string { return fee.Dec() }
	}
	return &Dispatcher{chain: chain, sender: sender, log: log, opts: opts, now: time.Now}
}

// Run dispatches targets in chunks of chunkSize. A chunk the chain includes
// but fails is logged and skipped; a transport error stops the run and no
// further chunk is built.
func (d *Dispatcher) Run(ctx context.Context, action string, targets []types.Address, chunkSize int, build CallBuilder) (Summary, error) {
	var sum Summary
	chunks, err := Chunks(targets, chunkSize)
	if err != nil {
		return sum, err
	}

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Chunks++

		batch, err := build(chunk)
		if err != nil {
			return sum, fmt.Errorf("%s chunk %d: %w", action, i, err)
		}
		ext, err := d.chain.Sign(ctx, batch.Call, d.sender)
		if err != nil {
			return sum, fmt.Errorf("%s chunk %d: sign: %w", action, i, err)
		}
		d.log.Info("DISPATCH", batch.Description)
		d.log.Debugf("DISPATCH", "Extrinsic to be sent: %s %s nonce=%d", ext.Hash, ext.Call, ext.Nonce)

		outcome := types.ChunkOutcome{
			Action:         action,
			Index:          i,
			Addresses:      chunk,
			DryRun:         d.opts.DryRun,
			ExtrinsicHash:  ext.Hash,
			ExpectedEvents: batch.ExpectedEvents,
		}

		if d.opts.DryRun {
			d.log.Info("DISPATCH", "Not sending extrinsic, --dry-run is enabled.")
			d.opts.Metrics.RecordChunk(action, monitoring.ChunkDryRun, len(chunk))
			if err := d.record(outcome); err != nil {
				return sum, err
			}
			continue
		}

		started := d.now()
		receipt, err := d.chain.Submit(ctx, ext, true)
		if err != nil {
			d.log.Warnf("DISPATCH", "Failed to submit extrinsic: %v", err)
			d.opts.Metrics.RecordChunk(action, monitoring.ChunkTransportError, len(chunk))
			outcome.TransportError = err.Error()
			if rerr := d.record(outcome); rerr != nil {
				d.log.Warnf("DISPATCH", "Could not journal chunk %d: %v", i, rerr)
			}
			return sum, fmt.Errorf("%s chunk %d: submit: %w", action, i, err)
		}
		d.opts.Metrics.RecordSubmitLatency(d.now().Sub(started))
		sum.Submitted++

		fee := receipt.Fee
		if fee == nil {
			fee = new(uint256.Int)
		}
		d.opts.Metrics.AddFee(fee)
		d.log.Infof("DISPATCH", "Extrinsic included in block %s: Paid %s", receipt.BlockHash, d.opts.FormatFee(fee))

		outcome.BlockHash = receipt.BlockHash
		outcome.Fee = fee.Dec()
		outcome.Success = receipt.Success
		outcome.ErrorMessage = receipt.ErrorMessage
		outcome.TriggeredEvents = receipt.TriggeredEvents

		if receipt.Success {
			d.log.Debug("DISPATCH", "Extrinsic success.")
			if receipt.TriggeredEvents < batch.ExpectedEvents {
				sum.ShortEvents++
				d.log.Debugf("DISPATCH", "Emitted fewer events than expected: %d < %d",
					receipt.TriggeredEvents, batch.ExpectedEvents)
			}
			d.opts.Metrics.RecordChunk(action, monitoring.ChunkIncluded, len(chunk))
		} else {
			sum.Failed++
			d.log.Warnf("DISPATCH", "Extrinsic failed with following message: %s", receipt.ErrorMessage)
			d.opts.Metrics.RecordChunk(action, monitoring.ChunkFailed, len(chunk))
		}

		if err := d.record(outcome); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (d *Dispatcher) record(outcome types.ChunkOutcome) error {
	if d.opts.Recorder == nil {
		return nil
	}
	outcome.At = d.now().UTC()
	if err := d.opts.Recorder.Record(outcome); err != nil {
		return fmt.Errorf("journal %s chunk %d: %w", outcome.Action, outcome.Index, err)
	}
	return nil
}
