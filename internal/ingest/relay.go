package ingest

import (
	"errors"
	"strings"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"ledgerRelay/internal/control"
	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/metrics"
	"ledgerRelay/internal/model"
	"ledgerRelay/internal/parser"
	"ledgerRelay/internal/publisher"
)

// ProgramStreams routes a program's classified output. An empty stream turns
// that output off. Event names are matched case-insensitively.
type ProgramStreams struct {
	ProgramID     string            `mapstructure:"program_id"`
	IDLPath       string            `mapstructure:"idl_path"`
	AccountStream string            `mapstructure:"account_stream"`
	EventStreams  map[string]string `mapstructure:"events"`
}

// Relay is the producer boundary. Each callback reads the current rules,
// filters the update, encodes it and publishes it once per admitting rule,
// then publishes any classified accounts or events.
type Relay struct {
	cell     *control.Cell
	parser   *parser.Parser
	pub      Publisher
	programs map[string]ProgramStreams
	logger   *zap.Logger
	metrics  metrics.Recorder
}

func NewRelay(cell *control.Cell, p *parser.Parser, pub Publisher, programs []ProgramStreams, logger *zap.Logger, rec metrics.Recorder) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = parser.New(nil)
	}
	byID := make(map[string]ProgramStreams, len(programs))
	for _, prog := range programs {
		events := make(map[string]string, len(prog.EventStreams))
		for name, stream := range prog.EventStreams {
			events[strings.ToLower(name)] = stream
		}
		prog.EventStreams = events
		byID[prog.ProgramID] = prog
	}
	return &Relay{
		cell:     cell,
		parser:   p,
		pub:      pub,
		programs: byID,
		logger:   logger,
		metrics:  metrics.OrNop(rec),
	}
}

// UpdateAccount handles an account change. Startup snapshot items are dropped
// unless some rule opts into the snapshot; past that gate they are matched
// like any other update.
func (r *Relay) UpdateAccount(acc *model.AccountUpdate, isStartup bool) error {
	set, _ := r.cell.Load()
	if isStartup && !set.AdmitsSnapshot() {
		metrics.Inc(r.metrics, metrics.Filtered, "snapshot")
		return nil
	}

	var errs []error
	admitted := false
	env := model.AccountEnvelope(acc)
	for _, f := range set.Filters() {
		if f.AccountStream == "" {
			continue
		}
		if !f.WantsAccountUpdate(acc) {
			r.ignored(f, "account", zap.String("pubkey", base58.Encode(acc.Pubkey)), zap.String("owner", base58.Encode(acc.Owner)))
			continue
		}
		admitted = true
		errs = append(errs, r.publishEnvelope(f.AccountStream, env, f.Wrap))
	}
	if !admitted {
		return errors.Join(errs...)
	}

	parsed, ok, err := r.parser.ClassifyAccount(acc)
	if err != nil {
		metrics.Inc(r.metrics, metrics.ParseFailed, "account")
		if ce := r.logger.Check(zap.DebugLevel, "account decode failed"); ce != nil {
			ce.Write(zap.String("pubkey", base58.Encode(acc.Pubkey)), zap.Error(err))
		}
	}
	if ok {
		if stream := r.programs[parsed.Program].AccountStream; stream != "" {
			msg, err := publisher.ParsedAccountMessage(stream, parsed)
			errs = append(errs, r.publish(msg, err))
		}
	}
	return errors.Join(errs...)
}

// UpdateSlotStatus publishes the slot transition on every slot stream.
func (r *Relay) UpdateSlotStatus(slot *model.SlotUpdate) error {
	set, _ := r.cell.Load()
	var errs []error
	env := model.SlotEnvelope(slot)
	for _, f := range set.Filters() {
		if f.SlotStream == "" {
			continue
		}
		errs = append(errs, r.publishEnvelope(f.SlotStream, env, f.Wrap))
	}
	return errors.Join(errs...)
}

// NotifyTransaction publishes tx for every admitting rule and then the
// program events decoded from it.
func (r *Relay) NotifyTransaction(tx *model.TransactionEvent) error {
	set, _ := r.cell.Load()
	var errs []error
	admitted := false
	env := model.TransactionEnvelope(tx)
	for _, f := range set.Filters() {
		if f.TransactionStream == "" {
			continue
		}
		if !f.WantsTransaction(tx) {
			r.ignored(f, "transaction", zap.String("signature", base58.Encode(tx.Signature)), zap.Bool("vote", tx.IsVote))
			continue
		}
		admitted = true
		errs = append(errs, r.publishEnvelope(f.TransactionStream, env, f.Wrap))
	}
	if !admitted {
		return errors.Join(errs...)
	}

	events, parseErrs := r.parser.ParseTransactionEvents(tx)
	if len(parseErrs) > 0 {
		r.metrics.Add(metrics.ParseFailed, "event", uint64(len(parseErrs)))
	}
	for _, ev := range events {
		stream := r.programs[ev.Program].EventStreams[strings.ToLower(ev.Name)]
		if stream == "" {
			continue
		}
		msg, err := publisher.ParsedEventMessage(stream, ev)
		errs = append(errs, r.publish(msg, err))
	}
	return errors.Join(errs...)
}

func (r *Relay) publishEnvelope(stream string, env model.Envelope, wrapped bool) error {
	msg, err := publisher.EnvelopeMessage(stream, env, wrapped)
	return r.publish(msg, err)
}

func (r *Relay) publish(msg publisher.Message, buildErr error) error {
	if buildErr != nil {
		r.logger.Warn("build stream message", zap.Error(buildErr))
		return buildErr
	}
	return r.pub.Publish(msg)
}

func (r *Relay) ignored(f *filter.Filter, kind string, fields ...zap.Field) {
	metrics.Inc(r.metrics, metrics.Filtered, kind)
	if ce := r.logger.Check(zap.DebugLevel, "ignoring "+kind+" update"); ce != nil {
		ce.Write(append(fields, zap.String("rule", f.Name))...)
	}
}
