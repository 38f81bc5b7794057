package service

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	"go.uber.org/zap"
)

// sandboxFailSuffix makes the simulator decline prompts sent to numbers ending in it.
const sandboxFailSuffix = "000"

// Simulator stands in for the providers in sandbox mode. It delivers a signed
// callback in the provider's own format after a delay, through the same
// ingestion path a real webhook uses.
type Simulator struct {
	delay time.Duration
	log   *zap.Logger

	mu     sync.Mutex
	svc    *Service
	timers map[string]*time.Timer
	closed bool
}

// NewSimulator returns nil unless sandbox mode is enabled.
func NewSimulator(cfg config.Config, log *zap.Logger) *Simulator {
	if !cfg.MobileMoney.Sandbox {
		return nil
	}
	delay := time.Duration(cfg.MobileMoney.SandboxDelaySeconds) * time.Second
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &Simulator{
		delay:  delay,
		log:    log.Named("mobilemoney.sandbox"),
		timers: map[string]*time.Timer{},
	}
}

func (s *Simulator) bind(svc *Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.svc = svc
}

// Schedule arranges the callback for txn. It is a no-op on a nil simulator.
func (s *Simulator) Schedule(txn domain.Transaction) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.svc == nil {
		return
	}
	ref := txn.ExternalReference
	s.timers[ref] = time.AfterFunc(s.delay, func() {
		s.deliver(txn)
	})
}

func (s *Simulator) deliver(txn domain.Transaction) {
	s.mu.Lock()
	delete(s.timers, txn.ExternalReference)
	svc := s.svc
	closed := s.closed
	s.mu.Unlock()
	if closed || svc == nil {
		return
	}

	adapter, err := svc.registry.Get(string(txn.Provider))
	if err != nil {
		s.log.Warn("sandbox provider missing", zap.String("provider", string(txn.Provider)))
		return
	}
	cb := SandboxOutcome(txn)
	payload, err := adapter.Encode(cb)
	if err != nil {
		s.log.Warn("sandbox encode failed", zap.Error(err))
		return
	}
	headers := http.Header{}
	name, value := adapter.Sign(payload)
	headers.Set(name, value)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := svc.IngestProviderCallback(ctx, string(txn.Provider), payload, headers)
	if err != nil {
		s.log.Warn("sandbox callback failed",
			zap.String("transaction_id", txn.ID.String()),
			zap.Error(err),
		)
		return
	}
	s.log.Info("sandbox callback delivered",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("status", string(result.Transaction.Status)),
	)
}

// SandboxOutcome is the callback the simulator sends for txn.
func SandboxOutcome(txn domain.Transaction) domain.ProviderCallback {
	cb := domain.ProviderCallback{
		ExternalReference:     txn.ExternalReference,
		ProviderTransactionID: "SBX-" + txn.ID.String(),
		Outcome:               domain.OutcomeSuccess,
		Amount:                txn.Amount,
	}
	if strings.HasSuffix(txn.PhoneNumber, sandboxFailSuffix) {
		cb.Outcome = domain.OutcomeFailed
		cb.Reason = "insufficient funds"
	}
	return cb
}

// Stop cancels callbacks that have not fired yet.
func (s *Simulator) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ref, timer := range s.timers {
		timer.Stop()
		delete(s.timers, ref)
	}
}
