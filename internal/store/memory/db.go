// Package memory is the in-process backing store used for development and
// tests. Commits to one agreement are serialised by a sharded mutex keyed on
// the agreement id; different agreements never wait on each other except for
// the brief map swap that publishes a commit.
package memory

import (
	"context"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"pactline/internal/agreement"
	"pactline/internal/audit"
	"pactline/internal/ledger"
	"pactline/internal/notify"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
)

const numShards = 128

type entry struct {
	agreement agreement.Agreement
	signers   []agreement.Signer
	events    []ledger.Event
}

func (e *entry) clone() *entry {
	return &entry{
		agreement: e.agreement,
		signers:   slices.Clone(e.signers),
		events:    slices.Clone(e.events),
	}
}

type outboxRow struct {
	msg         notify.Message
	nextAttempt time.Time
	deliveredAt *time.Time
}

// DB holds every table. The typed views returned by its accessors implement
// the per-package store ports.
type DB struct {
	shards [numShards]sync.Mutex

	mu            sync.RWMutex
	agreements    map[id.AgreementID]*entry
	audit         []audit.Record
	records       map[string]*verification.Record
	recordByAgrmt map[id.AgreementID]string
	outbox        []*outboxRow

	commitHook func(agreement.Commit) error
}

func New() *DB {
	return &DB{
		agreements:    make(map[id.AgreementID]*entry),
		records:       make(map[string]*verification.Record),
		recordByAgrmt: make(map[id.AgreementID]string),
	}
}

// OnCommit installs a hook that runs before a commit is applied. A non-nil
// error aborts the commit; tests use it to simulate storage failures.
func (db *DB) OnCommit(hook func(agreement.Commit) error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.commitHook = hook
}

func (db *DB) Agreements() *AgreementStore       { return &AgreementStore{db: db} }
func (db *DB) Verifications() *VerificationStore { return &VerificationStore{db: db} }
func (db *DB) Chains() *ChainSource              { return &ChainSource{db: db} }
func (db *DB) Audit() *AuditStore                { return &AuditStore{db: db} }
func (db *DB) Outbox() *OutboxStore              { return &OutboxStore{db: db} }

// lock serialises writers of one agreement.
func (db *DB) lock(ctx context.Context, agreementID id.AgreementID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := &db.shards[hashID(agreementID)%numShards]
	shard.Lock()
	if err := ctx.Err(); err != nil {
		shard.Unlock()
		return nil, err
	}
	return shard.Unlock, nil
}

func (db *DB) entry(agreementID id.AgreementID) (*entry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	e, ok := db.agreements[agreementID]
	return e, ok
}

func hashID(agreementID id.AgreementID) uint32 {
	u := agreementID.UUID()
	h := fnv.New32a()
	h.Write(u[:])
	return h.Sum32()
}

func enqueue(db *DB, msgs []notify.Message) {
	for _, m := range msgs {
		db.outbox = append(db.outbox, &outboxRow{msg: m, nextAttempt: m.CreatedAt})
	}
}
