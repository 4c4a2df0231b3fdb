// Package store keeps the latest snapshot of every workflow together with the secondary
// indices used to query them.
//
// Store and Delete for a given id must never run concurrently: the caller has to hold that
// id's lock from pkg/lock for the whole call. Reads take no lock and may observe the
// previous generation of a workflow that is being written.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/persistence"
	"github.com/dukex/payflow/pkg/rules"
)

var (
	// ErrIndexConsistency reports a write that would make one source item belong to two
	// workflows. It is raised as a panic: it can only be caused by a programming error.
	ErrIndexConsistency = errors.New("index consistency violation")

	// ErrInvalidWorkflow reports a workflow that must not be persisted as given.
	ErrInvalidWorkflow = errors.New("invalid workflow")
)

type typeRecord struct {
	Category models.Category `json:"category"`
	State    models.State    `json:"state"`
}

// WorkflowStore persists the workflows of one owner.
type WorkflowStore struct {
	backend persistence.Backend
	keys    keyspace
	logger  *slog.Logger
}

// New creates a store for the workflows owned by owner.
func New(backend persistence.Backend, owner string, logger *slog.Logger) *WorkflowStore {
	return &WorkflowStore{
		backend: backend,
		keys:    keyspace{owner: owner},
		logger:  logger.With("owner", owner),
	}
}

// Owner returns the party whose workflows the store holds.
func (s *WorkflowStore) Owner() string {
	return s.keys.owner
}

// Store writes workflow and brings every index in line with it in one atomic batch whose
// last operation is the primary record. The caller must hold the workflow's lock.
func (s *WorkflowStore) Store(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidWorkflow)
	}

	if workflow.Owner != s.keys.owner {
		return fmt.Errorf("%w: workflow %s is owned by %q, not %q", ErrInvalidWorkflow, workflow.ID, workflow.Owner, s.keys.owner)
	}

	if !rules.IsLegalState(workflow.Category, workflow.State) {
		return fmt.Errorf("%w: state %s is not legal for %s", ErrInvalidWorkflow, workflow.State, workflow.Category)
	}

	previous, err := s.Load(ctx, workflow.ID)
	if err != nil {
		return err
	}

	previousType, found, err := s.loadType(ctx, workflow.ID)
	if err != nil {
		return err
	}

	if found && previousType.Category != workflow.Category {
		return fmt.Errorf("%w: category of %s cannot change from %s to %s",
			ErrInvalidWorkflow, workflow.ID, previousType.Category, workflow.Category)
	}

	batch := persistence.NewBatch()

	err = s.stageSources(ctx, batch, previous, workflow)
	if err != nil {
		return err
	}

	id := workflow.ID

	if found && previousType.State != workflow.State {
		batch.Delete(s.keys.bucket(previousType.Category, previousType.State, id))
	}

	batch.Put(s.keys.bucket(workflow.Category, workflow.State, id), nil)

	typeData, err := json.Marshal(typeRecord{Category: workflow.Category, State: workflow.State})
	if err != nil {
		return persistence.NewStorageError("Store", id, err)
	}

	batch.Put(s.keys.typeRecord(id), typeData)

	for _, account := range workflow.Accounts {
		batch.Put(s.keys.account(account, id), nil)
	}

	for _, unit := range workflow.Units {
		batch.Put(s.keys.unit(unit, id), nil)
	}

	if rules.IsTerminal(workflow.Category, workflow.State) {
		batch.Put(s.keys.archive(id), nil)
	} else {
		batch.Delete(s.keys.archive(id))
	}

	record, err := encode(workflow)
	if err != nil {
		return persistence.NewStorageError("Store", id, err)
	}

	batch.Put(s.keys.primary(id), record)

	err = s.backend.Apply(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to store workflow %s: %w", id, err)
	}

	s.logger.DebugContext(ctx, "Stored workflow",
		"workflow_id", id,
		"category", workflow.Category,
		"state", workflow.State,
		"operations", batch.Len())

	return nil
}

// stageSources removes source mappings the previous generation declared and the new one
// no longer does, and maps every current source item to the workflow.
func (s *WorkflowStore) stageSources(ctx context.Context, batch *persistence.Batch, previous, workflow *models.Workflow) error {
	current := make(map[string]bool, len(workflow.SourceItems))

	for _, item := range workflow.SourceItems {
		current[item.Key()] = true

		owner, found, err := s.lookupKey(ctx, s.keys.source(item))
		if err != nil {
			return err
		}

		if found && owner != workflow.ID {
			panic(fmt.Errorf("%w: source item %s belongs to workflow %s, not %s",
				ErrIndexConsistency, item.Key(), owner, workflow.ID))
		}

		batch.Put(s.keys.source(item), []byte(workflow.ID))
	}

	if previous == nil {
		return nil
	}

	for _, item := range previous.SourceItems {
		if !current[item.Key()] {
			batch.Delete(s.keys.source(item))
		}
	}

	return nil
}

// Load returns the workflow with the given id, or nil if there is none.
func (s *WorkflowStore) Load(ctx context.Context, id string) (*models.Workflow, error) {
	data, found, err := s.backend.Get(ctx, s.keys.primary(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}

	if !found {
		return nil, nil
	}

	workflow, err := decode(data)
	if err != nil {
		return nil, persistence.NewStorageError("Load", id, err)
	}

	return workflow, nil
}

func (s *WorkflowStore) loadType(ctx context.Context, id string) (typeRecord, bool, error) {
	var record typeRecord

	data, found, err := s.backend.Get(ctx, s.keys.typeRecord(id))
	if err != nil || !found {
		return record, false, err
	}

	err = json.Unmarshal(data, &record)
	if err != nil {
		return record, false, persistence.NewStorageError("Load", s.keys.typeRecord(id), err)
	}

	return record, true, nil
}

// LookupBySource returns the id of the workflow that claims item.
func (s *WorkflowStore) LookupBySource(ctx context.Context, item models.SourceItem) (string, bool, error) {
	return s.lookupKey(ctx, s.keys.source(item))
}

func (s *WorkflowStore) lookupKey(ctx context.Context, key string) (string, bool, error) {
	data, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up %s: %w", key, err)
	}

	if !found {
		return "", false, nil
	}

	return string(data), true, nil
}

// ListByAccount returns the ids of the workflows referencing account.
func (s *WorkflowStore) ListByAccount(ctx context.Context, account string) ([]string, error) {
	return s.members(ctx, s.keys.prefix(spaceIndex, indexAccount, account))
}

// ListByUnit returns the ids of the workflows referencing unit.
func (s *WorkflowStore) ListByUnit(ctx context.Context, unit string) ([]string, error) {
	return s.members(ctx, s.keys.prefix(spaceIndex, indexUnit, unit))
}

// ListByState returns the ids of the workflows of category currently in state.
func (s *WorkflowStore) ListByState(ctx context.Context, category models.Category, state models.State) ([]string, error) {
	return s.members(ctx, s.keys.prefix(spaceIndex, indexBucket, string(category), string(state)))
}

// ListByCategory returns the ids of the workflows of category in any state.
func (s *WorkflowStore) ListByCategory(ctx context.Context, category models.Category) ([]string, error) {
	return s.members(ctx, s.keys.prefix(spaceIndex, indexBucket, string(category)))
}

// ListArchived returns the ids of the workflows that reached a terminal state.
func (s *WorkflowStore) ListArchived(ctx context.Context) ([]string, error) {
	return s.members(ctx, s.keys.prefix(spaceIndex, indexArchive))
}

// List returns the ids of every workflow of the owner.
func (s *WorkflowStore) List(ctx context.Context) ([]string, error) {
	return s.members(ctx, s.keys.prefix(spacePrimary))
}

func (s *WorkflowStore) members(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	ids := make([]string, 0, len(keys))

	for _, key := range keys {
		id, err := member(key)
		if err != nil {
			return nil, persistence.NewStorageError("Keys", key, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// Delete removes the workflow and every index entry referencing it. The caller must hold
// the workflow's lock.
func (s *WorkflowStore) Delete(ctx context.Context, id string) error {
	workflow, err := s.Load(ctx, id)
	if err != nil {
		return err
	}

	batch := persistence.NewBatch()

	if workflow != nil {
		for _, item := range workflow.SourceItems {
			owner, found, err := s.lookupKey(ctx, s.keys.source(item))
			if err != nil {
				return err
			}

			if found && owner == id {
				batch.Delete(s.keys.source(item))
			}
		}
	}

	record, found, err := s.loadType(ctx, id)
	if err != nil {
		return err
	}

	if found {
		batch.Delete(s.keys.bucket(record.Category, record.State, id))
	}

	// account and unit memberships are kept as a superset, so search them all
	for _, index := range []string{indexAccount, indexUnit} {
		keys, err := s.backend.Keys(ctx, s.keys.prefix(spaceIndex, index))
		if err != nil {
			return fmt.Errorf("failed to delete workflow %s: %w", id, err)
		}

		for _, key := range keys {
			memberID, err := member(key)
			if err == nil && memberID == id {
				batch.Delete(key)
			}
		}
	}

	batch.Delete(s.keys.archive(id))
	batch.Delete(s.keys.typeRecord(id))
	batch.Delete(s.keys.primary(id))

	err = s.backend.Apply(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	s.logger.DebugContext(ctx, "Deleted workflow", "workflow_id", id)

	return nil
}

func encode(workflow *models.Workflow) ([]byte, error) {
	record := workflow.Clone()

	if record.Parties == nil {
		record.Parties = []string{}
	}

	if record.Accounts == nil {
		record.Accounts = []string{}
	}

	if record.Units == nil {
		record.Units = []string{}
	}

	if record.SourceItems == nil {
		record.SourceItems = []models.SourceItem{}
	}

	if record.Events == nil {
		record.Events = []models.Event{}
	}

	return json.Marshal(record)
}

func decode(data []byte) (*models.Workflow, error) {
	err := models.ValidateRecord(data)
	if err != nil {
		return nil, err
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow record: %w", err)
	}

	return &workflow, nil
}
