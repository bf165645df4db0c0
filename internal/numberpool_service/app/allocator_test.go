package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/adapters/telephony"
	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
	"github.com/yomariano/numberpool-service/internal/platform/messagebroker"
)

// --- Mocks ---

type MockPoolEntryRepository struct {
	mock.Mock
}

func (m *MockPoolEntryRepository) Create(ctx context.Context, entry *domain.PoolEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockPoolEntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PoolEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PoolEntry), args.Error(1)
}

func (m *MockPoolEntryRepository) OldestAvailable(ctx context.Context, region string, limit int) ([]*domain.PoolEntry, error) {
	args := m.Called(ctx, region, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PoolEntry), args.Error(1)
}

func (m *MockPoolEntryRepository) ClaimReserved(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, reservedUntil time.Time) (bool, error) {
	args := m.Called(ctx, id, tenantID, reservedUntil)
	return args.Bool(0), args.Error(1)
}

func (m *MockPoolEntryRepository) SetAssigned(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, tenantID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPoolEntryRepository) SetReleased(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, tenantID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPoolEntryRepository) SetAvailable(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPoolEntryRepository) SetExternalVoiceID(ctx context.Context, id uuid.UUID, externalID string) error {
	args := m.Called(ctx, id, externalID)
	return args.Error(0)
}

func (m *MockPoolEntryRepository) FindReservedByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.PoolEntry, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PoolEntry), args.Error(1)
}

func (m *MockPoolEntryRepository) FindAssignedByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.PoolEntry, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PoolEntry), args.Error(1)
}

func (m *MockPoolEntryRepository) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*domain.PoolEntry, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PoolEntry), args.Error(1)
}

func (m *MockPoolEntryRepository) ReleaseExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockPoolEntryRepository) RecyclableEntries(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PoolEntry, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PoolEntry), args.Error(1)
}

func (m *MockPoolEntryRepository) Recycle(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPoolEntryRepository) Stats(ctx context.Context, region string) (*domain.PoolStats, error) {
	args := m.Called(ctx, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PoolStats), args.Error(1)
}

type MockAssignmentEventRepository struct {
	mock.Mock
}

func (m *MockAssignmentEventRepository) Append(ctx context.Context, event *domain.AssignmentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockImportGateway struct {
	mock.Mock
}

func (m *MockImportGateway) ImportNumber(ctx context.Context, req telephony.ImportRequest) (*telephony.ImportResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telephony.ImportResult), args.Error(1)
}

type MockNATSClient struct {
	mock.Mock
}

func (m *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func (m *MockNATSClient) Subscribe(ctx context.Context, subject string, queueGroup string, handler func(msg messagebroker.Message)) (messagebroker.Subscription, error) {
	args := m.Called(ctx, subject, queueGroup, handler)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(messagebroker.Subscription), args.Error(1)
}

func (m *MockNATSClient) Close() {
	m.Called()
}

// --- Helpers ---

type allocatorFixture struct {
	allocator *Allocator
	entries   *MockPoolEntryRepository
	events    *MockAssignmentEventRepository
	gateway   *MockImportGateway
	nats      *MockNATSClient
}

func newAllocatorFixture(t *testing.T) *allocatorFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	entries := &MockPoolEntryRepository{}
	events := &MockAssignmentEventRepository{}
	gateway := &MockImportGateway{}
	nats := &MockNATSClient{}

	// Audit append and event publish are best-effort side effects.
	events.On("Append", mock.Anything, mock.Anything).Return(nil).Maybe()
	nats.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	publisher := NewEventPublisher(nats, logger)
	allocator := NewAllocator(entries, events, gateway, publisher, logger, AllocatorConfig{
		ReservationTTL: 15 * time.Minute,
		ImportTimeout:  5 * time.Second,
	})

	return &allocatorFixture{
		allocator: allocator,
		entries:   entries,
		events:    events,
		gateway:   gateway,
		nats:      nats,
	}
}

func availableEntry(region string) *domain.PoolEntry {
	return domain.NewPoolEntry(uuid.New(), "+35315550100", region, "carrier-a")
}

func reservedEntry(tenantID uuid.UUID) *domain.PoolEntry {
	entry := availableEntry("IE")
	entry.Status = domain.StatusReserved
	entry.Owner = uuid.NullUUID{UUID: tenantID, Valid: true}
	entry.ReservedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	entry.ReservedUntil = sql.NullTime{Time: time.Now().UTC().Add(15 * time.Minute), Valid: true}
	return entry
}

// --- Reserve ---

func TestAllocator_Reserve_Success(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	candidate := availableEntry("IE")

	f.entries.On("OldestAvailable", mock.Anything, "IE", maxClaimAttempts).
		Return([]*domain.PoolEntry{candidate}, nil)
	f.entries.On("ClaimReserved", mock.Anything, candidate.ID, tenantID, mock.AnythingOfType("time.Time")).
		Return(true, nil)

	entry, err := f.allocator.Reserve(context.Background(), tenantID, "IE", 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, entry.Status)
	assert.Equal(t, tenantID, entry.Owner.UUID)
	assert.True(t, entry.ReservedUntil.Valid)
	f.entries.AssertExpectations(t)
}

func TestAllocator_Reserve_LostRaceThenWinsNextCandidate(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	first := availableEntry("IE")
	second := availableEntry("IE")

	f.entries.On("OldestAvailable", mock.Anything, "IE", maxClaimAttempts).
		Return([]*domain.PoolEntry{first, second}, nil)
	f.entries.On("ClaimReserved", mock.Anything, first.ID, tenantID, mock.AnythingOfType("time.Time")).
		Return(false, nil)
	f.entries.On("ClaimReserved", mock.Anything, second.ID, tenantID, mock.AnythingOfType("time.Time")).
		Return(true, nil)

	entry, err := f.allocator.Reserve(context.Background(), tenantID, "IE", 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, second.ID, entry.ID)
	f.entries.AssertExpectations(t)
}

func TestAllocator_Reserve_AllCandidatesLost(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	first := availableEntry("IE")
	second := availableEntry("IE")

	f.entries.On("OldestAvailable", mock.Anything, "IE", maxClaimAttempts).
		Return([]*domain.PoolEntry{first, second}, nil)
	f.entries.On("ClaimReserved", mock.Anything, mock.Anything, tenantID, mock.AnythingOfType("time.Time")).
		Return(false, nil)

	_, err := f.allocator.Reserve(context.Background(), tenantID, "IE", 15*time.Minute)

	assert.ErrorIs(t, err, domain.ErrPoolExhausted)
}

func TestAllocator_Reserve_NoAvailableNumber(t *testing.T) {
	f := newAllocatorFixture(t)

	f.entries.On("OldestAvailable", mock.Anything, "US", maxClaimAttempts).
		Return([]*domain.PoolEntry{}, nil)

	_, err := f.allocator.Reserve(context.Background(), uuid.New(), "US", 15*time.Minute)

	assert.ErrorIs(t, err, domain.ErrNoAvailableNumber)
}

// --- Assign ---

func TestAllocator_Assign_ImportsThenAssigns(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	entry := reservedEntry(tenantID)

	f.entries.On("FindReservedByTenant", mock.Anything, tenantID).Return(entry, nil)
	f.gateway.On("ImportNumber", mock.Anything, telephony.ImportRequest{
		PhoneNumber: entry.PhoneNumber,
		ProviderTag: entry.ProviderTag,
		Region:      entry.Region,
	}).Return(&telephony.ImportResult{ExternalID: "PN-123"}, nil)
	f.entries.On("SetExternalVoiceID", mock.Anything, entry.ID, "PN-123").Return(nil)
	f.entries.On("SetAssigned", mock.Anything, entry.ID, tenantID).Return(true, nil)

	assigned, err := f.allocator.Assign(context.Background(), tenantID, uuid.NullUUID{})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, assigned.Status)
	assert.Equal(t, "PN-123", assigned.ExternalVoiceID.String)
	assert.False(t, assigned.ReservedUntil.Valid)
	f.entries.AssertExpectations(t)
	f.gateway.AssertExpectations(t)
}

func TestAllocator_Assign_SkipsImportWhenAlreadyImported(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	entry := reservedEntry(tenantID)
	entry.ExternalVoiceID = sql.NullString{String: "PN-EXISTING", Valid: true}

	f.entries.On("FindReservedByTenant", mock.Anything, tenantID).Return(entry, nil)
	f.entries.On("SetAssigned", mock.Anything, entry.ID, tenantID).Return(true, nil)

	assigned, err := f.allocator.Assign(context.Background(), tenantID, uuid.NullUUID{})

	require.NoError(t, err)
	assert.Equal(t, "PN-EXISTING", assigned.ExternalVoiceID.String)
	f.gateway.AssertNotCalled(t, "ImportNumber", mock.Anything, mock.Anything)
}

func TestAllocator_Assign_GatewayFailureLeavesEntryReserved(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	entry := reservedEntry(tenantID)

	f.entries.On("FindReservedByTenant", mock.Anything, tenantID).Return(entry, nil)
	f.gateway.On("ImportNumber", mock.Anything, mock.Anything).
		Return(nil, domain.ErrImportGateway)

	_, err := f.allocator.Assign(context.Background(), tenantID, uuid.NullUUID{})

	assert.ErrorIs(t, err, domain.ErrImportGateway)
	f.entries.AssertNotCalled(t, "SetAssigned", mock.Anything, mock.Anything, mock.Anything)
}

func TestAllocator_Assign_AlreadyAssigned(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	entry := reservedEntry(tenantID)
	entry.Status = domain.StatusAssigned

	f.entries.On("GetByID", mock.Anything, entry.ID).Return(entry, nil)

	_, err := f.allocator.Assign(context.Background(), tenantID, uuid.NullUUID{UUID: entry.ID, Valid: true})

	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)
}

func TestAllocator_Assign_ReservedByOther(t *testing.T) {
	f := newAllocatorFixture(t)
	owner := uuid.New()
	caller := uuid.New()
	entry := reservedEntry(owner)

	f.entries.On("GetByID", mock.Anything, entry.ID).Return(entry, nil)

	_, err := f.allocator.Assign(context.Background(), caller, uuid.NullUUID{UUID: entry.ID, Valid: true})

	assert.ErrorIs(t, err, domain.ErrReservedByOther)
}

// --- Release / Cancel ---

func TestAllocator_Release_IdempotentWhenNothingAssigned(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()

	f.entries.On("FindAssignedByTenant", mock.Anything, tenantID).Return(nil, domain.ErrNotFound)

	released, err := f.allocator.Release(context.Background(), tenantID, "subscription cancelled")

	require.NoError(t, err)
	assert.False(t, released)
}

func TestAllocator_Release_Success(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	entry := reservedEntry(tenantID)
	entry.Status = domain.StatusAssigned

	f.entries.On("FindAssignedByTenant", mock.Anything, tenantID).Return(entry, nil)
	f.entries.On("SetReleased", mock.Anything, entry.ID, tenantID).Return(true, nil)

	released, err := f.allocator.Release(context.Background(), tenantID, "subscription cancelled")

	require.NoError(t, err)
	assert.True(t, released)
	f.entries.AssertExpectations(t)
}

func TestAllocator_CancelReservation_Idempotent(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()

	f.entries.On("FindReservedByTenant", mock.Anything, tenantID).Return(nil, domain.ErrNotFound)

	cancelled, err := f.allocator.CancelReservation(context.Background(), tenantID)

	require.NoError(t, err)
	assert.False(t, cancelled)
}

// --- Sweeps ---

func TestAllocator_SweepExpiredReservations_SkipsFailedRows(t *testing.T) {
	f := newAllocatorFixture(t)
	first := reservedEntry(uuid.New())
	second := reservedEntry(uuid.New())

	f.entries.On("ExpiredReservations", mock.Anything, mock.AnythingOfType("time.Time"), sweepBatchSize).
		Return([]*domain.PoolEntry{first, second}, nil)
	f.entries.On("ReleaseExpired", mock.Anything, first.ID, mock.AnythingOfType("time.Time")).
		Return(false, errors.New("connection reset"))
	f.entries.On("ReleaseExpired", mock.Anything, second.ID, mock.AnythingOfType("time.Time")).
		Return(true, nil)

	count, err := f.allocator.SweepExpiredReservations(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAllocator_SweepRecycle_CooldownCutoff(t *testing.T) {
	f := newAllocatorFixture(t)
	entry := availableEntry("IE")
	entry.Status = domain.StatusReleased

	var capturedCutoff time.Time
	f.entries.On("RecyclableEntries", mock.Anything, mock.AnythingOfType("time.Time"), sweepBatchSize).
		Run(func(args mock.Arguments) {
			capturedCutoff = args.Get(1).(time.Time)
		}).
		Return([]*domain.PoolEntry{entry}, nil)
	f.entries.On("Recycle", mock.Anything, entry.ID).Return(true, nil)

	count, err := f.allocator.SweepRecycle(context.Background(), 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	// Cutoff sits ~24h in the past.
	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), capturedCutoff, time.Minute)
}

// --- Bulk provisioning ---

func TestAllocator_ProvisionNumbers_PartialYield(t *testing.T) {
	f := newAllocatorFixture(t)
	tenantID := uuid.New()
	first := availableEntry("IE")
	second := availableEntry("IE")

	f.entries.On("OldestAvailable", mock.Anything, "IE", maxClaimAttempts).
		Return([]*domain.PoolEntry{first}, nil).Once()
	f.entries.On("ClaimReserved", mock.Anything, first.ID, tenantID, mock.AnythingOfType("time.Time")).
		Return(true, nil).Once()
	f.entries.On("GetByID", mock.Anything, first.ID).Return(reservedEntryWithID(first.ID, tenantID), nil).Once()
	f.entries.On("SetExternalVoiceID", mock.Anything, first.ID, "PN-1").Return(nil).Once()
	f.entries.On("SetAssigned", mock.Anything, first.ID, tenantID).Return(true, nil).Once()

	f.entries.On("OldestAvailable", mock.Anything, "IE", maxClaimAttempts).
		Return([]*domain.PoolEntry{second}, nil).Once()
	f.entries.On("ClaimReserved", mock.Anything, second.ID, tenantID, mock.AnythingOfType("time.Time")).
		Return(true, nil).Once()
	f.entries.On("GetByID", mock.Anything, second.ID).Return(reservedEntryWithID(second.ID, tenantID), nil).Once()
	f.entries.On("SetExternalVoiceID", mock.Anything, second.ID, "PN-2").Return(nil).Once()
	f.entries.On("SetAssigned", mock.Anything, second.ID, tenantID).Return(true, nil).Once()

	// Third iteration: the pool is empty.
	f.entries.On("OldestAvailable", mock.Anything, "IE", maxClaimAttempts).
		Return([]*domain.PoolEntry{}, nil).Once()

	f.gateway.On("ImportNumber", mock.Anything, mock.Anything).
		Return(&telephony.ImportResult{ExternalID: "PN-1"}, nil).Once()
	f.gateway.On("ImportNumber", mock.Anything, mock.Anything).
		Return(&telephony.ImportResult{ExternalID: "PN-2"}, nil).Once()

	provisioned, err := f.allocator.ProvisionNumbers(context.Background(), tenantID, "IE", 3)

	assert.Equal(t, 2, provisioned)
	assert.ErrorIs(t, err, domain.ErrNoAvailableNumber)
	f.entries.AssertExpectations(t)
}

func reservedEntryWithID(id uuid.UUID, tenantID uuid.UUID) *domain.PoolEntry {
	entry := reservedEntry(tenantID)
	entry.ID = id
	return entry
}
