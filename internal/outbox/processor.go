package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowcatalyst/messagerouter/internal/common/leader"
	"github.com/flowcatalyst/messagerouter/internal/common/metrics"
)

// ProcessorConfig holds configuration for the outbox processor
type ProcessorConfig struct {
	// Enabled controls whether the processor is active
	Enabled bool

	// PollInterval is how often to poll for pending items
	PollInterval time.Duration

	// PollBatchSize is the maximum items to fetch per poll
	PollBatchSize int

	// APIBatchSize is the maximum items per API call
	APIBatchSize int

	// MaxConcurrentGroups limits parallel message group processing
	MaxConcurrentGroups int

	// GlobalBufferSize is the capacity of the buffer between the poller
	// and the group distributor. Overflowing items stay IN_PROGRESS and
	// are picked up by the recovery sweep.
	GlobalBufferSize int

	// MaxInFlight is the maximum items in the pipeline (buffer + processing queues)
	// Poller checks this before polling to implement backpressure
	MaxInFlight int

	// MaxRetries is the maximum retry attempts before marking as failed
	MaxRetries int

	// RecoveryInterval is how often to run periodic recovery
	RecoveryInterval time.Duration

	// ProcessingTimeoutSeconds is how long items can be in error status before recovery
	ProcessingTimeoutSeconds int

	// LeaderElection enables distributed leader election
	LeaderElection LeaderElectionConfig
}

// LeaderElectionConfig holds leader election settings
type LeaderElectionConfig struct {
	Enabled         bool
	LockName        string
	LeaseDuration   time.Duration
	RefreshInterval time.Duration
	// RedisURL is the Redis connection URL (e.g., "redis://localhost:6379")
	// If empty, leader election is disabled even if Enabled is true
	RedisURL string
}

// DefaultLeaderElectionConfig returns sensible defaults for leader election
func DefaultLeaderElectionConfig() LeaderElectionConfig {
	return LeaderElectionConfig{
		Enabled:         false, // Disabled by default (single-instance mode)
		LockName:        "outbox-processor-leader",
		LeaseDuration:   30 * time.Second,
		RefreshInterval: 10 * time.Second,
	}
}

// DefaultProcessorConfig returns sensible defaults
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		Enabled:                  true,
		PollInterval:             time.Second,
		PollBatchSize:            500,
		APIBatchSize:             100,
		MaxConcurrentGroups:      10,
		GlobalBufferSize:         5000,
		MaxInFlight:              2500, // 5x PollBatchSize
		MaxRetries:               3,
		RecoveryInterval:         60 * time.Second,
		ProcessingTimeoutSeconds: 300, // 5 minutes
	}
}

// Processor implements the Outbox Pattern for reliable message publishing.
// Uses a single-poller, status-based architecture with NO row locking.
//
// Architecture:
//   1. Single poller fetches items WHERE status = 0 (PENDING)
//   2. Items are marked status = 9 (IN_PROGRESS) immediately after fetch
//   3. Distributor routes items to message group processors (maintains FIFO per group)
//   4. On completion, status is updated to reflect outcome (1=success, 2-6=error types)
//   5. Crash recovery: on startup, reset status = 9 back to 0
//
// This approach avoids row locking (FOR UPDATE SKIP LOCKED) and works
// identically across PostgreSQL, MySQL, and MongoDB.
type Processor struct {
	config    *ProcessorConfig
	repo      Repository
	apiClient BatchSender

	// Global buffer for items waiting to be distributed
	buffer     chan *OutboxItem
	bufferSize int32 // Atomic counter for current buffer occupancy

	// In-flight tracking: buffer + items in message group queues
	inFlightCount int32 // Atomic counter

	// lastPollNanos is the unix-nano timestamp of the last completed poll
	lastPollNanos atomic.Int64

	// Group distributor
	groupProcessors sync.Map // map[groupKey]*MessageGroupProcessor
	groupSemaphore  chan struct{}

	// Leader election (Redis-based for multi-instance deployments)
	redisLeaderElector *leader.RedisLeaderElector
	mongoLeaderElector *leader.LeaderElector
	isPrimary          atomic.Bool

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
	pollMu    sync.Mutex // Prevent overlapping polls
}

// NewProcessor creates a new outbox processor
func NewProcessor(repo Repository, apiClient BatchSender, config *ProcessorConfig) *Processor {
	if config == nil {
		config = DefaultProcessorConfig()
	}
	if config.GlobalBufferSize <= 0 {
		config.GlobalBufferSize = config.MaxInFlight
	}
	if config.MaxConcurrentGroups <= 0 {
		config.MaxConcurrentGroups = 10
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Processor{
		config:         config,
		repo:           repo,
		apiClient:      apiClient,
		buffer:         make(chan *OutboxItem, config.GlobalBufferSize),
		groupSemaphore: make(chan struct{}, config.MaxConcurrentGroups),
		ctx:            ctx,
		cancel:         cancel,
	}

	// Default to primary if leader election is disabled
	p.isPrimary.Store(true)

	return p
}

// WithRedisLeaderElection enables Redis-based leader election for multi-instance deployments.
// The Redis client is used for distributed lock acquisition.
func (p *Processor) WithRedisLeaderElection(redisClient *redis.Client) *Processor {
	if redisClient == nil || !p.config.LeaderElection.Enabled {
		return p
	}

	cfg := leader.DefaultRedisElectorConfig(p.config.LeaderElection.LockName)
	if p.config.LeaderElection.LeaseDuration > 0 {
		cfg.TTL = p.config.LeaderElection.LeaseDuration
	}
	if p.config.LeaderElection.RefreshInterval > 0 {
		cfg.RefreshInterval = p.config.LeaderElection.RefreshInterval
	}

	p.redisLeaderElector = leader.NewRedisLeaderElector(redisClient, cfg)

	// Set up callbacks to update isPrimary
	p.redisLeaderElector.OnBecomeLeader(func() {
		p.isPrimary.Store(true)
		metrics.OutboxLeaderElectionState.Set(1) // Leader
		slog.Info("Outbox processor became primary via Redis leader election")
	})
	p.redisLeaderElector.OnLoseLeadership(func() {
		p.isPrimary.Store(false)
		metrics.OutboxLeaderElectionState.Set(0) // Follower
		slog.Warn("Outbox processor lost primary status via Redis leader election")
	})

	// Start with non-primary until we acquire leadership
	p.isPrimary.Store(false)

	return p
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return
	}
	p.running = true

	if !p.config.Enabled {
		slog.Info("Outbox processor is disabled")
		return
	}

	// Perform crash recovery FIRST (reset stuck items from previous run)
	p.doCrashRecovery()

	// Start leader election if configured
	if p.redisLeaderElector != nil {
		if err := p.redisLeaderElector.Start(p.ctx); err != nil {
			slog.Error("Failed to start Redis leader election", "error", err)
		} else {
			slog.Info("Redis leader election started for outbox processor",
				"leaderElectionEnabled", true,
				"lockName", p.config.LeaderElection.LockName)
		}
	}

	// Start the distributor goroutine
	p.wg.Add(1)
	go p.runDistributor()

	// Start the polling goroutine
	p.wg.Add(1)
	go p.runPoller()

	// Start the periodic recovery goroutine
	p.wg.Add(1)
	go p.runPeriodicRecovery()

	slog.Info("Outbox processor started",
		"pollInterval", p.config.PollInterval,
		"batchSize", p.config.PollBatchSize,
		"maxConcurrentGroups", p.config.MaxConcurrentGroups,
		"maxInFlight", p.config.MaxInFlight,
		"isPrimary", p.isPrimary.Load())
}

// Stop stops the outbox processor
func (p *Processor) Stop() {
	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	p.cancel()
	p.wg.Wait()

	// Stop leader election if running
	if p.redisLeaderElector != nil {
		p.redisLeaderElector.Stop()
	}

	slog.Info("Outbox processor stopped")
}

// IsPrimary returns whether this processor is the current leader
func (p *Processor) IsPrimary() bool {
	return p.isPrimary.Load()
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	inFlight := atomic.LoadInt32(&p.inFlightCount)
	return ProcessorStats{
		Status:                "UP",
		Healthy:               p.running && p.isPrimary.Load(),
		LastPollTime:          time.Unix(0, p.lastPollNanos.Load()),
		ActiveMessageGroups:   p.countActiveGroups(),
		InFlightPermits:       p.config.MaxInFlight - int(inFlight),
		TotalInFlightCapacity: p.config.MaxInFlight,
		BufferedItems:         int(atomic.LoadInt32(&p.bufferSize)),
	}
}

// countActiveGroups counts active message group processors
func (p *Processor) countActiveGroups() int {
	count := 0
	p.groupProcessors.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// doCrashRecovery resets stuck items (status=9) back to pending (status=0)
// This is called on startup to recover from crashes/restarts
func (p *Processor) doCrashRecovery() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, itemType := range AllItemTypes() {
		stuckItems, err := p.repo.FetchStuckItems(ctx, itemType)
		if err != nil {
			slog.Error("Failed to fetch stuck items during crash recovery",
				"error", err,
				"type", string(itemType))
			continue
		}

		if len(stuckItems) == 0 {
			continue
		}

		ids := make([]string, len(stuckItems))
		for i, item := range stuckItems {
			ids[i] = item.ID
		}

		if err := p.repo.ResetStuckItems(ctx, itemType, ids); err != nil {
			slog.Error("Failed to reset stuck items during crash recovery",
				"error", err,
				"type", string(itemType),
				"count", len(ids))
			continue
		}

		metrics.OutboxRecoveredItems.WithLabelValues(string(itemType)).Add(float64(len(ids)))
		slog.Info("Reset stuck outbox items during crash recovery",
			"type", string(itemType),
			"count", len(ids))
	}
}

// runPeriodicRecovery runs the periodic recovery loop
func (p *Processor) runPeriodicRecovery() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if !p.isPrimary.Load() {
				continue
			}
			p.doPeriodicRecovery()
		}
	}
}

// doPeriodicRecovery resets items that have been in error states for too long
// Recovers: IN_PROGRESS, BAD_REQUEST, INTERNAL_ERROR, UNAUTHORIZED, FORBIDDEN, GATEWAY_ERROR
func (p *Processor) doPeriodicRecovery() {
	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	for _, itemType := range AllItemTypes() {
		recoverableItems, err := p.repo.FetchRecoverableItems(
			ctx,
			itemType,
			p.config.ProcessingTimeoutSeconds,
			p.config.PollBatchSize,
		)
		if err != nil {
			slog.Error("Failed to fetch recoverable items during periodic recovery",
				"error", err,
				"type", string(itemType))
			continue
		}

		if len(recoverableItems) == 0 {
			continue
		}

		ids := make([]string, len(recoverableItems))
		for i, item := range recoverableItems {
			ids[i] = item.ID
		}

		if err := p.repo.ResetRecoverableItems(ctx, itemType, ids); err != nil {
			slog.Error("Failed to reset recoverable items during periodic recovery",
				"error", err,
				"type", string(itemType),
				"count", len(ids))
			continue
		}

		metrics.OutboxRecoveredItems.WithLabelValues(string(itemType)).Add(float64(len(ids)))
		slog.Info("Periodic recovery: reset items back to PENDING",
			"type", string(itemType),
			"count", len(ids))
	}
}

// runPoller runs the main polling loop
func (p *Processor) runPoller() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if !p.isPrimary.Load() {
				continue
			}
			p.doPoll()
		}
	}
}

// doPoll performs a single poll iteration
func (p *Processor) doPoll() {
	// Prevent overlapping polls
	if !p.pollMu.TryLock() {
		return
	}
	defer p.pollMu.Unlock()

	// Check if there's sufficient capacity BEFORE polling
	// We need space for at least a full batch
	currentInFlight := atomic.LoadInt32(&p.inFlightCount)
	availableSlots := p.config.MaxInFlight - int(currentInFlight)

	if availableSlots < p.config.PollBatchSize {
		slog.Debug("Skipping poll - insufficient in-flight capacity",
			"availableSlots", availableSlots,
			"pollBatchSize", p.config.PollBatchSize)
		return
	}

	startTime := time.Now()
	defer func() {
		metrics.OutboxPollDuration.Observe(time.Since(startTime).Seconds())
	}()

	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	for _, itemType := range AllItemTypes() {
		p.pollItemType(ctx, itemType)
	}

	p.lastPollNanos.Store(time.Now().UnixNano())
}

// pollItemType polls for items of a specific type
func (p *Processor) pollItemType(ctx context.Context, itemType OutboxItemType) {
	// 1. Fetch pending items (simple SELECT, no locking)
	items, err := p.repo.FetchPending(ctx, itemType, p.config.PollBatchSize)
	if err != nil {
		slog.Error("Failed to fetch pending outbox items",
			"error", err,
			"type", string(itemType))
		return
	}

	if len(items) == 0 {
		return
	}

	// 2. Mark as in-progress IMMEDIATELY (before buffering)
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	if err := p.repo.MarkAsInProgress(ctx, itemType, ids); err != nil {
		slog.Error("Failed to mark items as in-progress",
			"error", err,
			"type", string(itemType),
			"count", len(ids))
		// Don't proceed - items will be picked up on next poll
		return
	}

	// 3. Acquire in-flight permits for the actual fetched count
	atomic.AddInt32(&p.inFlightCount, int32(len(items)))
	metrics.OutboxInFlightItems.Set(float64(atomic.LoadInt32(&p.inFlightCount)))

	slog.Debug("Fetched and marked outbox items as in-progress",
		"type", string(itemType),
		"count", len(items))

	// 4. Add to buffer. On overflow the item stays IN_PROGRESS and is
	// picked up by the recovery sweep; its permit is released so the
	// pipeline does not count phantom items.
	rejected := 0
	for _, item := range items {
		select {
		case p.buffer <- item:
			atomic.AddInt32(&p.bufferSize, 1)
			metrics.OutboxBufferSize.Set(float64(atomic.LoadInt32(&p.bufferSize)))
		default:
			rejected++
			p.releaseInFlight(1)
		}
	}

	if rejected > 0 {
		slog.Warn("Outbox buffer full, items left in-progress for recovery",
			"type", string(itemType),
			"rejected", rejected,
			"bufferCapacity", p.config.GlobalBufferSize)
	}
}

// releaseInFlight hands permits back to the poller. Passed down the
// pipeline as a narrow callback so group processors never hold a
// reference cycle back to the poller.
func (p *Processor) releaseInFlight(n int) {
	atomic.AddInt32(&p.inFlightCount, -int32(n))
	metrics.OutboxInFlightItems.Set(float64(atomic.LoadInt32(&p.inFlightCount)))
}

// runDistributor runs the distributor loop that routes items to group processors
func (p *Processor) runDistributor() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			// Drain remaining items
			p.drainBuffer()
			return
		case item := <-p.buffer:
			atomic.AddInt32(&p.bufferSize, -1)
			metrics.OutboxBufferSize.Set(float64(atomic.LoadInt32(&p.bufferSize)))
			p.distributeItem(item)
		}
	}
}

// distributeItem routes an item to the appropriate message group processor
func (p *Processor) distributeItem(item *OutboxItem) {
	groupKey := fmt.Sprintf("%s:%s", item.Type, item.GetEffectiveMessageGroup())

	// Get or create processor for this group
	processorI, _ := p.groupProcessors.LoadOrStore(groupKey, &MessageGroupProcessor{
		groupKey:   groupKey,
		itemType:   item.Type,
		queue:      make(chan *OutboxItem, 1000), // Large queue per group
		processor:  p,
		processing: false,
	})
	processor := processorI.(*MessageGroupProcessor)

	// Add item to group queue (maintains FIFO within group)
	select {
	case processor.queue <- item:
		// Try to start processing if not already running
		processor.tryStart()
	default:
		// Group queue full - this shouldn't happen with 1000 capacity
		slog.Warn("Group queue full",
			"group", groupKey,
			"itemId", item.ID)
	}
}

// drainBuffer drains remaining items from the buffer during shutdown
func (p *Processor) drainBuffer() {
	for {
		select {
		case item := <-p.buffer:
			slog.Debug("Draining item during shutdown - will be recovered on restart",
				"itemId", item.ID)
		default:
			return
		}
	}
}

// MessageGroupProcessor processes items for a single message group in FIFO order
type MessageGroupProcessor struct {
	groupKey   string
	itemType   OutboxItemType
	queue      chan *OutboxItem
	processor  *Processor
	processing bool
	mu         sync.Mutex
}

// tryStart attempts to start processing if not already running
func (m *MessageGroupProcessor) tryStart() {
	m.mu.Lock()
	if m.processing {
		m.mu.Unlock()
		return
	}
	m.processing = true
	m.mu.Unlock()

	go m.processLoop()
}

// processLoop processes items in the group queue
func (m *MessageGroupProcessor) processLoop() {
	defer func() {
		m.mu.Lock()
		m.processing = false
		m.mu.Unlock()
	}()

	for {
		// Collect a batch from this group's queue
		batch := m.collectBatch()
		if len(batch) == 0 {
			return // No more items, exit
		}

		// Acquire semaphore for concurrent group limit
		select {
		case m.processor.groupSemaphore <- struct{}{}:
			// Got semaphore
		case <-m.processor.ctx.Done():
			return
		}

		m.processBatch(batch)

		// Release semaphore
		<-m.processor.groupSemaphore
	}
}

// collectBatch collects up to APIBatchSize items from the queue
func (m *MessageGroupProcessor) collectBatch() []*OutboxItem {
	batch := make([]*OutboxItem, 0, m.processor.config.APIBatchSize)

	for i := 0; i < m.processor.config.APIBatchSize; i++ {
		select {
		case item := <-m.queue:
			batch = append(batch, item)
		default:
			return batch
		}
	}

	return batch
}

// processBatch sends a batch to the API and updates item statuses
func (m *MessageGroupProcessor) processBatch(batch []*OutboxItem) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(m.processor.ctx, 30*time.Second)
	defer cancel()

	// Track active processors
	metrics.OutboxActiveProcessors.Inc()
	defer metrics.OutboxActiveProcessors.Dec()

	// Track API call duration
	apiStartTime := time.Now()

	var result *BatchResult
	var err error

	switch m.itemType {
	case OutboxItemTypeEvent:
		result, err = m.processor.apiClient.SendEventBatch(ctx, batch)
	case OutboxItemTypeDispatchJob:
		result, err = m.processor.apiClient.SendDispatchJobBatch(ctx, batch)
	case OutboxItemTypeAuditLog:
		result, err = m.processor.apiClient.SendAuditLogBatch(ctx, batch)
	}

	metrics.OutboxAPIDuration.WithLabelValues(string(m.itemType)).Observe(time.Since(apiStartTime).Seconds())

	// Every batch releases its permits, success or failure
	m.processor.releaseInFlight(len(batch))

	if result == nil {
		// No per-item statuses available (marshalling or request
		// construction failed). Split by retry budget.
		m.handleUnexpectedFailure(ctx, batch, err)
		return
	}

	// Mark successful items
	if len(result.SuccessIDs) > 0 {
		if err := m.processor.repo.MarkWithStatus(ctx, m.itemType, result.SuccessIDs, StatusSuccess); err != nil {
			slog.Error("Failed to mark items as completed", "error", err)
		}
		metrics.OutboxItemsProcessed.WithLabelValues(string(m.itemType), "completed").Add(float64(len(result.SuccessIDs)))
	}

	if len(result.FailedItems) > 0 {
		errorMessage := ""
		if result.Error != nil {
			errorMessage = result.Error.Error()
		}
		m.handleItemFailures(ctx, batch, result.FailedItems, errorMessage)
	}

	slog.Debug("Batch processed",
		"group", m.groupKey,
		"success", len(result.SuccessIDs),
		"failed", len(result.FailedItems))
}

// handleItemFailures applies per-item failure statuses. Items with a
// retryable status and remaining budget go back to PENDING with an
// incremented retry count; on exhaustion the last status is stored as
// the terminal status, except GATEWAY_ERROR which collapses to
// INTERNAL_ERROR; non-retryable statuses are stored as-is.
func (m *MessageGroupProcessor) handleItemFailures(ctx context.Context, batch []*OutboxItem, failedItems map[string]OutboxStatus, errorMessage string) {
	itemByID := make(map[string]*OutboxItem, len(batch))
	for _, item := range batch {
		itemByID[item.ID] = item
	}

	byStatus := make(map[OutboxStatus][]string)
	retryIDs := make([]string, 0)

	for id, status := range failedItems {
		item := itemByID[id]
		if item == nil {
			continue
		}

		maxRetries := item.EffectiveMaxRetries(m.processor.config.MaxRetries)
		switch {
		case status.IsRetryable() && item.RetryCount < maxRetries:
			retryIDs = append(retryIDs, id)
		case status == StatusGatewayError:
			// Retry budget exhausted: a gateway error carries no
			// information about the item itself, so it collapses to
			// INTERNAL_ERROR. Other retryable statuses (UNAUTHORIZED,
			// INTERNAL_ERROR) are stored as the terminal status.
			byStatus[StatusInternalError] = append(byStatus[StatusInternalError], id)
		default:
			byStatus[status] = append(byStatus[status], id)
		}
	}

	if len(retryIDs) > 0 {
		if err := m.processor.repo.IncrementRetryCount(ctx, m.itemType, retryIDs); err != nil {
			slog.Error("Failed to schedule retry for failed items", "error", err)
		}
		metrics.OutboxItemsProcessed.WithLabelValues(string(m.itemType), "retried").Add(float64(len(retryIDs)))
	}

	for status, ids := range byStatus {
		var err error
		if errorMessage != "" {
			err = m.processor.repo.MarkWithStatusAndError(ctx, m.itemType, ids, status, errorMessage)
		} else {
			err = m.processor.repo.MarkWithStatus(ctx, m.itemType, ids, status)
		}
		if err != nil {
			slog.Error("Failed to mark items with status",
				"error", err,
				"status", status.String())
		}
		metrics.OutboxItemsProcessed.WithLabelValues(string(m.itemType), "failed").Add(float64(len(ids)))
		slog.Warn("Items marked as failed",
			"group", m.groupKey,
			"count", len(ids),
			"status", status.String())
	}
}

// handleUnexpectedFailure handles a batch that failed before any response
// was produced. Items with remaining retry budget go back to PENDING;
// the rest are stored as INTERNAL_ERROR with the failure message.
func (m *MessageGroupProcessor) handleUnexpectedFailure(ctx context.Context, batch []*OutboxItem, batchErr error) {
	errorMessage := "batch processing failed"
	if batchErr != nil {
		errorMessage = batchErr.Error()
	}

	slog.Error("Failed to send batch",
		"error", batchErr,
		"group", m.groupKey,
		"batchSize", len(batch))

	retryIDs := make([]string, 0)
	failIDs := make([]string, 0)

	for _, item := range batch {
		if item.RetryCount < item.EffectiveMaxRetries(m.processor.config.MaxRetries) {
			retryIDs = append(retryIDs, item.ID)
		} else {
			failIDs = append(failIDs, item.ID)
		}
	}

	if len(retryIDs) > 0 {
		if err := m.processor.repo.IncrementRetryCount(ctx, m.itemType, retryIDs); err != nil {
			slog.Error("Failed to schedule retry", "error", err)
		}
		metrics.OutboxItemsProcessed.WithLabelValues(string(m.itemType), "retried").Add(float64(len(retryIDs)))
	}

	if len(failIDs) > 0 {
		if err := m.processor.repo.MarkWithStatusAndError(ctx, m.itemType, failIDs, StatusInternalError, errorMessage); err != nil {
			slog.Error("Failed to mark items as failed", "error", err)
		}
		metrics.OutboxItemsProcessed.WithLabelValues(string(m.itemType), "failed").Add(float64(len(failIDs)))
	}
}
