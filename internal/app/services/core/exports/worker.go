package exports

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/services/shared/exportqueue"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/utils"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval  = time.Second
	defaultMaxDeliveries = 5
	defaultJobLockTTL    = 5 * time.Minute
)

// JobConsumer is the part of the export queue the worker drives.
type JobConsumer interface {
	FetchN(ctx context.Context, in *exportqueue.FetchNInput) (*exportqueue.FetchNOutput, error)
	AckMessage(ctx context.Context, in *exportqueue.AckMessageInput) (*exportqueue.AckMessageOutput, error)
	Reenqueue(ctx context.Context, in *exportqueue.ReenqueueInput) (*exportqueue.ReenqueueOutput, error)
	EnqueueToDeadQueue(ctx context.Context, in *exportqueue.EnqueueToDLQInput) (*exportqueue.EnqueueToDLQOutput, error)
}

// TenantLimiter caps how many jobs a tenant may start per window.
type TenantLimiter interface {
	Allow(ctx context.Context, tenantID string) (bool, time.Duration, error)
}

// Worker drains the export job queue with at-least-once semantics. A job is
// acked once it reaches a terminal result that is not worth retrying;
// retryable failures go back to the tail until they exhaust their deliveries
// and land in the DLQ.
type Worker struct {
	log           *zap.Logger
	locker        contracts.LockerService
	limiter       TenantLimiter
	queue         JobConsumer
	usecase       contracts.ExportUsecase
	concurrency   int
	pollInterval  time.Duration
	maxDeliveries int
	lockTTL       time.Duration
	callTimeout   time.Duration
	stopOnce      sync.Once
	stop          chan struct{}
}

// NewWorker creates a worker. lockerSvc and limiter may be nil.
func NewWorker(log *zap.Logger, cfg *config.InternalConfig, lockerSvc contracts.LockerService, limiter TenantLimiter, queue JobConsumer, usecase contracts.ExportUsecase) *Worker {
	w := &Worker{
		log:           log,
		locker:        lockerSvc,
		limiter:       limiter,
		queue:         queue,
		usecase:       usecase,
		concurrency:   cfg.Export.WorkerConcurrency,
		pollInterval:  time.Duration(cfg.Export.WorkerPollIntervalInMills) * time.Millisecond,
		maxDeliveries: cfg.Export.JobMaxDeliveries,
		lockTTL:       time.Duration(cfg.Export.JobLockTTLInSeconds) * time.Second,
		callTimeout:   time.Duration(cfg.Export.CallTimeoutInSeconds) * time.Second,
		stop:          make(chan struct{}),
	}
	if w.concurrency <= 0 {
		w.concurrency = defaultBatchConcurrency
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.maxDeliveries <= 0 {
		w.maxDeliveries = defaultMaxDeliveries
	}
	if w.lockTTL <= 0 {
		w.lockTTL = defaultJobLockTTL
	}
	return w
}

// Start begins the polling loop. The returned stop function cancels
// in-flight jobs and waits for the loop to exit; cancelled jobs are requeued.
func (w *Worker) Start(ctx context.Context) (stop func()) {
	runCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(w.pollInterval)
	stopped := make(chan struct{})

	w.log.Info("export worker started",
		zap.Int("concurrency", w.concurrency),
		zap.Duration("poll_interval", w.pollInterval),
	)

	go func() {
		defer close(stopped)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.RunOnce(runCtx)
			}
		}
	}()

	return func() {
		w.stopOnce.Do(func() {
			close(w.stop)
			cancel()
			<-stopped
			w.log.Info("export worker stopped")
		})
	}
}

// RunOnce fetches up to concurrency jobs and processes them in parallel.
func (w *Worker) RunOnce(ctx context.Context) {
	out, err := w.queue.FetchN(ctx, &exportqueue.FetchNInput{Max: w.concurrency})
	if err != nil {
		w.log.Error("exports.worker.RunOnce error fetching jobs", zap.Error(err))
		return
	}
	if len(out.Items) == 0 {
		return
	}
	w.log.Info("exports.worker.RunOnce fetched jobs", zap.Int(constvars.LoggingCountKey, len(out.Items)))

	var group errgroup.Group
	group.SetLimit(w.concurrency)
	for _, item := range out.Items {
		item := item
		group.Go(func() error {
			w.processItem(ctx, item)
			return nil
		})
	}
	_ = group.Wait()
}

func (w *Worker) processItem(ctx context.Context, item exportqueue.QueuedItem) {
	msg := item.Message
	ctx = utils.ContextWithRequestID(ctx, msg.RequestID)
	requestID := utils.RequestIDFromContext(ctx)
	// Queue bookkeeping must finish even when the worker is stopping.
	queueCtx := context.WithoutCancel(ctx)

	if msg.FailedCount >= w.maxDeliveries {
		w.deadLetter(queueCtx, item, msg, "delivery limit reached before processing")
		return
	}

	if w.limiter != nil {
		allowed, retryAfter, err := w.allow(ctx, msg.Job.TenantID)
		switch {
		case err != nil:
			w.log.Warn("exports.worker.processItem tenant quota unavailable, running unlimited",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Error(err),
			)
		case !allowed:
			w.log.Info("exports.worker.processItem tenant quota spent, requeueing",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.String(constvars.LoggingTenantIDKey, msg.Job.TenantID),
				zap.Duration("retry_after", retryAfter),
			)
			w.requeue(queueCtx, item, msg)
			return
		}
	}

	if w.locker != nil {
		lockKey := msg.Job.LockKey()
		acquired, lockValue, err := w.tryLock(ctx, lockKey)
		switch {
		case err != nil:
			w.log.Warn("exports.worker.processItem lock unavailable, running unlocked",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Error(err),
			)
		case !acquired:
			w.log.Info("exports.worker.processItem document is being exported elsewhere, requeueing",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.String(constvars.LoggingMessageIDKey, msg.ID),
			)
			w.requeue(queueCtx, item, msg)
			return
		default:
			defer func() {
				if err := w.unlock(queueCtx, lockKey, lockValue); err != nil {
					w.log.Error("exports.worker.processItem unlock failed",
						zap.String(constvars.LoggingRequestIDKey, requestID),
						zap.Error(err),
					)
				}
			}()
		}
	}

	result := w.usecase.RunExport(ctx, &msg.Job)
	if result.Success || !result.Retryable {
		w.ack(queueCtx, item)
		utils.LogExportEvent(w.log, "queued_export_finished", requestID, result.Success,
			zap.String(constvars.LoggingMessageIDKey, msg.ID),
			zap.String(constvars.LoggingTenantIDKey, msg.Job.TenantID),
			zap.String(constvars.LoggingSourceDocumentIDKey, msg.Job.SourceDocumentID),
			zap.String(constvars.LoggingFailureKindKey, result.FailureKind),
		)
		return
	}

	msg.FailedCount++
	msg.LastError = result.Error
	if msg.FailedCount >= w.maxDeliveries {
		w.deadLetter(queueCtx, item, msg, "retryable failure exhausted deliveries")
		return
	}
	w.requeue(queueCtx, item, msg)
}

func (w *Worker) allow(ctx context.Context, tenantID string) (bool, time.Duration, error) {
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	return w.limiter.Allow(callCtx, tenantID)
}

func (w *Worker) tryLock(ctx context.Context, lockKey string) (bool, string, error) {
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	return w.locker.TryLock(callCtx, lockKey, w.lockTTL)
}

func (w *Worker) unlock(ctx context.Context, lockKey, lockValue string) error {
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	return w.locker.Unlock(callCtx, lockKey, lockValue)
}

// callContext bounds one Redis or broker call by the per-call timeout.
func (w *Worker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, w.callTimeout)
}

func (w *Worker) requeue(ctx context.Context, item exportqueue.QueuedItem, msg exportqueue.ExportJobMessage) {
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	if _, err := w.queue.Reenqueue(callCtx, &exportqueue.ReenqueueInput{Message: msg}); err != nil {
		w.log.Error("exports.worker.requeue failed, leaving delivery unacked",
			zap.String(constvars.LoggingMessageIDKey, msg.ID),
			zap.Error(err),
		)
		return
	}
	w.ack(ctx, item)
	w.log.Info("exports.worker.requeue job returned to queue tail",
		zap.String(constvars.LoggingMessageIDKey, msg.ID),
		zap.Int("failed_count", msg.FailedCount),
	)
}

func (w *Worker) deadLetter(ctx context.Context, item exportqueue.QueuedItem, msg exportqueue.ExportJobMessage, reason string) {
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	if _, err := w.queue.EnqueueToDeadQueue(callCtx, &exportqueue.EnqueueToDLQInput{Message: msg}); err != nil {
		w.log.Error("exports.worker.deadLetter failed, leaving delivery unacked",
			zap.String(constvars.LoggingMessageIDKey, msg.ID),
			zap.Error(err),
		)
		return
	}
	w.ack(ctx, item)
	w.log.Warn("exports.worker.deadLetter moved job to DLQ",
		zap.String(constvars.LoggingMessageIDKey, msg.ID),
		zap.Int("failed_count", msg.FailedCount),
		zap.String("reason", reason),
	)
}

func (w *Worker) ack(ctx context.Context, item exportqueue.QueuedItem) {
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	if _, err := w.queue.AckMessage(callCtx, &exportqueue.AckMessageInput{DeliveryTag: item.DeliveryTag}); err != nil {
		w.log.Error("exports.worker.ack failed",
			zap.Uint64(constvars.LoggingDeliveryTagKey, item.DeliveryTag),
			zap.Error(err),
		)
	}
}
