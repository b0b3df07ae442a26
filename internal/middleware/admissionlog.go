package middleware

import (
	"context"
	"time"

	"github.com/aman-churiwal/governance-api/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	admissionBatchSize  = 100
	admissionFlushEvery = 5 * time.Second
)

// AdmissionLogWriter persists batches of rejected admissions.
type AdmissionLogWriter interface {
	CreateBatch(ctx context.Context, logs []models.AdmissionLog) error
}

// AdmissionLogger queues rejected admissions and batch-inserts them from a
// background worker. A full queue drops entries rather than block a request.
type AdmissionLogger struct {
	writer     AdmissionLogWriter
	entries    chan models.AdmissionLog
	flushEvery time.Duration
	log        *logrus.Logger
	done       chan struct{}
}

func NewAdmissionLogger(writer AdmissionLogWriter, bufferSize int, log *logrus.Logger) *AdmissionLogger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &AdmissionLogger{
		writer:     writer,
		entries:    make(chan models.AdmissionLog, bufferSize),
		flushEvery: admissionFlushEvery,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Start runs the worker until ctx is done, then flushes what is queued.
func (a *AdmissionLogger) Start(ctx context.Context) {
	go func() {
		defer close(a.done)

		batch := make([]models.AdmissionLog, 0, admissionBatchSize)
		ticker := time.NewTicker(a.flushEvery)
		defer ticker.Stop()

		for {
			select {
			case entry := <-a.entries:
				batch = append(batch, entry)

				// Insert when batch is full
				if len(batch) >= admissionBatchSize {
					batch = a.flush(batch)
				}
			case <-ticker.C:
				batch = a.flush(batch)
			case <-ctx.Done():
				for {
					select {
					case entry := <-a.entries:
						batch = append(batch, entry)
					default:
						a.flush(batch)
						return
					}
				}
			}
		}
	}()
}

// Wait blocks until the worker has flushed and exited.
func (a *AdmissionLogger) Wait() {
	<-a.done
}

func (a *AdmissionLogger) flush(batch []models.AdmissionLog) []models.AdmissionLog {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.writer.CreateBatch(ctx, batch); err != nil {
		// Log error but dont block
		a.log.WithFields(logrus.Fields{
			"entries": len(batch),
			"error":   err.Error(),
		}).Warn("Failed to insert admission logs")
	}
	return make([]models.AdmissionLog, 0, admissionBatchSize)
}

// Record queues one entry without blocking.
func (a *AdmissionLogger) Record(entry models.AdmissionLog) {
	select {
	case a.entries <- entry:
	default:
		a.log.Debug("Admission log queue full, dropping entry")
	}
}

// Middleware records requests a later layer rejected.
func (a *AdmissionLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		layer := c.GetString(ContextRejectedLayer)
		if layer == "" {
			return
		}

		a.Record(models.AdmissionLog{
			Timestamp:  start.UTC(),
			RequestID:  c.GetString(ContextRequestID),
			UserID:     c.GetString(ContextUserID),
			Identity:   RateLimitIdentity(c),
			Layer:      layer,
			Code:       c.GetString(ContextRejectedCode),
			Method:     c.Request.Method,
			Path:       c.FullPath(),
			StatusCode: c.Writer.Status(),
			IPAddress:  c.ClientIP(),
		})
	}
}
