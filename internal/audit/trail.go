package audit

/*
Файл trail.go реализует трейл координационных событий — асинхронный
сборщик истории очереди и почтового ящика.

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят в буферизованный канал, задержки
  записи в БД не влияют на Response Time хендлеров.
- Batching: накопление в памяти и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита пачки.
- Drain Pattern & Graceful Shutdown: при остановке канал закрывается,
  воркер вычитывает остатки и делает финальный flush — события при
  перезапуске консоли не теряются.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

type Recorder interface {
	Record(event Event)
}

type Trail struct {
	ch            chan Event       // Буфер для асинхронности
	repo          StorageInterface // Интерфейс для Postgres
	logger        *zap.Logger
	wg            sync.WaitGroup
	batchSize     int
	flushInterval time.Duration
	bufferFill    prometheus.Gauge // Заполненность канала (backpressure), опционально
	// Защита от записи после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewTrail(repo StorageInterface, logger *zap.Logger, bufferSize, batchSize int, flushInterval time.Duration) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:            make(chan Event, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "trail")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// WithBufferGauge подключает метрику заполненности буфера.
func (t *Trail) WithBufferGauge(g prometheus.Gauge) *Trail {
	t.bufferFill = g
	return t
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера — через закрытие входного канала
	t.logger.Info("stopping trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("trail stopped gracefully")
}

func (t *Trail) Record(event Event) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("event dropped: trail is stopping", zap.String("kind", event.Kind))
		return
	}

	// Load Shedding: переполненный буфер не должен блокировать хендлеры
	select {
	case t.ch <- event:
		if t.bufferFill != nil {
			t.bufferFill.Set(float64(len(t.ch)))
		}
	default:
		t.logger.Error("trail_buffer_overflow",
			zap.String("agent_id", event.AgentID),
			zap.String("kind", event.Kind),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к этому моменту может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("trail flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки, финальный flush и выход
				flush()
				t.logger.Info("trail worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
