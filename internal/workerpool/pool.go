package workerpool

import (
	"sync"
	"time"

	"market-system/internal/logger"
	"market-system/internal/metrics"
)

// DefaultKeepAlive время простоя, после которого лишний воркер завершается
const DefaultKeepAlive = 120 * time.Second

// Task единица работы пула
type Task func()

// Config параметры пула
type Config struct {
	CoreWorkers int           // воркеры, которые живут всегда
	MaxWorkers  int           // потолок одновременно работающих воркеров
	KeepAlive   time.Duration // простой воркера сверх CoreWorkers до остановки
}

// Pool пул воркеров без очереди.
// Задача передаётся свободному воркеру из рук в руки; если свободного нет и
// потолок достигнут, задача отбрасывается.
type Pool struct {
	cfg     Config
	tasks   chan Task
	quit    chan struct{}
	log     *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	workers int
	closed  bool
	wg      sync.WaitGroup
}

// New создаёт пул. Воркеры запускаются лениво, по мере поступления задач.
func New(cfg Config, log *logger.Logger, m *metrics.Metrics) *Pool {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.CoreWorkers < 0 {
		cfg.CoreWorkers = 0
	}
	if cfg.CoreWorkers > cfg.MaxWorkers {
		cfg.CoreWorkers = cfg.MaxWorkers
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}

	return &Pool{
		cfg:     cfg,
		tasks:   make(chan Task),
		quit:    make(chan struct{}),
		log:     log,
		metrics: m,
	}
}

// Submit передаёт задачу воркеру и никогда не блокируется.
// Возвращает false, если задача отброшена. Отброшенная задача не повторяется.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		p.metrics.PoolAdmitted()
		return true
	default:
	}

	p.mu.Lock()
	if p.closed || p.workers >= p.cfg.MaxWorkers {
		p.mu.Unlock()
		p.metrics.PoolDropped()
		return false
	}
	p.workers++
	workers := p.workers
	p.wg.Add(1)
	p.mu.Unlock()

	p.metrics.PoolWorkers(workers)
	p.metrics.PoolAdmitted()
	go p.worker(task)
	return true
}

// Workers возвращает число живых воркеров
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Close останавливает воркеров и ждёт завершения выполняемых задач
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(first Task) {
	defer p.wg.Done()

	p.run(first)

	idle := time.NewTimer(p.cfg.KeepAlive)
	defer idle.Stop()

	for {
		select {
		case task := <-p.tasks:
			p.run(task)
			idle.Reset(p.cfg.KeepAlive)
		case <-idle.C:
			if p.retire() {
				return
			}
			idle.Reset(p.cfg.KeepAlive)
		case <-p.quit:
			p.mu.Lock()
			p.workers--
			p.mu.Unlock()
			return
		}
	}
}

// retire завершает воркера, если он лишний сверх CoreWorkers
func (p *Pool) retire() bool {
	p.mu.Lock()
	if p.workers <= p.cfg.CoreWorkers {
		p.mu.Unlock()
		return false
	}
	p.workers--
	workers := p.workers
	p.mu.Unlock()

	p.metrics.PoolWorkers(workers)
	if p.log != nil {
		p.log.WithField("workers", workers).Debug("Idle seize worker stopped")
	}
	return true
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil && p.log != nil {
			p.log.WithField("panic", r).Error("Seize task panicked")
		}
	}()
	task()
}
