// Package pool provides the worker pool used for background file work.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/panjf2000/ants/v2"

	tlerrors "github.com/kart-io/trackinglog/pkg/errors"
)

// Type defines the type of worker pool.
type Type string

const (
	// DefaultPool 默认通用池
	DefaultPool Type = "default"
	// BackgroundPool 后台任务池（缓存清理等）
	BackgroundPool Type = "background"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 池容量（最大并发 goroutine 数）
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration
	// PreAlloc 是否预分配内存
	PreAlloc bool
	// Nonblocking 提交任务是否非阻塞（若池满则返回错误）
	Nonblocking bool
	// MaxBlockingTasks 当 Nonblocking=false 时，最大等待任务数（0 表示无限制）
	MaxBlockingTasks int
	// PanicHandler 恐慌处理函数
	PanicHandler func(interface{})
	// Logger 诊断日志，默认使用全局 logger
	Logger core.Logger
}

// DefaultPoolConfig 返回默认池配置
func DefaultPoolConfig() *Config {
	return &Config{
		Capacity:       64,
		ExpiryDuration: 10 * time.Second,
	}
}

// BackgroundPoolConfig 返回后台任务池配置
// 清理任务不应丢失，因此提交会阻塞等待空闲 worker
func BackgroundPoolConfig() *Config {
	return &Config{
		Capacity:       8,
		ExpiryDuration: 60 * time.Second,
	}
}

// Pool represents a worker pool.
type Pool struct {
	name     string
	typ      Type
	pool     *ants.Pool
	config   *Config
	log      core.Logger
	stats    poolStatsCounter
	closed   atomic.Bool
	closedMu sync.Mutex
}

// poolStatsCounter 内部统计计数器
type poolStatsCounter struct {
	SubmittedTasks atomic.Int64
	CompletedTasks atomic.Int64
	FailedTasks    atomic.Int64
	RejectedTasks  atomic.Int64
	PanicRecovered atomic.Int64
}

// Stats contains statistics about the worker pool.
type Stats struct {
	SubmittedTasks int64 // 已提交任务数
	CompletedTasks int64 // 已完成任务数
	FailedTasks    int64 // 失败任务数
	RejectedTasks  int64 // 拒绝任务数
	PanicRecovered int64 // 恢复的 panic 数
}

// antsLogger 将 core.Logger 适配为 ants.Logger
type antsLogger struct {
	log core.Logger
}

func (l antsLogger) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

// New creates a new worker pool with the given configuration.
func New(name string, typ Type, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Capacity <= 0 {
		return nil, tlerrors.ErrInvalidConfig.WithMessagef("pool %q capacity must be positive", name)
	}

	p := &Pool{
		name:   name,
		typ:    typ,
		config: config,
		log:    config.Logger,
	}
	if p.log == nil {
		p.log = logger.Global().With("component", "pool")
	}

	pool, err := ants.NewPool(config.Capacity, p.antsOptions()...)
	if err != nil {
		return nil, tlerrors.ErrInvalidConfig.WithMessagef("create pool %q", name).WithCause(err)
	}
	p.pool = pool

	p.log.Debugw("Worker pool created",
		"name", name,
		"type", typ,
		"capacity", config.Capacity,
	)
	return p, nil
}

// antsOptions 构建 ants 池选项
func (p *Pool) antsOptions() []ants.Option {
	opts := []ants.Option{
		ants.WithExpiryDuration(p.config.ExpiryDuration),
		ants.WithPreAlloc(p.config.PreAlloc),
		ants.WithNonblocking(p.config.Nonblocking),
		ants.WithMaxBlockingTasks(p.config.MaxBlockingTasks),
		ants.WithLogger(antsLogger{log: p.log}),
	}

	if p.config.PanicHandler != nil {
		opts = append(opts, ants.WithPanicHandler(p.config.PanicHandler))
	} else {
		// 默认 panic 处理
		opts = append(opts, ants.WithPanicHandler(func(v interface{}) {
			p.log.Errorw("Worker panic recovered", "pool", p.name, "panic", v)
		}))
	}
	return opts
}

// Name 返回池名称
func (p *Pool) Name() string { return p.name }

// Type 返回池类型
func (p *Pool) Type() Type { return p.typ }

// Cap 返回池容量
func (p *Pool) Cap() int { return p.pool.Cap() }

// Running 返回正在运行的 goroutine 数量
func (p *Pool) Running() int { return p.pool.Running() }

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return tlerrors.ErrPoolClosed.WithMessagef("pool %q is closed", p.name)
	}

	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.stats.PanicRecovered.Add(1)
				p.stats.FailedTasks.Add(1)
				// 交给 ants PanicHandler 处理
				panic(r)
			}
			p.stats.CompletedTasks.Add(1)
		}()
		task()
	})
	switch {
	case err == nil:
		p.stats.SubmittedTasks.Add(1)
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.stats.RejectedTasks.Add(1)
		return tlerrors.ErrPoolOverload.WithCause(err)
	case errors.Is(err, ants.ErrPoolClosed):
		return tlerrors.ErrPoolClosed.WithCause(err)
	default:
		p.stats.FailedTasks.Add(1)
		return err
	}
}

// SubmitWithContext 提交带上下文的任务
// 如果上下文在任务开始前取消，任务不会执行
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Submit(func() {
		if ctx.Err() != nil {
			return
		}
		task()
	})
}

// Release 关闭池并释放资源
func (p *Pool) Release() {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Swap(true) {
		return
	}
	p.pool.Release()
	p.log.Debugw("Worker pool released", "name", p.name)
}

// ReleaseTimeout 带超时关闭池，等待任务完成直到超时
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		SubmittedTasks: p.stats.SubmittedTasks.Load(),
		CompletedTasks: p.stats.CompletedTasks.Load(),
		FailedTasks:    p.stats.FailedTasks.Load(),
		RejectedTasks:  p.stats.RejectedTasks.Load(),
		PanicRecovered: p.stats.PanicRecovered.Load(),
	}
}
