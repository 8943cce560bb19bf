// Package events 提供写入后的派生状态钩子。
//
// 业务写操作成功后发布事件，订阅者（连胜重算、目标进度重算、积分发放）在后台执行。
// 同一用户的事件按发布顺序逐个处理，后发布的重算总是最后写入。
// 订阅者的错误只记录日志与指标，永远不会回传给发布方。
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Kind 标识事件类型
type Kind string

const (
	// HabitEntryWritten 在打卡记录创建、更新、删除后发布
	HabitEntryWritten Kind = "habit_entry.written"
	// TaskChanged 在任务的完成状态、归档状态或目标关联变化后发布
	TaskChanged Kind = "task.changed"
)

// Event 携带订阅者重算派生状态所需的最少信息
type Event struct {
	Kind    Kind
	UserID  string
	HabitID string
	TaskID  string
	// GoalIDs 是需要重算进度的目标，关联变更时同时包含新旧目标
	GoalIDs []string
	// CompletionChange 为 +1 表示从未完成变为完成，-1 表示撤销完成，0 表示未变化
	CompletionChange int
}

// Handler 处理单个事件，返回的错误仅用于日志与指标
type Handler func(ctx context.Context, evt Event) error

// Observer 接收每次订阅者执行的结果，用于指标统计
type Observer func(kind Kind, handler string, err error)

type subscription struct {
	name    string
	handler Handler
}

type job struct {
	ctx  context.Context
	evt  Event
	subs []subscription
}

// lane 是某个用户的待处理队列，由单个 goroutine 依次消费
type lane struct {
	queue []job
}

// orderKey 决定哪些事件需要串行处理
func (e Event) orderKey() string {
	return e.UserID
}

// Bus 是进程内的事件总线
type Bus struct {
	mu       sync.RWMutex
	subs     map[Kind][]subscription
	log      logrus.FieldLogger
	observer Observer
	sync     bool
	wg       sync.WaitGroup

	laneMu sync.Mutex
	lanes  map[string]*lane
}

// Option 调整 Bus 行为
type Option func(*Bus)

// WithSynchronous 让订阅者在 Publish 调用内依次执行，测试中用于获得确定性结果
func WithSynchronous() Option {
	return func(b *Bus) { b.sync = true }
}

// WithObserver 注册执行结果观察者
func WithObserver(observer Observer) Option {
	return func(b *Bus) { b.observer = observer }
}

// NewBus 构造事件总线
func NewBus(log logrus.FieldLogger, opts ...Option) *Bus {
	b := &Bus{subs: make(map[Kind][]subscription), lanes: make(map[string]*lane), log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe 为某类事件注册具名订阅者
func (b *Bus) Subscribe(kind Kind, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], subscription{name: name, handler: handler})
}

// Publish 分发事件。异步模式下订阅者运行在脱离请求取消的后台 goroutine 中，
// 同一用户的事件排队执行，不同用户之间并行。
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[evt.Kind]...)
	b.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	if b.sync {
		for _, sub := range subs {
			b.run(detached, sub, evt)
		}
		return
	}

	b.wg.Add(1)
	key := evt.orderKey()
	next := job{ctx: detached, evt: evt, subs: subs}

	b.laneMu.Lock()
	if l, ok := b.lanes[key]; ok {
		l.queue = append(l.queue, next)
		b.laneMu.Unlock()
		return
	}
	l := &lane{queue: []job{next}}
	b.lanes[key] = l
	b.laneMu.Unlock()

	go b.drain(key, l)
}

// drain 依次处理队列中的事件，队列清空后退出并移除该队列
func (b *Bus) drain(key string, l *lane) {
	for {
		b.laneMu.Lock()
		if len(l.queue) == 0 {
			delete(b.lanes, key)
			b.laneMu.Unlock()
			return
		}
		current := l.queue[0]
		l.queue = l.queue[1:]
		b.laneMu.Unlock()

		for _, sub := range current.subs {
			b.run(current.ctx, sub, current.evt)
		}
		b.wg.Done()
	}
}

// Wait 等待所有在途的订阅者执行结束，用于优雅退出
func (b *Bus) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

func (b *Bus) run(ctx context.Context, sub subscription, evt Event) {
	err := safeCall(ctx, sub.handler, evt)
	if b.observer != nil {
		b.observer(evt.Kind, sub.name, err)
	}
	if err != nil && b.log != nil {
		b.log.WithFields(logrus.Fields{
			"event":    string(evt.Kind),
			"handler":  sub.name,
			"user_id":  evt.UserID,
			"habit_id": evt.HabitID,
			"task_id":  evt.TaskID,
		}).WithError(err).Warn("derived state update failed")
	}
}

func safeCall(ctx context.Context, handler Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, evt)
}
