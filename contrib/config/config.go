package config

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nilandasd/httpproxy/contrib/log"
)

// Observer is config observer.
type Observer[T any] func(string, *T)

// Config is a config interface.
type Config[T any] interface {
	Scan(v *T) error
	Watch(key string, o Observer[T]) error
	Close() error
}

type config[T any] struct {
	opts   *options
	stop   chan struct{}
	signal chan os.Signal

	mu        sync.Mutex
	observers map[string][]Observer[T]
	watchers  []Watcher
	bc        *T
}

func New[T any](opts ...Option) Config[T] {
	o := &options{}

	for _, opt := range opts {
		opt(o)
	}

	c := &config[T]{
		opts:      o,
		stop:      make(chan struct{}, 1),
		signal:    make(chan os.Signal, 1),
		observers: make(map[string][]Observer[T]),
	}

	go c.tick()

	for _, source := range o.sources {
		w, err := source.Watch()
		if err != nil || w == nil {
			continue
		}
		c.watchers = append(c.watchers, w)
		go c.watch(w)
	}

	return c
}

func (c *config[T]) Scan(v *T) error {
	c.mu.Lock()
	c.bc = v
	c.mu.Unlock()

	for _, source := range c.opts.sources {
		files, err := source.Load()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("config file not found: %w", err)
			}
			return err
		}
		for _, file := range files {
			if file.Value == nil {
				continue
			}
			unmarshal := toUnmarshal(file.Format)
			log.Debugf("[config] load file: %s format: %s", file.Key, file.Format)
			if err1 := unmarshal(file.Value, v); err1 != nil {
				return fmt.Errorf("[config] unmarshal file %s: %w", file.Key, err1)
			}
		}
	}
	return nil
}

func (c *config[T]) Watch(key string, o Observer[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.observers[key] == nil {
		c.observers[key] = make([]Observer[T], 0, 8)
	}
	c.observers[key] = append(c.observers[key], o)
	return nil
}

func (c *config[T]) Close() error {
	for _, w := range c.watchers {
		_ = w.Stop()
	}
	c.stop <- struct{}{}
	close(c.stop)

	return nil
}

// tick rescans every source on SIGHUP until Close is called.
func (c *config[T]) tick() {
	signal.Notify(c.signal, syscall.SIGHUP)

	for {
		select {
		case <-c.stop:
			signal.Stop(c.signal)
			return
		case <-c.signal:
			log.Debug("[config] received SIGHUP")
			c.rescan()
		}
	}
}

// watch rescans when a source reports a change.
func (c *config[T]) watch(w Watcher) {
	for {
		if _, err := w.Next(); err != nil {
			return
		}
		log.Debug("[config] source changed")
		c.rescan()
	}
}

func (c *config[T]) rescan() {
	c.mu.Lock()
	bc := c.bc
	c.mu.Unlock()

	if bc == nil {
		return
	}
	if err := c.Scan(bc); err != nil {
		log.Errorf("[config] rescan: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, observers := range c.observers {
		log.Debugf("[config] upgrade key: %s", k)
		for _, observer := range observers {
			observer(k, bc)
		}
	}
}
