// Package pool is a typed wrapper around sync.Pool with an optional resetter
// applied before an item returns to the pool.
package pool

import (
	"sync"
)

type Pool[T any] struct {
	p        sync.Pool
	resetter func(*T)
}

func New[T any](constructor func() T) *Pool[T] {
	return NewWithResetter(constructor, nil)
}

func NewWithResetter[T any](constructor func() T, resetter func(*T)) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() interface{} {
				return constructor()
			},
		},
		resetter: resetter,
	}
}

func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

// ResetAndPut applies the resetter before returning the item to the pool.
func (p *Pool[T]) ResetAndPut(v T) {
	if p.resetter != nil {
		p.resetter(&v)
	}
	p.Put(v)
}

func (p *Pool[T]) Put(v T) {
	p.p.Put(v)
}
