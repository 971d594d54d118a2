package capability

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// StaticGate 内存中的角色表
//
// 没有配置资格名单的角色对任何账户都有资格；佩戴者总是有资格。
type StaticGate struct {
	mu       sync.RWMutex
	wearers  map[string]map[common.Address]bool
	eligible map[string]map[common.Address]bool
}

// NewStaticGate 创建空的角色表
func NewStaticGate() *StaticGate {
	return &StaticGate{
		wearers:  make(map[string]map[common.Address]bool),
		eligible: make(map[string]map[common.Address]bool),
	}
}

// NewStaticGateFromConfig 从配置构建角色表，key 为角色ID字符串
func NewStaticGateFromConfig(wearers, eligible map[string][]string) (*StaticGate, error) {
	g := NewStaticGate()
	for roleStr, accounts := range wearers {
		role, err := ParseRoleId(roleStr)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("role %s: invalid wearer address %q", roleStr, a)
			}
			g.Grant(role, common.HexToAddress(a))
		}
	}
	for roleStr, accounts := range eligible {
		role, err := ParseRoleId(roleStr)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("role %s: invalid eligible address %q", roleStr, a)
			}
			g.AllowEligible(role, common.HexToAddress(a))
		}
	}
	return g, nil
}

// Grant 授予角色
func (g *StaticGate) Grant(role *big.Int, account common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set(g.wearers, role.String())[account] = true
}

// AllowEligible 加入资格名单
func (g *StaticGate) AllowEligible(role *big.Int, account common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set(g.eligible, role.String())[account] = true
}

func (g *StaticGate) IsWearer(_ context.Context, account common.Address, role *big.Int) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.wearers[role.String()][account], nil
}

func (g *StaticGate) IsEligible(_ context.Context, account common.Address, role *big.Int) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.eligibleLocked(role.String(), account), nil
}

func (g *StaticGate) TransferRole(_ context.Context, role *big.Int, from, to common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := role.String()
	if !g.wearers[key][from] {
		return fmt.Errorf("transfer role %s from %s: %w", key, from.Hex(), ErrNotWearer)
	}
	if g.wearers[key][to] {
		return fmt.Errorf("transfer role %s to %s: %w", key, to.Hex(), ErrWearing)
	}
	if !g.eligibleLocked(key, to) {
		return fmt.Errorf("transfer role %s to %s: %w", key, to.Hex(), ErrNotEligible)
	}

	delete(g.wearers[key], from)
	g.wearers[key][to] = true
	return nil
}

func (g *StaticGate) eligibleLocked(key string, account common.Address) bool {
	if g.wearers[key][account] {
		return true
	}
	list, ok := g.eligible[key]
	if !ok || len(list) == 0 {
		return true
	}
	return list[account]
}

func set(m map[string]map[common.Address]bool, key string) map[common.Address]bool {
	s, ok := m[key]
	if !ok {
		s = make(map[common.Address]bool)
		m[key] = s
	}
	return s
}
