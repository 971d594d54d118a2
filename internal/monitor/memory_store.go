package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
)

// MemoryDepositStore 未启用数据库时的内存去重存储，重启后从部署区块重新扫描
type MemoryDepositStore struct {
	mu        sync.Mutex
	seen      map[string]bool
	deposits  []model.DepositModel
	lastBlock map[string]int64
}

func NewMemoryDepositStore() *MemoryDepositStore {
	return &MemoryDepositStore{
		seen:      make(map[string]bool),
		lastBlock: make(map[string]int64),
	}
}

func (s *MemoryDepositStore) Record(_ context.Context, deposit *model.DepositModel) (bool, error) {
	key := fmt.Sprintf("%s#%d", deposit.TxHash, deposit.LogIndex)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.deposits = append(s.deposits, *deposit)
	if deposit.BlockNum > s.lastBlock[deposit.ContractAddress] {
		s.lastBlock[deposit.ContractAddress] = deposit.BlockNum
	}
	return true, nil
}

func (s *MemoryDepositStore) LastBlock(_ context.Context, contractAddress string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBlock[contractAddress], nil
}

func (s *MemoryDepositStore) Each(_ context.Context, fn func(model.DepositModel) error) error {
	s.mu.Lock()
	deposits := append([]model.DepositModel(nil), s.deposits...)
	s.mu.Unlock()

	for _, deposit := range deposits {
		if err := fn(deposit); err != nil {
			return err
		}
	}
	return nil
}
