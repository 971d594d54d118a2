package capability

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotWearer   = errors.New("account does not wear the role")
	ErrNotEligible = errors.New("account is not eligible for the role")
	ErrWearing     = errors.New("account already wears the role")
)

// Gate 权限网关
type Gate interface {
	IsEligible(ctx context.Context, account common.Address, role *big.Int) (bool, error)
	IsWearer(ctx context.Context, account common.Address, role *big.Int) (bool, error)
	TransferRole(ctx context.Context, role *big.Int, from, to common.Address) error
}

// ParseRoleId 解析角色ID，支持十进制和0x前缀的十六进制
func ParseRoleId(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, ok := new(big.Int).SetString(s, 0)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid role id %q", s)
	}
	return id, nil
}
