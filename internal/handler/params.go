package handler

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

// CallerHeader 调用者地址请求头
const CallerHeader = "X-Caller-Address"

var (
	errMissingCaller  = errors.New("缺少或无效的调用者地址")
	errInvalidId      = errors.New("无效的项目ID")
	errInvalidAddress = errors.New("无效的地址")
	errInvalidAmount  = errors.New("无效的金额")
	errInvalidIndex   = errors.New("无效的里程碑序号")
	errInvalidPaging  = errors.New("无效的分页参数")
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func callerOf(c *gin.Context) (common.Address, error) {
	return parseAddress(c.GetHeader(CallerHeader), errMissingCaller)
}

func projectIdOf(c *gin.Context) (common.Hash, error) {
	b, err := hexutil.Decode(c.Param("id"))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errInvalidId
	}
	return common.BytesToHash(b), nil
}

func indexOf(c *gin.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return 0, errInvalidIndex
	}
	return index, nil
}

func parseAddress(raw string, fail error) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fail
	}
	return common.HexToAddress(raw), nil
}

// parseAmount 十进制整数字符串，空字符串返回 nil
func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errInvalidAmount
	}
	return v, nil
}

// eventPageOf 解析 ?after=&limit=
func eventPageOf(c *gin.Context) (uint64, int, error) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		return 0, 0, errInvalidPaging
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventLimit)))
	if err != nil || limit <= 0 {
		return 0, 0, errInvalidPaging
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	return after, limit, nil
}
