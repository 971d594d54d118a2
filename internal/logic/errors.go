package logic

import (
	"errors"
)

// 错误分类，所有具体错误都归属其中之一
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrStateConflict = errors.New("state conflict")
	ErrResource      = errors.New("resource error")
	ErrNotFound      = errors.New("not found")
)

// LedgerError 带分类和错误码的业务错误
type LedgerError struct {
	kind    error
	code    string
	message string
}

func newError(kind error, code, message string) *LedgerError {
	return &LedgerError{kind: kind, code: code, message: message}
}

func (e *LedgerError) Error() string {
	return e.message
}

// Is 使 errors.Is(err, ErrStateConflict) 等分类判断成立
func (e *LedgerError) Is(target error) bool {
	return target == e.kind
}

// Kind 错误分类
func (e *LedgerError) Kind() error {
	return e.kind
}

// Code 稳定的机器可读错误码
func (e *LedgerError) Code() string {
	return e.code
}

// ValidationError
var (
	ErrInvalidThreshold   = newError(ErrValidation, "invalid_threshold", "目标金额必须大于0")
	ErrInvalidAmount      = newError(ErrValidation, "invalid_amount", "金额必须大于0")
	ErrInvalidRecipient   = newError(ErrValidation, "invalid_recipient", "受益人地址不能为空")
	ErrInvalidSeed        = newError(ErrValidation, "invalid_seed", "项目种子不能为负数")
	ErrInvalidMilestones  = newError(ErrValidation, "invalid_milestones", "里程碑列表为空或百分比不合法")
	ErrPercentageOverflow = newError(ErrValidation, "percentage_overflow", "里程碑百分比之和超过100%")
	ErrIndexOutOfRange    = newError(ErrValidation, "index_out_of_range", "里程碑序号超出范围")
	ErrInvalidDecision    = newError(ErrValidation, "invalid_decision", "投票决定不合法")
	ErrRoleNotConfigured  = newError(ErrValidation, "role_not_configured", "未配置注册角色")
)

// AuthorizationError
var (
	ErrNotRecipient     = newError(ErrAuthorization, "not_recipient", "调用者不是项目受益人")
	ErrNotAnElector     = newError(ErrAuthorization, "not_an_elector", "调用者不是投票人")
	ErrCapabilityDenied = newError(ErrAuthorization, "capability_denied", "权限网关拒绝")
	ErrReservedAccount  = newError(ErrAuthorization, "reserved_account", "资金池和策略实例账户不能作为调用者")
)

// StateConflictError
var (
	ErrPoolAlreadyFinalized  = newError(ErrStateConflict, "pool_already_finalized", "资金池已完成募集")
	ErrPoolNotFinalized      = newError(ErrStateConflict, "pool_not_finalized", "资金池尚未完成募集")
	ErrNothingToRevoke       = newError(ErrStateConflict, "nothing_to_revoke", "没有可撤回的出资")
	ErrInvalidMilestoneState = newError(ErrStateConflict, "invalid_milestone_state", "里程碑状态不允许此操作")
	ErrAlreadyVoted          = newError(ErrStateConflict, "already_voted", "已经投过相同的票")
	ErrNoOfferedMilestones   = newError(ErrStateConflict, "no_offered_milestones", "没有待审核的里程碑")
	ErrNoElectors            = newError(ErrStateConflict, "no_electors", "投票人集合为空")
	ErrNothingToRefund       = newError(ErrStateConflict, "nothing_to_refund", "没有可领取的退款")
	ErrOperationInProgress   = newError(ErrStateConflict, "operation_in_progress", "项目有正在进行的操作，请稍后重试")
	ErrInsufficientFunds     = newError(ErrStateConflict, "insufficient_funds", "账户余额不足")
)

// NotFound
var (
	ErrProjectNotFound  = newError(ErrNotFound, "project_not_found", "项目不存在")
	ErrSupplierNotFound = newError(ErrNotFound, "supplier_not_found", "出资人不存在")
)

// ResourceError
var (
	ErrProjectIdCollision = newError(ErrResource, "project_id_collision", "项目ID冲突")
	ErrInsufficientEscrow = newError(ErrResource, "insufficient_escrow", "托管余额不足，账本不变量被破坏")
	ErrTransferFailed     = newError(ErrResource, "transfer_failed", "转账失败")
)

// AsLedgerError 取出错误链中的业务错误
func AsLedgerError(err error) (*LedgerError, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
