package market

import "marketsim.com/pkg/xerr"

// 拒单哨兵，返回的错误用 %w 包一层细节，调用方用 errors.Is 判断
var (
	ErrInvalidOrder    = xerr.NewErrCode(xerr.InvalidOrder)
	ErrSpreadViolation = xerr.NewErrCode(xerr.SpreadViolation)
)
