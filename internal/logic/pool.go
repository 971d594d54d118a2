package logic

import (
	"math/big"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// fundingPool 单个项目的出资账本
//
// 完成募集前 balance 等于所有有效出资之和；完成后出资记录冻结，balance 清零。
type fundingPool struct {
	projectId     common.Hash
	contributions map[common.Address]*model.Contribution
	suppliers     []common.Address // 按首次出资顺序
	balance       *big.Int
	nextIndex     uint64
}

func newFundingPool(projectId common.Hash) *fundingPool {
	return &fundingPool{
		projectId:     projectId,
		contributions: make(map[common.Address]*model.Contribution),
		balance:       new(big.Int),
	}
}

// projected 本次出资后的累计金额
func (p *fundingPool) projected(amount *big.Int) *big.Int {
	return new(big.Int).Add(p.balance, amount)
}

// add 新增或累加出资
func (p *fundingPool) add(supplier common.Address, amount *big.Int) *model.Contribution {
	c, ok := p.contributions[supplier]
	if !ok {
		c = &model.Contribution{
			ProjectId: p.projectId,
			Supplier:  supplier,
			Amount:    new(big.Int),
			Index:     p.nextIndex,
		}
		p.nextIndex++
		p.contributions[supplier] = c
		p.suppliers = append(p.suppliers, supplier)
	}

	c.Amount.Add(c.Amount, amount)
	p.balance.Add(p.balance, amount)
	return c
}

// contribution 有效出资记录
func (p *fundingPool) contribution(supplier common.Address) (*model.Contribution, bool) {
	c, ok := p.contributions[supplier]
	return c, ok
}

// remove 删除出资记录并把出资人移出名单
func (p *fundingPool) remove(supplier common.Address) *model.Contribution {
	c, ok := p.contributions[supplier]
	if !ok {
		return nil
	}

	delete(p.contributions, supplier)
	for i, s := range p.suppliers {
		if s == supplier {
			p.suppliers = append(p.suppliers[:i:i], p.suppliers[i+1:]...)
			break
		}
	}
	p.balance.Sub(p.balance, c.Amount)
	return c
}

// electors 冻结当前出资人集合及其权重
func (p *fundingPool) electors() []model.Elector {
	out := make([]model.Elector, 0, len(p.suppliers))
	for _, s := range p.suppliers {
		out = append(out, model.Elector{
			Address: s,
			Weight:  new(big.Int).Set(p.contributions[s].Amount),
		})
	}
	return out
}

// total 所有有效出资之和
func (p *fundingPool) total() *big.Int {
	sum := new(big.Int)
	for _, c := range p.contributions {
		sum.Add(sum, c.Amount)
	}
	return sum
}

// list 按出资人顺序返回出资记录副本
func (p *fundingPool) list() []model.Contribution {
	out := make([]model.Contribution, 0, len(p.suppliers))
	for _, s := range p.suppliers {
		out = append(out, p.contributions[s].Clone())
	}
	return out
}

// finalize 资金转入策略实例后清空待定余额
func (p *fundingPool) finalize() {
	p.balance = new(big.Int)
}

// snapshot 深拷贝，转账失败时用于回滚
func (p *fundingPool) snapshot() *fundingPool {
	c := &fundingPool{
		projectId:     p.projectId,
		contributions: make(map[common.Address]*model.Contribution, len(p.contributions)),
		suppliers:     append([]common.Address(nil), p.suppliers...),
		balance:       new(big.Int).Set(p.balance),
		nextIndex:     p.nextIndex,
	}
	for k, v := range p.contributions {
		cc := v.Clone()
		c.contributions[k] = &cc
	}
	return c
}

func (p *fundingPool) restore(snap *fundingPool) {
	*p = *snap
}
