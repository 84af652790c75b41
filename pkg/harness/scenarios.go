package harness

import (
	"fmt"
	"math/big"

	"github.com/84hero/fundme/pkg/fundme"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

type scenario struct {
	group string
	name  string
	run   func(t *T) error
}

func (s scenario) title() string { return "FundMe " + s.group + " " + s.name }

var sendValue = big.NewInt(params.Ether)

var scenarios = []scenario{
	{"constructor", "sets the aggregator addresses correctly", constructorSetsPriceFeed},
	{"fund", "fails if you don't send enough ETH", fundBelowMinimum},
	{"fund", "updates the amount funded data structure", fundUpdatesAmount},
	{"fund", "adds funder to array of funders", fundAddsFunder},
	{"withdraw", "withdraws ETH from a single funder", withdrawSingleFunder},
	{"withdraw", "allows us to withdraw with multiple funders", withdrawMultipleFunders},
	{"withdraw", "only allows the owner to withdraw", onlyOwnerWithdraws},
	{"withdraw", "cheaperWithdraw with multiple funders", cheaperWithdrawMultipleFunders},
	{"withdraw", "withdraw and cheaperWithdraw leave the same state", withdrawEquivalence},
}

func constructorSetsPriceFeed(t *T) error {
	feed, err := t.fundMe.GetPriceFeed(t.call())
	if err != nil {
		return err
	}
	return expectAddress("getPriceFeed()", feed, t.priceFeed)
}

func fundBelowMinimum(t *T) error {
	_, err := t.fund(0, nil)
	if err := expectRevert("fund() without value", err, fundme.ErrNotEnoughETH); err != nil {
		return err
	}
	minWei, err := t.minimumWei()
	if err != nil {
		return err
	}
	_, err = t.fund(0, new(big.Int).Sub(minWei, common.Big1))
	if err := expectRevert("fund() one wei below minimum", err, fundme.ErrNotEnoughETH); err != nil {
		return err
	}
	amount, err := t.fundMe.GetAddressToAmountFunded(t.call(), t.deployer())
	if err != nil {
		return err
	}
	count, err := t.fundMe.GetFundersCount(t.call())
	if err != nil {
		return err
	}
	return firstErr(
		expectBig("amount funded after rejected fund", amount, common.Big0),
		expectBig("funders after rejected fund", count, common.Big0),
	)
}

// minimumWei is the smallest contribution worth MINIMUM_USD at the feed's
// latest answer: ceil(minUSD * 1e18 / (answer * 1e10)).
func (t *T) minimumWei() (*big.Int, error) {
	minUSD, err := t.fundMe.MinimumUSD(t.call())
	if err != nil {
		return nil, err
	}
	rd, err := fundme.NewMockV3Aggregator(t.priceFeed, t.suite.backend).LatestRoundData(t.call())
	if err != nil {
		return nil, err
	}
	if rd.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("price feed answer %s is not positive", rd.Answer)
	}
	price := new(big.Int).Mul(rd.Answer, big.NewInt(1e10))
	num := new(big.Int).Mul(minUSD, big.NewInt(params.Ether))
	num.Add(num, new(big.Int).Sub(price, common.Big1))
	return num.Div(num, price), nil
}

func fundUpdatesAmount(t *T) error {
	before, err := t.fundMe.GetAddressToAmountFunded(t.call(), t.deployer())
	if err != nil {
		return err
	}
	if _, err := t.fund(0, sendValue); err != nil {
		return err
	}
	after, err := t.fundMe.GetAddressToAmountFunded(t.call(), t.deployer())
	if err != nil {
		return err
	}
	return expectBig("getAddressToAmountFunded(deployer)", after, new(big.Int).Add(before, sendValue))
}

func fundAddsFunder(t *T) error {
	if _, err := t.fund(0, sendValue); err != nil {
		return err
	}
	funder, err := t.fundMe.GetFunder(t.call(), common.Big0)
	if err != nil {
		return err
	}
	if err := expectAddress("getFunders(0)", funder, t.deployer()); err != nil {
		return err
	}

	// repeated funding appends in call order, duplicates included
	if _, err := t.fund(1, sendValue); err != nil {
		return err
	}
	if _, err := t.fund(0, sendValue); err != nil {
		return err
	}
	funders, err := t.fundMe.Funders(t.call())
	if err != nil {
		return err
	}
	want := []common.Address{t.deployer(), t.account(1), t.deployer()}
	if err := expectBig("funders length", big.NewInt(int64(len(funders))), big.NewInt(int64(len(want)))); err != nil {
		return err
	}
	for i := range want {
		if err := expectAddress(fmt.Sprintf("getFunders(%d)", i), funders[i], want[i]); err != nil {
			return err
		}
	}
	return nil
}

// withdrawFn selects withdraw or cheaperWithdraw.
type withdrawFn func(f *fundme.FundMe) func(*bind.TransactOpts) (*types.Transaction, error)

var (
	plainWithdraw   withdrawFn = func(f *fundme.FundMe) func(*bind.TransactOpts) (*types.Transaction, error) { return f.Withdraw }
	cheaperWithdraw withdrawFn = func(f *fundme.FundMe) func(*bind.TransactOpts) (*types.Transaction, error) { return f.CheaperWithdraw }
)

// outcome is the observable state after a withdrawal.
type outcome struct {
	receipt         *types.Receipt
	gasCost         *big.Int
	startingOwner   *big.Int
	startingBalance *big.Int
	endingOwner     *big.Int
	endingBalance   *big.Int
	amounts         []*big.Int
	fundersCount    *big.Int
}

// withdrawBy runs a withdrawal from the owner and collects the resulting state
// for the given funders.
func withdrawBy(t *T, fn withdrawFn, funders []int) (*outcome, error) {
	var (
		o   outcome
		err error
	)
	if o.startingBalance, err = t.balance(t.fundMe.Address()); err != nil {
		return nil, err
	}
	if o.startingOwner, err = t.balance(t.deployer()); err != nil {
		return nil, err
	}
	opts, err := t.opts(0, nil)
	if err != nil {
		return nil, err
	}
	if o.receipt, err = t.mined(fn(t.fundMe)(opts)); err != nil {
		return nil, err
	}
	o.gasCost = fundme.GasCost(o.receipt)
	if o.endingBalance, err = t.balance(t.fundMe.Address()); err != nil {
		return nil, err
	}
	if o.endingOwner, err = t.balance(t.deployer()); err != nil {
		return nil, err
	}
	for _, i := range funders {
		amount, err := t.fundMe.GetAddressToAmountFunded(t.call(), t.account(i))
		if err != nil {
			return nil, err
		}
		o.amounts = append(o.amounts, amount)
	}
	if o.fundersCount, err = t.fundMe.GetFundersCount(t.call()); err != nil {
		return nil, err
	}
	return &o, nil
}

// check asserts the outcome of a withdrawal that started with a funded contract.
func (o *outcome) check(funders []int) error {
	if err := expectTrue("starting contract balance is positive", o.startingBalance.Sign() > 0); err != nil {
		return err
	}
	if err := expectBig("ending contract balance", o.endingBalance, common.Big0); err != nil {
		return err
	}
	want := new(big.Int).Add(o.startingOwner, o.startingBalance)
	got := new(big.Int).Add(o.endingOwner, o.gasCost)
	if err := expectBig("ending owner balance + gas cost", got, want); err != nil {
		return err
	}
	for k, amount := range o.amounts {
		if err := expectBig(fmt.Sprintf("amount funded by account %d", funders[k]), amount, common.Big0); err != nil {
			return err
		}
	}
	return expectBig("funders length", o.fundersCount, common.Big0)
}

func withdrawSingleFunder(t *T) error {
	if _, err := t.fund(0, sendValue); err != nil {
		return err
	}
	o, err := withdrawBy(t, plainWithdraw, []int{0})
	if err != nil {
		return err
	}
	return o.check([]int{0})
}

var multipleFunders = []int{1, 2, 3, 4, 5}

func fundFromMany(t *T) error {
	for _, i := range multipleFunders {
		if _, err := t.fund(i, sendValue); err != nil {
			return fmt.Errorf("fund from account %d: %w", i, err)
		}
	}
	return nil
}

func withdrawMultipleFunders(t *T) error {
	if err := fundFromMany(t); err != nil {
		return err
	}
	o, err := withdrawBy(t, plainWithdraw, multipleFunders)
	if err != nil {
		return err
	}
	return o.check(multipleFunders)
}

func cheaperWithdrawMultipleFunders(t *T) error {
	if err := fundFromMany(t); err != nil {
		return err
	}
	o, err := withdrawBy(t, cheaperWithdraw, multipleFunders)
	if err != nil {
		return err
	}
	return o.check(multipleFunders)
}

func onlyOwnerWithdraws(t *T) error {
	if _, err := t.fund(0, sendValue); err != nil {
		return err
	}
	attacker := t.account(1)
	startingAttacker, err := t.balance(attacker)
	if err != nil {
		return err
	}
	startingContract, err := t.balance(t.fundMe.Address())
	if err != nil {
		return err
	}

	for _, fn := range []struct {
		name string
		w    withdrawFn
	}{{"withdraw()", plainWithdraw}, {"cheaperWithdraw()", cheaperWithdraw}} {
		opts, err := t.opts(1, nil)
		if err != nil {
			return err
		}
		_, err = t.mined(fn.w(t.fundMe)(opts))
		if err := expectRevert(fn.name+" from a non-owner", err, fundme.ErrNotOwner); err != nil {
			return err
		}
	}

	endingAttacker, err := t.balance(attacker)
	if err != nil {
		return err
	}
	endingContract, err := t.balance(t.fundMe.Address())
	if err != nil {
		return err
	}
	return firstErr(
		expectBig("attacker balance", endingAttacker, startingAttacker),
		expectBig("contract balance", endingContract, startingContract),
	)
}

func withdrawEquivalence(t *T) error {
	if err := fundFromMany(t); err != nil {
		return err
	}
	snap, err := t.suite.snaps.Snapshot(t.ctx)
	if err != nil {
		return err
	}
	plain, err := withdrawBy(t, plainWithdraw, multipleFunders)
	if err != nil {
		return err
	}
	if err := t.suite.snaps.Revert(t.ctx, snap); err != nil {
		return err
	}
	cheap, err := withdrawBy(t, cheaperWithdraw, multipleFunders)
	if err != nil {
		return err
	}
	if err := firstErr(plain.check(multipleFunders), cheap.check(multipleFunders)); err != nil {
		return err
	}

	plainTotal := new(big.Int).Add(plain.endingOwner, plain.gasCost)
	cheapTotal := new(big.Int).Add(cheap.endingOwner, cheap.gasCost)
	return firstErr(
		expectBig("starting contract balance", cheap.startingBalance, plain.startingBalance),
		expectBig("owner balance before gas", cheapTotal, plainTotal),
		expectTrue(fmt.Sprintf("cheaperWithdraw gas %d < withdraw gas %d", cheap.receipt.GasUsed, plain.receipt.GasUsed),
			cheap.receipt.GasUsed < plain.receipt.GasUsed),
	)
}
