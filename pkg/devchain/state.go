package devchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type account struct {
	balance  *big.Int
	nonce    uint64
	code     []byte
	contract Contract
	storage  map[common.Hash]common.Hash
}

type slotKey struct {
	addr common.Address
	slot common.Hash
}

// state is a journaled account store. Every mutation records an undo
// closure so a failed call can be rolled back to a snapshot.
type state struct {
	accounts map[common.Address]*account
	journal  []func()

	// per transaction
	warmAccounts map[common.Address]struct{}
	warmSlots    map[slotKey]struct{}
	originals    map[slotKey]common.Hash
	refund       uint64
}

func newState() *state {
	s := &state{accounts: make(map[common.Address]*account)}
	s.resetTx()
	return s
}

func (s *state) resetTx() {
	s.warmAccounts = make(map[common.Address]struct{})
	s.warmSlots = make(map[slotKey]struct{})
	s.originals = make(map[slotKey]common.Hash)
	s.refund = 0
	s.journal = s.journal[:0]
}

func (s *state) get(addr common.Address) *account {
	if a, ok := s.accounts[addr]; ok {
		return a
	}
	return nil
}

func (s *state) getOrCreate(addr common.Address) *account {
	if a := s.get(addr); a != nil {
		return a
	}
	a := &account{balance: new(big.Int), storage: make(map[common.Hash]common.Hash)}
	s.accounts[addr] = a
	s.journal = append(s.journal, func() { delete(s.accounts, addr) })
	return a
}

func (s *state) snapshot() int { return len(s.journal) }

func (s *state) revertTo(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

func (s *state) balance(addr common.Address) *big.Int {
	if a := s.get(addr); a != nil {
		return new(big.Int).Set(a.balance)
	}
	return new(big.Int)
}

func (s *state) setBalance(addr common.Address, v *big.Int) {
	a := s.getOrCreate(addr)
	prev := a.balance
	a.balance = new(big.Int).Set(v)
	s.journal = append(s.journal, func() { a.balance = prev })
}

func (s *state) addBalance(addr common.Address, v *big.Int) {
	s.setBalance(addr, new(big.Int).Add(s.balance(addr), v))
}

func (s *state) subBalance(addr common.Address, v *big.Int) {
	s.setBalance(addr, new(big.Int).Sub(s.balance(addr), v))
}

func (s *state) nonce(addr common.Address) uint64 {
	if a := s.get(addr); a != nil {
		return a.nonce
	}
	return 0
}

func (s *state) setNonce(addr common.Address, n uint64) {
	a := s.getOrCreate(addr)
	prev := a.nonce
	a.nonce = n
	s.journal = append(s.journal, func() { a.nonce = prev })
}

func (s *state) code(addr common.Address) []byte {
	if a := s.get(addr); a != nil {
		return a.code
	}
	return nil
}

func (s *state) contract(addr common.Address) Contract {
	if a := s.get(addr); a != nil {
		return a.contract
	}
	return nil
}

func (s *state) setCode(addr common.Address, code []byte, c Contract) {
	a := s.getOrCreate(addr)
	prevCode, prevContract := a.code, a.contract
	a.code, a.contract = code, c
	s.journal = append(s.journal, func() { a.code, a.contract = prevCode, prevContract })
}

func (s *state) storageAt(addr common.Address, slot common.Hash) common.Hash {
	if a := s.get(addr); a != nil {
		return a.storage[slot]
	}
	return common.Hash{}
}

func (s *state) setStorage(addr common.Address, slot, val common.Hash) {
	a := s.getOrCreate(addr)
	prev, existed := a.storage[slot]
	if val == (common.Hash{}) {
		delete(a.storage, slot)
	} else {
		a.storage[slot] = val
	}
	s.journal = append(s.journal, func() {
		if existed {
			a.storage[slot] = prev
		} else {
			delete(a.storage, slot)
		}
	})
}

// original returns the slot value as of the start of the transaction.
func (s *state) original(k slotKey) common.Hash {
	if v, ok := s.originals[k]; ok {
		return v
	}
	v := s.storageAt(k.addr, k.slot)
	s.originals[k] = v
	return v
}

// warmAccount marks addr as accessed and reports whether it already was.
func (s *state) warmAccount(addr common.Address) bool {
	if _, ok := s.warmAccounts[addr]; ok {
		return true
	}
	s.warmAccounts[addr] = struct{}{}
	return false
}

func (s *state) warmSlot(k slotKey) bool {
	if _, ok := s.warmSlots[k]; ok {
		return true
	}
	s.warmSlots[k] = struct{}{}
	return false
}

func (s *state) addRefund(n uint64) { s.refund += n }

func (s *state) subRefund(n uint64) {
	if n > s.refund {
		s.refund = 0
		return
	}
	s.refund -= n
}

// copy returns a deep copy with an empty journal. Contract instances are
// immutable and shared.
func (s *state) copy() *state {
	cp := newState()
	for addr, a := range s.accounts {
		storage := make(map[common.Hash]common.Hash, len(a.storage))
		for k, v := range a.storage {
			storage[k] = v
		}
		cp.accounts[addr] = &account{
			balance:  new(big.Int).Set(a.balance),
			nonce:    a.nonce,
			code:     a.code,
			contract: a.contract,
			storage:  storage,
		}
	}
	return cp
}
