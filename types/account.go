package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/jsonx"
	"github.com/mr-tron/base58"
)

const PublicKeySize = 32

var ErrInvalidAddress = errors.New("types: invalid address")

// Address is the base58 form of an account's 32-byte public key.
type Address string

func AddressFromPublicKey(pub []byte) Address {
	return Address(base58.Encode(pub))
}

func (a Address) String() string {
	return string(a)
}

func (a Address) PublicKey() ([]byte, error) {
	raw, err := base58.Decode(string(a))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, PublicKeySize, len(raw))
	}
	return raw, nil
}

// AccountData holds the balances of one account. Which lock fields are set
// depends on the runtime the record was read from: MiscFrozen and FeeFrozen
// before the balances upgrade, Frozen and Flags after it. Nil reads as zero.
type AccountData struct {
	Free       *uint256.Int
	Reserved   *uint256.Int
	MiscFrozen *uint256.Int
	FeeFrozen  *uint256.Int
	Frozen     *uint256.Int
	Flags      *uint256.Int
}

type AccountInfo struct {
	Nonce       uint32      `json:"nonce"`
	Consumers   uint32      `json:"consumers"`
	Providers   uint32      `json:"providers"`
	Sufficients uint32      `json:"sufficients"`
	Data        AccountData `json:"data"`
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func (d AccountData) FreeBalance() *uint256.Int     { return orZero(d.Free) }
func (d AccountData) ReservedBalance() *uint256.Int { return orZero(d.Reserved) }
func (d AccountData) MiscFrozenBalance() *uint256.Int {
	return orZero(d.MiscFrozen)
}
func (d AccountData) FeeFrozenBalance() *uint256.Int { return orZero(d.FeeFrozen) }
func (d AccountData) FrozenBalance() *uint256.Int    { return orZero(d.Frozen) }
func (d AccountData) FlagBits() *uint256.Int         { return orZero(d.Flags) }

// u128 values are carried as decimal strings so no JSON reader rounds them.
type accountDataJSON struct {
	Free       string `json:"free"`
	Reserved   string `json:"reserved"`
	MiscFrozen string `json:"misc_frozen,omitempty"`
	FeeFrozen  string `json:"fee_frozen,omitempty"`
	Frozen     string `json:"frozen,omitempty"`
	Flags      string `json:"flags,omitempty"`
}

func decString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func parseDec(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return v, nil
}

func (d AccountData) MarshalJSON() ([]byte, error) {
	return jsonx.Marshal(&accountDataJSON{
		Free:       d.FreeBalance().Dec(),
		Reserved:   d.ReservedBalance().Dec(),
		MiscFrozen: decString(d.MiscFrozen),
		FeeFrozen:  decString(d.FeeFrozen),
		Frozen:     decString(d.Frozen),
		Flags:      decString(d.Flags),
	})
}

func (d *AccountData) UnmarshalJSON(data []byte) error {
	var aux accountDataJSON
	if err := jsonx.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if d.Free, err = parseDec("free", aux.Free); err != nil {
		return err
	}
	if d.Reserved, err = parseDec("reserved", aux.Reserved); err != nil {
		return err
	}
	if d.MiscFrozen, err = parseDec("misc_frozen", aux.MiscFrozen); err != nil {
		return err
	}
	if d.FeeFrozen, err = parseDec("fee_frozen", aux.FeeFrozen); err != nil {
		return err
	}
	if d.Frozen, err = parseDec("frozen", aux.Frozen); err != nil {
		return err
	}
	if d.Flags, err = parseDec("flags", aux.Flags); err != nil {
		return err
	}
	return nil
}

// AccountEntry pairs an account with its on-chain record. It is serialized as
// the two-element array [address, record].
type AccountEntry struct {
	Address Address
	Info    AccountInfo
}

func (e AccountEntry) MarshalJSON() ([]byte, error) {
	return jsonx.Marshal([]interface{}{e.Address, e.Info})
}

func (e *AccountEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := jsonx.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("account entry: expected [address, record], got %d elements", len(pair))
	}
	if err := jsonx.Unmarshal(pair[0], &e.Address); err != nil {
		return fmt.Errorf("account entry address: %w", err)
	}
	if err := jsonx.Unmarshal(pair[1], &e.Info); err != nil {
		return fmt.Errorf("account entry record: %w", err)
	}
	return nil
}

// Addresses projects entries to their addresses, keeping order.
func Addresses(entries []AccountEntry) []Address {
	out := make([]Address, len(entries))
	for i, e := range entries {
		out[i] = e.Address
	}
	return out
}
