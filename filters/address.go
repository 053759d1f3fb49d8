package filters

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// ErrInvalidAddress reports a string that is not a valid account, muxed
// account or contract strkey.
var ErrInvalidAddress = errors.New("invalid address")

// AddressKind is the class of a normalized address.
type AddressKind int

const (
	AccountAddress AddressKind = iota
	ContractAddress
)

func (k AddressKind) String() string {
	switch k {
	case AccountAddress:
		return "account"
	case ContractAddress:
		return "contract"
	default:
		return fmt.Sprintf("AddressKind(%d)", int(k))
	}
}

// Address is a validated, normalized network address. Muxed accounts are
// reduced to their underlying G account.
type Address struct {
	value string
	kind  AddressKind
	// original input, kept for display
	raw string
}

// ParseAddress validates s and normalizes it for comparison.
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	upper := strings.ToUpper(raw)

	switch upper[0] {
	case 'G':
		if _, err := strkey.Decode(strkey.VersionByteAccountID, upper); err != nil {
			return Address{}, fmt.Errorf("%w: %q is not an account id: %v", ErrInvalidAddress, raw, err)
		}
		return Address{value: upper, kind: AccountAddress, raw: raw}, nil
	case 'M':
		muxed, err := xdr.AddressToMuxedAccount(upper)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q is not a muxed account: %v", ErrInvalidAddress, raw, err)
		}
		return Address{value: muxedAddress(muxed), kind: AccountAddress, raw: raw}, nil
	case 'C':
		if _, err := strkey.Decode(strkey.VersionByteContract, upper); err != nil {
			return Address{}, fmt.Errorf("%w: %q is not a contract id: %v", ErrInvalidAddress, raw, err)
		}
		return Address{value: upper, kind: ContractAddress, raw: raw}, nil
	default:
		return Address{}, fmt.Errorf("%w: %q must start with G, M or C", ErrInvalidAddress, raw)
	}
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String returns the normalized form.
func (a Address) String() string { return a.value }

// Raw returns the address as supplied by the caller.
func (a Address) Raw() string { return a.raw }

func (a Address) Kind() AddressKind { return a.kind }

func (a Address) IsZero() bool { return a.value == "" }

func accountAddress(id xdr.AccountId) string {
	return id.Address()
}

// muxedAddress returns the base G address of any muxed account.
func muxedAddress(m xdr.MuxedAccount) string {
	id := m.ToAccountId()
	return id.Address()
}

func ed25519Address(key xdr.Uint256) string {
	addr, err := strkey.Encode(strkey.VersionByteAccountID, key[:])
	if err != nil {
		return ""
	}
	return addr
}

func contractAddress(id xdr.ContractId) string {
	addr, err := strkey.Encode(strkey.VersionByteContract, id[:])
	if err != nil {
		return ""
	}
	return addr
}

// scAddress renders an ScAddress in the same normalized form as ParseAddress.
// Claimable balance and liquidity pool addresses never match an account or
// contract and render as "".
func scAddress(addr xdr.ScAddress) string {
	switch {
	case addr.AccountId != nil:
		return accountAddress(*addr.AccountId)
	case addr.ContractId != nil:
		return contractAddress(*addr.ContractId)
	case addr.MuxedAccount != nil:
		return ed25519Address(addr.MuxedAccount.Ed25519)
	default:
		return ""
	}
}
