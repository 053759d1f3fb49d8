package livesource

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
	"github.com/stellar/stellar-rpc/protocol"
	"go.uber.org/zap"
)

var (
	// ErrUnknownToken reports a token that is neither a shortcut nor a contract id.
	ErrUnknownToken = errors.New("unknown token")
	// ErrSimulationFailed reports a balance call the node ran but the
	// contract rejected or answered with something other than an amount.
	ErrSimulationFailed = errors.New("balance simulation failed")
)

// TokenShortcuts maps case-insensitive names to pubnet token contracts.
var TokenShortcuts = map[string]string{
	"xlm":  "CAS3J7GYLGXMF6TDJBBYYSE3HQ6BBSMLNUQ34T6TZMYMW2EVH34XOWMA",
	"usdc": "CCW67TSZV3SSS2HXMBQ5JFGCKJNXKZM7UQUWUZPUTHXSTZLEO7SJMI75",
	"kale": "CB23WRDQWGSP6YPMY4UV5C4OW5CBTXKYN3XEATG7KJEZCXMJBYEHOUOV",
}

// ResolveToken returns the contract id for a shortcut or validates a
// contract id passed as is.
func ResolveToken(token string) (string, error) {
	t := strings.TrimSpace(token)
	if contract, ok := TokenShortcuts[strings.ToLower(t)]; ok {
		return contract, nil
	}
	if _, err := strkey.Decode(strkey.VersionByteContract, t); err != nil {
		return "", fmt.Errorf("%w: %q (use a contract id or one of xlm, usdc, kale)", ErrUnknownToken, token)
	}
	return t, nil
}

// Balance is the result of a token balance simulation.
type Balance struct {
	Address      string `json:"address"`
	Token        string `json:"token"`
	Contract     string `json:"contract"`
	Raw          string `json:"raw"`
	Balance      string `json:"balance"`
	LatestLedger uint32 `json:"latest_ledger"`
}

// Balance simulates balance(address) on the token contract.
func (c *Client) Balance(ctx context.Context, address, token string) (*Balance, error) {
	contract, err := ResolveToken(token)
	if err != nil {
		return nil, err
	}

	envelope, err := balanceInvocation(address, contract)
	if err != nil {
		return nil, err
	}

	if err := c.before(ctx); err != nil {
		return nil, err
	}
	resp, err := c.soroban.SimulateTransaction(ctx, protocol.SimulateTransactionRequest{
		Transaction: envelope,
	})
	c.after(err)
	if err != nil {
		return nil, fmt.Errorf("simulateTransaction: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSimulationFailed, resp.Error)
	}
	if len(resp.Results) == 0 || resp.Results[0].ReturnValueXDR == nil {
		return nil, fmt.Errorf("%w: no result returned", ErrSimulationFailed)
	}

	var val xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(*resp.Results[0].ReturnValueXDR, &val); err != nil {
		return nil, fmt.Errorf("%w: failed to decode balance: %w", ErrSimulationFailed, err)
	}
	raw, err := scValToBigInt(val)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSimulationFailed, err)
	}

	c.logger.Debug("Simulated token balance",
		zap.String("address", address),
		zap.String("contract", contract),
		zap.String("raw", raw.String()))

	return &Balance{
		Address:      address,
		Token:        token,
		Contract:     contract,
		Raw:          raw.String(),
		Balance:      formatStroops(raw),
		LatestLedger: resp.LatestLedger,
	}, nil
}

// balanceInvocation builds the unsigned envelope for balance(address).
// Simulation does not check the source account, so a zero key is used.
func balanceInvocation(address, contract string) (string, error) {
	holder, err := holderScAddress(address)
	if err != nil {
		return "", err
	}

	rawContract, err := strkey.Decode(strkey.VersionByteContract, contract)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownToken, err)
	}
	var contractID xdr.ContractId
	copy(contractID[:], rawContract)

	var source xdr.Uint256
	op := xdr.Operation{Body: xdr.OperationBody{
		Type: xdr.OperationTypeInvokeHostFunction,
		InvokeHostFunctionOp: &xdr.InvokeHostFunctionOp{
			HostFunction: xdr.HostFunction{
				Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
				InvokeContract: &xdr.InvokeContractArgs{
					ContractAddress: xdr.ScAddress{
						Type:       xdr.ScAddressTypeScAddressTypeContract,
						ContractId: &contractID,
					},
					FunctionName: "balance",
					Args:         []xdr.ScVal{{Type: xdr.ScValTypeScvAddress, Address: &holder}},
				},
			},
		},
	}}

	envelope := xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTx,
		V1: &xdr.TransactionV1Envelope{Tx: xdr.Transaction{
			SourceAccount: xdr.MuxedAccount{Type: xdr.CryptoKeyTypeKeyTypeEd25519, Ed25519: &source},
			Fee:           100,
			Cond:          xdr.Preconditions{Type: xdr.PreconditionTypePrecondNone},
			Memo:          xdr.Memo{Type: xdr.MemoTypeMemoNone},
			Operations:    []xdr.Operation{op},
		}},
	}

	encoded, err := xdr.MarshalBase64(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to encode balance invocation: %w", err)
	}
	return encoded, nil
}

func holderScAddress(address string) (xdr.ScAddress, error) {
	a := strings.TrimSpace(address)
	switch {
	case strings.HasPrefix(a, "G"):
		id, err := xdr.AddressToAccountId(a)
		if err != nil {
			return xdr.ScAddress{}, fmt.Errorf("invalid account %q: %w", address, err)
		}
		return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeAccount, AccountId: &id}, nil
	case strings.HasPrefix(a, "C"):
		raw, err := strkey.Decode(strkey.VersionByteContract, a)
		if err != nil {
			return xdr.ScAddress{}, fmt.Errorf("invalid contract %q: %w", address, err)
		}
		var id xdr.ContractId
		copy(id[:], raw)
		return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &id}, nil
	default:
		return xdr.ScAddress{}, fmt.Errorf("invalid address %q: must start with G or C", address)
	}
}

func scValToBigInt(val xdr.ScVal) (*big.Int, error) {
	switch val.Type {
	case xdr.ScValTypeScvI128:
		parts := val.MustI128()
		hi := big.NewInt(int64(parts.Hi))
		hi.Lsh(hi, 64)
		return hi.Add(hi, new(big.Int).SetUint64(uint64(parts.Lo))), nil
	case xdr.ScValTypeScvU128:
		parts := val.MustU128()
		hi := new(big.Int).SetUint64(uint64(parts.Hi))
		hi.Lsh(hi, 64)
		return hi.Add(hi, new(big.Int).SetUint64(uint64(parts.Lo))), nil
	default:
		return nil, fmt.Errorf("unexpected balance type %s", val.Type)
	}
}

// formatStroops renders a 7-decimal token amount.
func formatStroops(v *big.Int) string {
	if v.IsInt64() {
		return amount.StringFromInt64(v.Int64())
	}
	r := new(big.Rat).SetFrac(v, big.NewInt(amount.One))
	return r.FloatString(7)
}
