package filters

import (
	"fmt"

	"github.com/stellar/go/xdr"
)

// maxScValDepth bounds recursion into nested vectors and maps.
const maxScValDepth = 32

func invokeHostFunctionMatches(op xdr.InvokeHostFunctionOp, is eq) bool {
	if hostFunctionMatches(op.HostFunction, is) {
		return true
	}
	for _, auth := range op.Auth {
		if auth.Credentials.Address != nil && is(scAddress(auth.Credentials.Address.Address)) {
			return true
		}
		if authorizedInvocationMatches(auth.RootInvocation, is) {
			return true
		}
	}
	return false
}

func hostFunctionMatches(fn xdr.HostFunction, is eq) bool {
	switch {
	case fn.InvokeContract != nil:
		return invokeArgsMatch(*fn.InvokeContract, is)
	case fn.CreateContract != nil:
		return preimageMatches(fn.CreateContract.ContractIdPreimage, is)
	case fn.CreateContractV2 != nil:
		return preimageMatches(fn.CreateContractV2.ContractIdPreimage, is) ||
			scValsMatch(fn.CreateContractV2.ConstructorArgs, is, 0)
	default:
		// wasm upload carries no addresses
		return false
	}
}

func invokeArgsMatch(args xdr.InvokeContractArgs, is eq) bool {
	return is(scAddress(args.ContractAddress)) || scValsMatch(args.Args, is, 0)
}

func preimageMatches(preimage xdr.ContractIdPreimage, is eq) bool {
	switch {
	case preimage.FromAddress != nil:
		return is(scAddress(preimage.FromAddress.Address))
	case preimage.FromAsset != nil:
		return assetMatches(*preimage.FromAsset, is)
	default:
		return false
	}
}

func authorizedInvocationMatches(inv xdr.SorobanAuthorizedInvocation, is eq) bool {
	fn := inv.Function
	switch {
	case fn.ContractFn != nil:
		if invokeArgsMatch(*fn.ContractFn, is) {
			return true
		}
	case fn.CreateContractHostFn != nil:
		if preimageMatches(fn.CreateContractHostFn.ContractIdPreimage, is) {
			return true
		}
	case fn.CreateContractV2HostFn != nil:
		if preimageMatches(fn.CreateContractV2HostFn.ContractIdPreimage, is) ||
			scValsMatch(fn.CreateContractV2HostFn.ConstructorArgs, is, 0) {
			return true
		}
	}
	for _, sub := range inv.SubInvocations {
		if authorizedInvocationMatches(sub, is) {
			return true
		}
	}
	return false
}

func scValsMatch(vals []xdr.ScVal, is eq, depth int) bool {
	for _, v := range vals {
		if scValMatchesDepth(v, is, depth) {
			return true
		}
	}
	return false
}

func scValMatches(v xdr.ScVal, is eq) bool {
	return scValMatchesDepth(v, is, 0)
}

func scValMatchesDepth(v xdr.ScVal, is eq, depth int) bool {
	if depth > maxScValDepth {
		return false
	}
	switch v.Type {
	case xdr.ScValTypeScvAddress:
		return v.Address != nil && is(scAddress(*v.Address))
	case xdr.ScValTypeScvVec:
		if v.Vec != nil && *v.Vec != nil {
			return scValsMatch(**v.Vec, is, depth+1)
		}
	case xdr.ScValTypeScvMap:
		if v.Map != nil && *v.Map != nil {
			for _, entry := range **v.Map {
				if scValMatchesDepth(entry.Key, is, depth+1) || scValMatchesDepth(entry.Val, is, depth+1) {
					return true
				}
			}
		}
	}
	return false
}

// ContractMatcher selects transactions whose contract invocations, auth
// trees or arguments reference a contract id.
type ContractMatcher struct {
	contract Address
}

// NewContractMatcher requires a contract (C...) address.
func NewContractMatcher(contract Address) (*ContractMatcher, error) {
	if contract.Kind() != ContractAddress {
		return nil, fmt.Errorf("%w: %s is not a contract address", ErrInvalidAddress, contract.Raw())
	}
	return &ContractMatcher{contract: contract}, nil
}

func (m *ContractMatcher) Match(env xdr.TransactionEnvelope) bool {
	is := func(addr string) bool { return addr == m.contract.value }
	for _, op := range envelopeOperations(env) {
		if op.Body.InvokeHostFunctionOp != nil && invokeHostFunctionMatches(*op.Body.InvokeHostFunctionOp, is) {
			return true
		}
	}
	return false
}

// FunctionMatcher selects transactions that call a contract function by
// name, either directly or inside an authorized sub-invocation.
type FunctionMatcher struct {
	name xdr.ScSymbol
}

func NewFunctionMatcher(name string) (*FunctionMatcher, error) {
	if name == "" {
		return nil, fmt.Errorf("function name is required")
	}
	return &FunctionMatcher{name: xdr.ScSymbol(name)}, nil
}

func (m *FunctionMatcher) Match(env xdr.TransactionEnvelope) bool {
	for _, op := range envelopeOperations(env) {
		invoke := op.Body.InvokeHostFunctionOp
		if invoke == nil {
			continue
		}
		if fn := invoke.HostFunction.InvokeContract; fn != nil && fn.FunctionName == m.name {
			return true
		}
		for _, auth := range invoke.Auth {
			if m.invocationCalls(auth.RootInvocation) {
				return true
			}
		}
	}
	return false
}

func (m *FunctionMatcher) invocationCalls(inv xdr.SorobanAuthorizedInvocation) bool {
	if fn := inv.Function.ContractFn; fn != nil && fn.FunctionName == m.name {
		return true
	}
	for _, sub := range inv.SubInvocations {
		if m.invocationCalls(sub) {
			return true
		}
	}
	return false
}

// envelopeOperations returns the operations of a transaction, unwrapping a
// fee bump.
func envelopeOperations(env xdr.TransactionEnvelope) []xdr.Operation {
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		if env.V0 != nil {
			return env.V0.Tx.Operations
		}
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1 != nil {
			return env.V1.Tx.Operations
		}
	case xdr.EnvelopeTypeEnvelopeTypeTxFeeBump:
		if env.FeeBump != nil && env.FeeBump.Tx.InnerTx.V1 != nil {
			return env.FeeBump.Tx.InnerTx.V1.Tx.Operations
		}
	}
	return nil
}
