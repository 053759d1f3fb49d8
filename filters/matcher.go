package filters

import (
	"github.com/stellar/go/xdr"
)

// Matches reports whether the transaction references target anywhere in its
// envelope: sources, fee-bump fee source, operation sources, and every
// address-bearing operation field. Result metadata is not consulted, so an
// address touched only by execution side effects does not match.
func Matches(env xdr.TransactionEnvelope, target Address) bool {
	if target.IsZero() {
		return false
	}
	return envelopeMatches(env, func(addr string) bool { return addr == target.value })
}

// AddressMatcher is a reusable predicate over transaction envelopes.
type AddressMatcher struct {
	target Address
}

func NewAddressMatcher(target Address) *AddressMatcher {
	return &AddressMatcher{target: target}
}

func (m *AddressMatcher) Match(env xdr.TransactionEnvelope) bool {
	return Matches(env, m.target)
}

// eq compares a normalized address against the target.
type eq func(addr string) bool

func envelopeMatches(env xdr.TransactionEnvelope, is eq) bool {
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		if env.V0 == nil {
			return false
		}
		return txV0Matches(env.V0.Tx, is)
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1 == nil {
			return false
		}
		return txMatches(env.V1.Tx, is)
	case xdr.EnvelopeTypeEnvelopeTypeTxFeeBump:
		if env.FeeBump == nil {
			return false
		}
		return feeBumpMatches(env.FeeBump.Tx, is)
	default:
		return false
	}
}

// feeBumpMatches checks the fee source and then the wrapped transaction.
// The protocol only allows a plain transaction inside a fee bump.
func feeBumpMatches(tx xdr.FeeBumpTransaction, is eq) bool {
	if is(muxedAddress(tx.FeeSource)) {
		return true
	}
	if tx.InnerTx.V1 == nil {
		return false
	}
	return txMatches(tx.InnerTx.V1.Tx, is)
}

func txV0Matches(tx xdr.TransactionV0, is eq) bool {
	if is(ed25519Address(tx.SourceAccountEd25519)) {
		return true
	}
	return operationsMatch(tx.Operations, is)
}

func txMatches(tx xdr.Transaction, is eq) bool {
	if is(muxedAddress(tx.SourceAccount)) {
		return true
	}
	return operationsMatch(tx.Operations, is)
}

// operationsMatch checks each operation's source override and body. An
// operation without an override uses the transaction source, which the caller
// has already compared.
func operationsMatch(ops []xdr.Operation, is eq) bool {
	for _, op := range ops {
		if op.SourceAccount != nil && is(muxedAddress(*op.SourceAccount)) {
			return true
		}
		if matched, _ := operationMatches(op.Body, is); matched {
			return true
		}
	}
	return false
}

// operationMatches checks the kind-specific address fields of one operation.
// known is false for operation types this switch does not handle; such
// operations never match. A new protocol operation needs a case here.
func operationMatches(body xdr.OperationBody, is eq) (matched bool, known bool) {
	switch body.Type {
	case xdr.OperationTypeCreateAccount:
		if op := body.CreateAccountOp; op != nil {
			return is(accountAddress(op.Destination)), true
		}
	case xdr.OperationTypePayment:
		if op := body.PaymentOp; op != nil {
			return is(muxedAddress(op.Destination)) || assetMatches(op.Asset, is), true
		}
	case xdr.OperationTypePathPaymentStrictReceive:
		if op := body.PathPaymentStrictReceiveOp; op != nil {
			return is(muxedAddress(op.Destination)) ||
				assetMatches(op.SendAsset, is) ||
				assetMatches(op.DestAsset, is) ||
				assetsMatch(op.Path, is), true
		}
	case xdr.OperationTypePathPaymentStrictSend:
		if op := body.PathPaymentStrictSendOp; op != nil {
			return is(muxedAddress(op.Destination)) ||
				assetMatches(op.SendAsset, is) ||
				assetMatches(op.DestAsset, is) ||
				assetsMatch(op.Path, is), true
		}
	case xdr.OperationTypeManageSellOffer:
		if op := body.ManageSellOfferOp; op != nil {
			return assetMatches(op.Selling, is) || assetMatches(op.Buying, is), true
		}
	case xdr.OperationTypeManageBuyOffer:
		if op := body.ManageBuyOfferOp; op != nil {
			return assetMatches(op.Selling, is) || assetMatches(op.Buying, is), true
		}
	case xdr.OperationTypeCreatePassiveSellOffer:
		if op := body.CreatePassiveSellOfferOp; op != nil {
			return assetMatches(op.Selling, is) || assetMatches(op.Buying, is), true
		}
	case xdr.OperationTypeSetOptions:
		if op := body.SetOptionsOp; op != nil {
			if op.InflationDest != nil && is(accountAddress(*op.InflationDest)) {
				return true, true
			}
			return op.Signer != nil && signerKeyMatches(op.Signer.Key, is), true
		}
	case xdr.OperationTypeChangeTrust:
		if op := body.ChangeTrustOp; op != nil {
			return changeTrustAssetMatches(op.Line, is), true
		}
	case xdr.OperationTypeAllowTrust:
		if op := body.AllowTrustOp; op != nil {
			return is(accountAddress(op.Trustor)), true
		}
	case xdr.OperationTypeAccountMerge:
		if body.Destination != nil {
			return is(muxedAddress(*body.Destination)), true
		}
	case xdr.OperationTypeInflation,
		xdr.OperationTypeManageData,
		xdr.OperationTypeBumpSequence,
		xdr.OperationTypeEndSponsoringFutureReserves,
		xdr.OperationTypeLiquidityPoolDeposit,
		xdr.OperationTypeLiquidityPoolWithdraw,
		xdr.OperationTypeExtendFootprintTtl,
		xdr.OperationTypeRestoreFootprint:
		// no address fields beyond the operation source
		return false, true
	case xdr.OperationTypeCreateClaimableBalance:
		if op := body.CreateClaimableBalanceOp; op != nil {
			if assetMatches(op.Asset, is) {
				return true, true
			}
			for _, claimant := range op.Claimants {
				if claimant.V0 != nil && is(accountAddress(claimant.V0.Destination)) {
					return true, true
				}
			}
			return false, true
		}
	case xdr.OperationTypeClaimClaimableBalance,
		xdr.OperationTypeClawbackClaimableBalance:
		// balance ids are hashes, not addresses
		return false, true
	case xdr.OperationTypeBeginSponsoringFutureReserves:
		if op := body.BeginSponsoringFutureReservesOp; op != nil {
			return is(accountAddress(op.SponsoredId)), true
		}
	case xdr.OperationTypeRevokeSponsorship:
		if op := body.RevokeSponsorshipOp; op != nil {
			if op.LedgerKey != nil && ledgerKeyMatches(*op.LedgerKey, is) {
				return true, true
			}
			if op.Signer != nil {
				return is(accountAddress(op.Signer.AccountId)) || signerKeyMatches(op.Signer.SignerKey, is), true
			}
			return false, true
		}
	case xdr.OperationTypeClawback:
		if op := body.ClawbackOp; op != nil {
			return is(muxedAddress(op.From)) || assetMatches(op.Asset, is), true
		}
	case xdr.OperationTypeSetTrustLineFlags:
		if op := body.SetTrustLineFlagsOp; op != nil {
			return is(accountAddress(op.Trustor)) || assetMatches(op.Asset, is), true
		}
	case xdr.OperationTypeInvokeHostFunction:
		if op := body.InvokeHostFunctionOp; op != nil {
			return invokeHostFunctionMatches(*op, is), true
		}
	default:
		return false, false
	}
	// a known type whose body arm is missing
	return false, true
}

func assetMatches(asset xdr.Asset, is eq) bool {
	switch {
	case asset.AlphaNum4 != nil:
		return is(accountAddress(asset.AlphaNum4.Issuer))
	case asset.AlphaNum12 != nil:
		return is(accountAddress(asset.AlphaNum12.Issuer))
	default:
		return false
	}
}

func assetsMatch(assets []xdr.Asset, is eq) bool {
	for _, asset := range assets {
		if assetMatches(asset, is) {
			return true
		}
	}
	return false
}

func changeTrustAssetMatches(line xdr.ChangeTrustAsset, is eq) bool {
	switch {
	case line.AlphaNum4 != nil:
		return is(accountAddress(line.AlphaNum4.Issuer))
	case line.AlphaNum12 != nil:
		return is(accountAddress(line.AlphaNum12.Issuer))
	case line.LiquidityPool != nil && line.LiquidityPool.ConstantProduct != nil:
		params := line.LiquidityPool.ConstantProduct
		return assetMatches(params.AssetA, is) || assetMatches(params.AssetB, is)
	default:
		return false
	}
}

func trustLineAssetMatches(asset xdr.TrustLineAsset, is eq) bool {
	switch {
	case asset.AlphaNum4 != nil:
		return is(accountAddress(asset.AlphaNum4.Issuer))
	case asset.AlphaNum12 != nil:
		return is(accountAddress(asset.AlphaNum12.Issuer))
	default:
		return false
	}
}

func signerKeyMatches(key xdr.SignerKey, is eq) bool {
	switch {
	case key.Ed25519 != nil:
		return is(ed25519Address(*key.Ed25519))
	case key.Ed25519SignedPayload != nil:
		return is(ed25519Address(key.Ed25519SignedPayload.Ed25519))
	default:
		// pre-auth tx and hash(x) signers are hashes
		return false
	}
}

func ledgerKeyMatches(key xdr.LedgerKey, is eq) bool {
	switch {
	case key.Account != nil:
		return is(accountAddress(key.Account.AccountId))
	case key.TrustLine != nil:
		return is(accountAddress(key.TrustLine.AccountId)) || trustLineAssetMatches(key.TrustLine.Asset, is)
	case key.Offer != nil:
		return is(accountAddress(key.Offer.SellerId))
	case key.Data != nil:
		return is(accountAddress(key.Data.AccountId))
	case key.ContractData != nil:
		return is(scAddress(key.ContractData.Contract)) || scValMatches(key.ContractData.Key, is)
	default:
		return false
	}
}
