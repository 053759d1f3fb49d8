package filters

import (
	"testing"

	"github.com/stellar/go/xdr"

	lt "github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledgertest"
)

func TestMatchesPaymentDestination(t *testing.T) {
	env := lt.Tx(lt.Muxed(1), lt.PaymentOp(lt.Muxed(2), lt.Native()))

	if !Matches(env, MustParseAddress(lt.Address(2))) {
		t.Error("Matches() = false for payment destination, want true")
	}
	if Matches(env, MustParseAddress(lt.Address(9))) {
		t.Error("Matches() = true for unrelated address, want false")
	}
}

func TestMatchesFeeBump(t *testing.T) {
	inner := lt.Tx(lt.Muxed(1), lt.BumpSequenceOp())
	env := lt.FeeBump(lt.Muxed(5), inner)

	tests := []struct {
		name   string
		target string
		want   bool
	}{
		{"inner source", lt.Address(1), true},
		{"fee source", lt.Address(5), true},
		{"neither", lt.Address(9), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(env, MustParseAddress(tt.target)); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesMuxedSources(t *testing.T) {
	env := lt.Tx(lt.MuxedWithID(1, 42), lt.PaymentOp(lt.MuxedWithID(2, 7), lt.Native()))

	// plain target against muxed fields
	if !Matches(env, MustParseAddress(lt.Address(1))) {
		t.Error("muxed source did not match its base account")
	}

	// muxed target with a different id against a muxed destination
	mx := lt.MuxedWithID(2, 8)
	target, err := mx.GetAddress()
	if err != nil {
		t.Fatal(err)
	}
	if !Matches(env, MustParseAddress(target)) {
		t.Error("muxed target did not match destination with same base account")
	}
}

func TestMatchesTxV0(t *testing.T) {
	env := lt.TxV0(3, lt.CreateAccountOp(4))

	for _, seed := range []byte{3, 4} {
		if !Matches(env, MustParseAddress(lt.Address(seed))) {
			t.Errorf("V0 envelope did not match account %d", seed)
		}
	}
	if Matches(env, MustParseAddress(lt.Address(5))) {
		t.Error("V0 envelope matched unrelated account")
	}
}

func TestMatchesOperationSourceOverride(t *testing.T) {
	op := lt.WithSource(lt.BumpSequenceOp(), lt.Muxed(6))
	env := lt.Tx(lt.Muxed(1), op)

	if !Matches(env, MustParseAddress(lt.Address(6))) {
		t.Error("operation source override did not match")
	}
}

func TestMatchesOperationFields(t *testing.T) {
	issuer := lt.AccountID(8)
	pool := xdr.LiquidityPoolParameters{
		Type: xdr.LiquidityPoolTypeLiquidityPoolConstantProduct,
		ConstantProduct: &xdr.LiquidityPoolConstantProductParameters{
			AssetA: lt.Native(),
			AssetB: lt.CreditAsset("USD", 8),
			Fee:    30,
		},
	}
	signerKey := lt.Key(8)
	muxed8 := lt.MuxedWithID(8, 3)

	tests := []struct {
		name string
		body xdr.OperationBody
	}{
		{"create account", lt.CreateAccountOp(8).Body},
		{"payment asset issuer", lt.PaymentOp(lt.Muxed(2), lt.CreditAsset("USD", 8)).Body},
		{"path payment strict receive path", xdr.OperationBody{
			Type: xdr.OperationTypePathPaymentStrictReceive,
			PathPaymentStrictReceiveOp: &xdr.PathPaymentStrictReceiveOp{
				SendAsset:   lt.Native(),
				Destination: lt.Muxed(2),
				DestAsset:   lt.Native(),
				Path:        []xdr.Asset{lt.CreditAsset("EUR", 8)},
			},
		}},
		{"path payment strict send destination", xdr.OperationBody{
			Type: xdr.OperationTypePathPaymentStrictSend,
			PathPaymentStrictSendOp: &xdr.PathPaymentStrictSendOp{
				SendAsset:   lt.Native(),
				Destination: muxed8,
				DestAsset:   lt.Native(),
			},
		}},
		{"manage sell offer", xdr.OperationBody{
			Type:              xdr.OperationTypeManageSellOffer,
			ManageSellOfferOp: &xdr.ManageSellOfferOp{Selling: lt.Native(), Buying: lt.CreditAsset("USD", 8)},
		}},
		{"manage buy offer", xdr.OperationBody{
			Type:             xdr.OperationTypeManageBuyOffer,
			ManageBuyOfferOp: &xdr.ManageBuyOfferOp{Selling: lt.CreditAsset("USD", 8), Buying: lt.Native()},
		}},
		{"passive offer", xdr.OperationBody{
			Type:                     xdr.OperationTypeCreatePassiveSellOffer,
			CreatePassiveSellOfferOp: &xdr.CreatePassiveSellOfferOp{Selling: lt.Native(), Buying: lt.CreditAsset("USD", 8)},
		}},
		{"set options inflation dest", xdr.OperationBody{
			Type:         xdr.OperationTypeSetOptions,
			SetOptionsOp: &xdr.SetOptionsOp{InflationDest: &issuer},
		}},
		{"set options signer", xdr.OperationBody{
			Type: xdr.OperationTypeSetOptions,
			SetOptionsOp: &xdr.SetOptionsOp{Signer: &xdr.Signer{
				Key:    xdr.SignerKey{Type: xdr.SignerKeyTypeSignerKeyTypeEd25519, Ed25519: &signerKey},
				Weight: 1,
			}},
		}},
		{"change trust pool asset", xdr.OperationBody{
			Type: xdr.OperationTypeChangeTrust,
			ChangeTrustOp: &xdr.ChangeTrustOp{Line: xdr.ChangeTrustAsset{
				Type:          xdr.AssetTypeAssetTypePoolShare,
				LiquidityPool: &pool,
			}},
		}},
		{"allow trust trustor", xdr.OperationBody{
			Type:         xdr.OperationTypeAllowTrust,
			AllowTrustOp: &xdr.AllowTrustOp{Trustor: issuer},
		}},
		{"account merge", xdr.OperationBody{
			Type:        xdr.OperationTypeAccountMerge,
			Destination: &muxed8,
		}},
		{"claimable balance claimant", xdr.OperationBody{
			Type: xdr.OperationTypeCreateClaimableBalance,
			CreateClaimableBalanceOp: &xdr.CreateClaimableBalanceOp{
				Asset: lt.Native(),
				Claimants: []xdr.Claimant{{
					Type: xdr.ClaimantTypeClaimantTypeV0,
					V0: &xdr.ClaimantV0{
						Destination: issuer,
						Predicate:   xdr.ClaimPredicate{Type: xdr.ClaimPredicateTypeClaimPredicateUnconditional},
					},
				}},
			},
		}},
		{"begin sponsoring", xdr.OperationBody{
			Type:                            xdr.OperationTypeBeginSponsoringFutureReserves,
			BeginSponsoringFutureReservesOp: &xdr.BeginSponsoringFutureReservesOp{SponsoredId: issuer},
		}},
		{"revoke sponsorship account key", xdr.OperationBody{
			Type: xdr.OperationTypeRevokeSponsorship,
			RevokeSponsorshipOp: &xdr.RevokeSponsorshipOp{
				Type: xdr.RevokeSponsorshipTypeRevokeSponsorshipLedgerEntry,
				LedgerKey: &xdr.LedgerKey{
					Type:    xdr.LedgerEntryTypeAccount,
					Account: &xdr.LedgerKeyAccount{AccountId: issuer},
				},
			},
		}},
		{"revoke sponsorship signer", xdr.OperationBody{
			Type: xdr.OperationTypeRevokeSponsorship,
			RevokeSponsorshipOp: &xdr.RevokeSponsorshipOp{
				Type: xdr.RevokeSponsorshipTypeRevokeSponsorshipSigner,
				Signer: &xdr.RevokeSponsorshipOpSigner{
					AccountId: lt.AccountID(1),
					SignerKey: xdr.SignerKey{Type: xdr.SignerKeyTypeSignerKeyTypeEd25519, Ed25519: &signerKey},
				},
			},
		}},
		{"clawback from", xdr.OperationBody{
			Type:       xdr.OperationTypeClawback,
			ClawbackOp: &xdr.ClawbackOp{Asset: lt.CreditAsset("USD", 1), From: muxed8, Amount: 1},
		}},
		{"set trustline flags", xdr.OperationBody{
			Type:                xdr.OperationTypeSetTrustLineFlags,
			SetTrustLineFlagsOp: &xdr.SetTrustLineFlagsOp{Trustor: issuer, Asset: lt.Native()},
		}},
		{"invoke contract argument", lt.InvokeContractOp(lt.ScContract(1), "transfer",
			lt.ScAddressVal(lt.ScAccount(2)), lt.ScVecVal(lt.ScAddressVal(lt.ScAccount(8)))).Body},
	}

	target := MustParseAddress(lt.Address(8))
	unrelated := MustParseAddress(lt.Address(9))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := lt.Tx(lt.Muxed(1), xdr.Operation{Body: tt.body})
			if !Matches(env, target) {
				t.Errorf("Matches() = false, want true")
			}
			if Matches(env, unrelated) {
				t.Errorf("Matches() = true for unrelated address, want false")
			}
		})
	}
}

// Every operation type the xdr package defines must have a case in
// operationMatches.
func TestOperationMatchesCoversAllOperationTypes(t *testing.T) {
	var enum xdr.OperationType
	for v := int32(0); v < 128; v++ {
		if !enum.ValidEnum(v) {
			continue
		}
		opType := xdr.OperationType(v)
		_, known := operationMatches(xdr.OperationBody{Type: opType}, func(string) bool { return true })
		if !known {
			t.Errorf("operation type %s has no matcher case", opType)
		}
	}

	_, known := operationMatches(xdr.OperationBody{Type: xdr.OperationType(1000)}, func(string) bool { return true })
	if known {
		t.Error("unknown operation type reported as known")
	}
}

// Matching inspects the envelope only: an address that appears solely in the
// transaction's result metadata does not match, whatever the ledger version.
func TestMatchesIgnoresResultMetadata(t *testing.T) {
	build := map[string]func(uint32, ...xdr.TransactionEnvelope) xdr.LedgerCloseMeta{
		"v0": lt.LedgerV0,
		"v1": lt.LedgerV1,
		"v2": lt.LedgerV2,
	}
	target := MustParseAddress(lt.Address(7))

	for name, ledger := range build {
		t.Run(name, func(t *testing.T) {
			lcm := ledger(40,
				lt.Tx(lt.Muxed(1), lt.BumpSequenceOp()),
				lt.Tx(lt.Muxed(2), lt.PaymentOp(lt.Muxed(7), lt.Native())),
			)
			lt.TouchAccount(lcm, 0, lt.AccountID(7))

			envs := lcm.TransactionEnvelopes()
			if len(envs) != 2 {
				t.Fatalf("got %d envelopes, want 2", len(envs))
			}
			if Matches(envs[0], target) {
				t.Error("address present only in result metadata matched")
			}
			if !Matches(envs[1], target) {
				t.Error("payment destination did not match")
			}
		})
	}
}

func TestMatchesZeroTarget(t *testing.T) {
	env := lt.Tx(lt.Muxed(1), lt.BumpSequenceOp())
	if Matches(env, Address{}) {
		t.Error("zero address matched")
	}
}
