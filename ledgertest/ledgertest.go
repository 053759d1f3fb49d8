// Package ledgertest builds synthetic ledgers and transactions for tests.
package ledgertest

import (
	"bytes"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// Passphrase is the network all fixtures are hashed for.
const Passphrase = network.TestNetworkPassphrase

// CloseTime is the close time of every fixture ledger.
var CloseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// Key returns a deterministic ed25519 public key.
func Key(seed byte) xdr.Uint256 {
	var key xdr.Uint256
	for i := range key {
		key[i] = seed
	}
	return key
}

func AccountID(seed byte) xdr.AccountId {
	key := Key(seed)
	return xdr.AccountId{Type: xdr.PublicKeyTypePublicKeyTypeEd25519, Ed25519: &key}
}

// Address returns the G strkey of AccountID(seed).
func Address(seed byte) string {
	key := Key(seed)
	return strkey.MustEncode(strkey.VersionByteAccountID, key[:])
}

func Muxed(seed byte) xdr.MuxedAccount {
	key := Key(seed)
	return xdr.MuxedAccount{Type: xdr.CryptoKeyTypeKeyTypeEd25519, Ed25519: &key}
}

// MuxedWithID returns the multiplexed form of Muxed(seed).
func MuxedWithID(seed byte, id uint64) xdr.MuxedAccount {
	return xdr.MuxedAccount{
		Type: xdr.CryptoKeyTypeKeyTypeMuxedEd25519,
		Med25519: &xdr.MuxedAccountMed25519{
			Id:      xdr.Uint64(id),
			Ed25519: Key(seed),
		},
	}
}

func ContractID(seed byte) xdr.ContractId {
	var id xdr.ContractId
	for i := range id {
		id[i] = seed
	}
	return id
}

// ContractAddress returns the C strkey of ContractID(seed).
func ContractAddress(seed byte) string {
	id := ContractID(seed)
	return strkey.MustEncode(strkey.VersionByteContract, id[:])
}

func ScContract(seed byte) xdr.ScAddress {
	id := ContractID(seed)
	return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &id}
}

func ScAccount(seed byte) xdr.ScAddress {
	id := AccountID(seed)
	return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeAccount, AccountId: &id}
}

func ScAddressVal(addr xdr.ScAddress) xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &addr}
}

func ScVecVal(vals ...xdr.ScVal) xdr.ScVal {
	vec := xdr.ScVec(vals)
	ptr := &vec
	return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &ptr}
}

// CreditAsset returns a 4-letter asset issued by AccountID(issuer).
func CreditAsset(code string, issuer byte) xdr.Asset {
	var c xdr.AssetCode4
	copy(c[:], code)
	return xdr.Asset{
		Type:      xdr.AssetTypeAssetTypeCreditAlphanum4,
		AlphaNum4: &xdr.AlphaNum4{AssetCode: c, Issuer: AccountID(issuer)},
	}
}

func Native() xdr.Asset {
	return xdr.Asset{Type: xdr.AssetTypeAssetTypeNative}
}

func PaymentOp(dest xdr.MuxedAccount, asset xdr.Asset) xdr.Operation {
	return xdr.Operation{Body: xdr.OperationBody{
		Type:      xdr.OperationTypePayment,
		PaymentOp: &xdr.PaymentOp{Destination: dest, Asset: asset, Amount: 10_000_000},
	}}
}

func CreateAccountOp(dest byte) xdr.Operation {
	return xdr.Operation{Body: xdr.OperationBody{
		Type:            xdr.OperationTypeCreateAccount,
		CreateAccountOp: &xdr.CreateAccountOp{Destination: AccountID(dest), StartingBalance: 20_000_000},
	}}
}

func BumpSequenceOp() xdr.Operation {
	return xdr.Operation{Body: xdr.OperationBody{
		Type:           xdr.OperationTypeBumpSequence,
		BumpSequenceOp: &xdr.BumpSequenceOp{BumpTo: 100},
	}}
}

// InvokeContractOp calls fn on contract with args.
func InvokeContractOp(contract xdr.ScAddress, fn string, args ...xdr.ScVal) xdr.Operation {
	return xdr.Operation{Body: xdr.OperationBody{
		Type: xdr.OperationTypeInvokeHostFunction,
		InvokeHostFunctionOp: &xdr.InvokeHostFunctionOp{
			HostFunction: xdr.HostFunction{
				Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
				InvokeContract: &xdr.InvokeContractArgs{
					ContractAddress: contract,
					FunctionName:    xdr.ScSymbol(fn),
					Args:            args,
				},
			},
		},
	}}
}

// WithSource sets the operation source override.
func WithSource(op xdr.Operation, source xdr.MuxedAccount) xdr.Operation {
	op.SourceAccount = &source
	return op
}

func tx(source xdr.MuxedAccount, ops []xdr.Operation) xdr.Transaction {
	return xdr.Transaction{
		SourceAccount: source,
		Fee:           100 * xdr.Uint32(len(ops)),
		SeqNum:        1,
		Cond:          xdr.Preconditions{Type: xdr.PreconditionTypePrecondNone},
		Memo:          xdr.Memo{Type: xdr.MemoTypeMemoNone},
		Operations:    ops,
	}
}

// Tx returns a V1 envelope.
func Tx(source xdr.MuxedAccount, ops ...xdr.Operation) xdr.TransactionEnvelope {
	return xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTx,
		V1:   &xdr.TransactionV1Envelope{Tx: tx(source, ops)},
	}
}

// TxV0 returns a legacy V0 envelope.
func TxV0(source byte, ops ...xdr.Operation) xdr.TransactionEnvelope {
	return xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTxV0,
		V0: &xdr.TransactionV0Envelope{Tx: xdr.TransactionV0{
			SourceAccountEd25519: Key(source),
			Fee:                  100,
			SeqNum:               1,
			Memo:                 xdr.Memo{Type: xdr.MemoTypeMemoNone},
			Operations:           ops,
		}},
	}
}

// FeeBump wraps a V1 envelope.
func FeeBump(feeSource xdr.MuxedAccount, inner xdr.TransactionEnvelope) xdr.TransactionEnvelope {
	return xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTxFeeBump,
		FeeBump: &xdr.FeeBumpTransactionEnvelope{Tx: xdr.FeeBumpTransaction{
			FeeSource: feeSource,
			Fee:       1000,
			InnerTx: xdr.FeeBumpTransactionInnerTx{
				Type: xdr.EnvelopeTypeEnvelopeTypeTx,
				V1:   inner.V1,
			},
		}},
	}
}

func header(seq uint32) xdr.LedgerHeaderHistoryEntry {
	var hash xdr.Hash
	hash[0] = byte(seq)
	hash[1] = byte(seq >> 8)
	return xdr.LedgerHeaderHistoryEntry{
		Hash: hash,
		Header: xdr.LedgerHeader{
			LedgerVersion: 21,
			LedgerSeq:     xdr.Uint32(seq),
			ScpValue: xdr.StellarValue{
				CloseTime: xdr.TimePoint(CloseTime.Unix() + int64(seq)*5),
			},
		},
	}
}

// ResultMeta returns the processing entry for env: a successful result and
// an empty V1 transaction meta.
func ResultMeta(env xdr.TransactionEnvelope) (xdr.TransactionResultMeta, error) {
	hash, err := network.HashTransactionInEnvelope(env, Passphrase)
	if err != nil {
		return xdr.TransactionResultMeta{}, fmt.Errorf("hash transaction: %w", err)
	}
	results := []xdr.OperationResult{}
	return xdr.TransactionResultMeta{
		Result: xdr.TransactionResultPair{
			TransactionHash: hash,
			Result: xdr.TransactionResult{
				FeeCharged: 100,
				Result: xdr.TransactionResultResult{
					Code:    xdr.TransactionResultCodeTxSuccess,
					Results: &results,
				},
			},
		},
		TxApplyProcessing: xdr.TransactionMeta{V: 1, V1: &xdr.TransactionMetaV1{}},
	}, nil
}

func resultMetas(envs []xdr.TransactionEnvelope) []xdr.TransactionResultMeta {
	metas := make([]xdr.TransactionResultMeta, 0, len(envs))
	for _, env := range envs {
		meta, err := ResultMeta(env)
		if err != nil {
			panic(err)
		}
		metas = append(metas, meta)
	}
	return metas
}

// LedgerV0 returns a V0 ledger holding envs in order.
func LedgerV0(seq uint32, envs ...xdr.TransactionEnvelope) xdr.LedgerCloseMeta {
	if envs == nil {
		envs = []xdr.TransactionEnvelope{}
	}
	return xdr.LedgerCloseMeta{
		V: 0,
		V0: &xdr.LedgerCloseMetaV0{
			LedgerHeader: header(seq),
			TxSet:        xdr.TransactionSet{Txs: envs},
			TxProcessing: resultMetas(envs),
		},
	}
}

// LedgerV1 returns a V1 ledger with a generalized transaction set.
func LedgerV1(seq uint32, envs ...xdr.TransactionEnvelope) xdr.LedgerCloseMeta {
	if envs == nil {
		envs = []xdr.TransactionEnvelope{}
	}
	components := []xdr.TxSetComponent{{
		Type: xdr.TxSetComponentTypeTxsetCompTxsMaybeDiscountedFee,
		TxsMaybeDiscountedFee: &xdr.TxSetComponentTxsMaybeDiscountedFee{
			Txs: envs,
		},
	}}
	return xdr.LedgerCloseMeta{
		V: 1,
		V1: &xdr.LedgerCloseMetaV1{
			LedgerHeader: header(seq),
			TxSet: xdr.GeneralizedTransactionSet{
				V: 1,
				V1TxSet: &xdr.TransactionSetV1{
					Phases: []xdr.TransactionPhase{{V: 0, V0Components: &components}},
				},
			},
			TxProcessing: resultMetas(envs),
		},
	}
}

// ResultMetaV1 is ResultMeta in the processing layout V2 ledgers carry.
func ResultMetaV1(env xdr.TransactionEnvelope) (xdr.TransactionResultMetaV1, error) {
	meta, err := ResultMeta(env)
	if err != nil {
		return xdr.TransactionResultMetaV1{}, err
	}
	return xdr.TransactionResultMetaV1{
		Result:            meta.Result,
		FeeProcessing:     meta.FeeProcessing,
		TxApplyProcessing: meta.TxApplyProcessing,
	}, nil
}

// LedgerV2 returns a V2 ledger, the layout of protocol 23 and later.
func LedgerV2(seq uint32, envs ...xdr.TransactionEnvelope) xdr.LedgerCloseMeta {
	if envs == nil {
		envs = []xdr.TransactionEnvelope{}
	}
	components := []xdr.TxSetComponent{{
		Type: xdr.TxSetComponentTypeTxsetCompTxsMaybeDiscountedFee,
		TxsMaybeDiscountedFee: &xdr.TxSetComponentTxsMaybeDiscountedFee{
			Txs: envs,
		},
	}}
	processing := make([]xdr.TransactionResultMetaV1, 0, len(envs))
	for _, env := range envs {
		meta, err := ResultMetaV1(env)
		if err != nil {
			panic(err)
		}
		processing = append(processing, meta)
	}

	hdr := header(seq)
	hdr.Header.LedgerVersion = 23
	return xdr.LedgerCloseMeta{
		V: 2,
		V2: &xdr.LedgerCloseMetaV2{
			LedgerHeader: hdr,
			TxSet: xdr.GeneralizedTransactionSet{
				V: 1,
				V1TxSet: &xdr.TransactionSetV1{
					Phases: []xdr.TransactionPhase{{V: 0, V0Components: &components}},
				},
			},
			TxProcessing: processing,
		},
	}
}

// TouchAccount records id in the apply changes of the i-th transaction's
// meta, leaving its envelope untouched.
func TouchAccount(lcm xdr.LedgerCloseMeta, i int, id xdr.AccountId) {
	change := xdr.LedgerEntryChange{
		Type: xdr.LedgerEntryChangeTypeLedgerEntryState,
		State: &xdr.LedgerEntry{Data: xdr.LedgerEntryData{
			Type:    xdr.LedgerEntryTypeAccount,
			Account: &xdr.AccountEntry{AccountId: id},
		}},
	}
	var meta *xdr.TransactionMeta
	switch lcm.V {
	case 0:
		meta = &lcm.V0.TxProcessing[i].TxApplyProcessing
	case 1:
		meta = &lcm.V1.TxProcessing[i].TxApplyProcessing
	case 2:
		meta = &lcm.V2.TxProcessing[i].TxApplyProcessing
	default:
		panic(fmt.Sprintf("unsupported ledger version %d", lcm.V))
	}
	meta.V1.TxChanges = append(meta.V1.TxChanges, change)
}

// Batch groups consecutive ledgers into one archive object.
func Batch(ledgers ...xdr.LedgerCloseMeta) xdr.LedgerCloseMetaBatch {
	batch := xdr.LedgerCloseMetaBatch{LedgerCloseMetas: ledgers}
	if len(ledgers) > 0 {
		batch.StartSequence = xdr.Uint32(ledgers[0].LedgerSequence())
		batch.EndSequence = xdr.Uint32(ledgers[len(ledgers)-1].LedgerSequence())
	}
	return batch
}

// CompressedBatch encodes ledgers exactly as the archive stores them.
func CompressedBatch(ledgers ...xdr.LedgerCloseMeta) ([]byte, error) {
	raw, err := Batch(ledgers...).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := encoder.Write(raw); err != nil {
		encoder.Close()
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
