package filters

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/ledgertest"
)

const knownAccount = "GB67AEDGTIDPDMJEX7KYVAUJAS7EV6ITRGZM3GBW2RLT5DBPDYHVSVCR"

func TestKnownAccountEncoding(t *testing.T) {
	raw, err := hex.DecodeString("7df010669a06f1b124bfd58a828904be4af91389b2cd9836d4573e8c2f1e0f59")
	if err != nil {
		t.Fatal(err)
	}
	var key xdr.Uint256
	copy(key[:], raw)

	if got := ed25519Address(key); got != knownAccount {
		t.Errorf("ed25519Address() = %s, want %s", got, knownAccount)
	}
}

func TestParseAddress(t *testing.T) {
	muxed := xdr.MuxedAccount{
		Type: xdr.CryptoKeyTypeKeyTypeMuxedEd25519,
		Med25519: &xdr.MuxedAccountMed25519{
			Id:      12345,
			Ed25519: *xdr.MustAddress(knownAccount).Ed25519,
		},
	}
	muxedAddr, err := muxed.GetAddress()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		input    string
		want     string
		wantKind AddressKind
		wantErr  bool
	}{
		{"account", knownAccount, knownAccount, AccountAddress, false},
		{"account with whitespace", "  " + knownAccount + "\n", knownAccount, AccountAddress, false},
		{"muxed normalizes to base", muxedAddr, knownAccount, AccountAddress, false},
		{"contract", ledgertest.ContractAddress(7), ledgertest.ContractAddress(7), ContractAddress, false},
		{"empty", "", "", AccountAddress, true},
		{"bad prefix", "XB67AEDGTIDPDMJEX7KYVAUJAS7EV6ITRGZM3GBW2RLT5DBPDYHVSVCR", "", AccountAddress, true},
		{"bad checksum", "GB67AEDGTIDPDMJEX7KYVAUJAS7EV6ITRGZM3GBW2RLT5DBPDYHVSVCA", "", AccountAddress, true},
		{"too short", "GB67AEDG", "", AccountAddress, true},
		{"contract prefix with account payload", "C" + knownAccount[1:], "", AccountAddress, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Fatalf("ParseAddress(%q) error = %v, want ErrInvalidAddress", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAddress(%q) = %s, want %s", tt.input, got, tt.want)
			}
			if got.Kind() != tt.wantKind {
				t.Errorf("ParseAddress(%q).Kind() = %v, want %v", tt.input, got.Kind(), tt.wantKind)
			}
		})
	}
}

func TestMuxedAndPlainNormalizeIdentically(t *testing.T) {
	plain := MustParseAddress(ledgertest.Address(3))
	mx := ledgertest.MuxedWithID(3, 99)
	muxedAddr, err := mx.GetAddress()
	if err != nil {
		t.Fatal(err)
	}
	muxed := MustParseAddress(muxedAddr)

	if plain.String() != muxed.String() {
		t.Errorf("normalized forms differ: %s vs %s", plain, muxed)
	}
	if muxed.Raw() != muxedAddr {
		t.Errorf("Raw() = %s, want original input %s", muxed.Raw(), muxedAddr)
	}
}

func TestScAddress(t *testing.T) {
	muxedKey := ledgertest.Key(4)
	tests := []struct {
		name string
		addr xdr.ScAddress
		want string
	}{
		{"account", ledgertest.ScAccount(4), ledgertest.Address(4)},
		{"contract", ledgertest.ScContract(5), ledgertest.ContractAddress(5)},
		{"muxed", xdr.ScAddress{
			Type:         xdr.ScAddressTypeScAddressTypeMuxedAccount,
			MuxedAccount: &xdr.MuxedEd25519Account{Id: 1, Ed25519: muxedKey},
		}, ledgertest.Address(4)},
		{"empty", xdr.ScAddress{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scAddress(tt.addr); got != tt.want {
				t.Errorf("scAddress() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := strkey.Decode(strkey.VersionByteContract, ledgertest.ContractAddress(5)); err != nil {
		t.Errorf("fixture contract address is not valid: %v", err)
	}
}
