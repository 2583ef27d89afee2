package crypto

import (
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	raw[0] = 0xAB
	raw[19] = 0xCD
	addr := NewAddress(PoolPrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Prefix() != PoolPrefix {
		t.Fatalf("prefix lost: %s", decoded.Prefix())
	}
	if decoded.String() != addr.String() {
		t.Fatalf("round trip mismatch: %s != %s", decoded.String(), addr.String())
	}
}

func TestDecodeAddressRejectsBadInput(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatal("malformed string must be rejected")
	}

	// Well-formed bech32 with a payload that is not 20 bytes must error, not
	// panic.
	short := make([]byte, 8)
	conv, err := bech32.ConvertBits(short, 8, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := bech32.Encode(string(PoolPrefix), conv)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeAddress(encoded); err == nil {
		t.Fatal("short payload must be rejected")
	}
}

func TestKeyToAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := key.PubKey().Address()
	if len(addr.Bytes()) != 20 {
		t.Fatalf("address payload must be 20 bytes, got %d", len(addr.Bytes()))
	}
	if addr.Prefix() != PoolPrefix {
		t.Fatalf("unexpected prefix %s", addr.Prefix())
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if restored.PubKey().Address().String() != addr.String() {
		t.Fatal("key round trip changed the derived address")
	}
}
