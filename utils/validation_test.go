package utils

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnitsIsExact(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"0.015", 18, "15000000000000000", false},
		{"1", 18, "1000000000000000000", false},
		{"0.000000000000000001", 18, "1", false},
		{"0.0000000000000000001", 18, "", true},
		{"123.456", 6, "123456000", false},
		{"1.0000001", 6, "", true},
		{"-1", 18, "", true},
		{"0", 18, "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := ToBaseUnits(decimal.RequireFromString(tt.amount), tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	assert.Equal(t, "0.015", FromBaseUnits(big.NewInt(15e15), 18).String())
	assert.Equal(t, "0.000000000000000123", FromBaseUnits(big.NewInt(123), 18).String())
	assert.True(t, FromBaseUnits(nil, 18).IsZero())

	value, _ := new(big.Int).SetString("14999999999999999", 10)
	assert.True(t, FromBaseUnits(value, 18).LessThan(decimal.RequireFromString("0.015")))
}

func TestParseAmountWithDecimals(t *testing.T) {
	v, err := ParseAmountWithDecimals("2.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "2500000000000000000", v.String())

	_, err = ParseAmountWithDecimals("", 18)
	assert.Error(t, err)
	_, err = ParseAmountWithDecimals("abc", 18)
	assert.Error(t, err)
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"checksummed", "0x384Aa214be0B279cbf211e9b2C992d8633F77848", false},
		{"lowercase", "0x384aa214be0b279cbf211e9b2c992d8633f77848", false},
		{"empty", "", true},
		{"no prefix", "384Aa214be0B279cbf211e9b2C992d8633F77848", true},
		{"short", "0x384Aa214", true},
		{"not hex", "0xZZ4Aa214be0B279cbf211e9b2C992d8633F77848", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.address)
			assert.Equal(t, tt.wantErr, err != nil, err)
		})
	}
}

func TestValidateTransactionHash(t *testing.T) {
	valid := "0x" + strings.Repeat("ab", 32)
	assert.NoError(t, ValidateTransactionHash(valid))
	assert.Error(t, ValidateTransactionHash(""))
	assert.Error(t, ValidateTransactionHash(strings.Repeat("ab", 33)))
	assert.Error(t, ValidateTransactionHash(valid[:64]))
	assert.Error(t, ValidateTransactionHash("0x"+strings.Repeat("zz", 32)))
}

func TestSameAddressIgnoresCase(t *testing.T) {
	a := common.HexToAddress("0x384Aa214be0B279cbf211e9b2C992d8633F77848")
	b := common.HexToAddress("0x384aa214be0b279cbf211e9b2c992d8633f77848")
	assert.True(t, SameAddress(a, b))
	assert.False(t, SameAddress(a, common.Address{}))
}

func TestEmailAndCodeShapes(t *testing.T) {
	assert.True(t, IsBasicEmail("ada@example.com"))
	assert.False(t, IsBasicEmail("ada@example"))
	assert.False(t, IsBasicEmail("ada"))

	assert.True(t, IsUniqueCode("AB12CD34"))
	assert.False(t, IsUniqueCode("ab12cd34"))
	assert.False(t, IsUniqueCode("AB12CD3"))
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := PrivateKeyFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", AddressFromPrivateKey(key).Hex())

	_, err = PrivateKeyFromHex("  ")
	assert.Error(t, err)
	_, err = PrivateKeyFromHex("0x1234")
	assert.Error(t, err)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		NormalizeAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
	assert.Empty(t, NormalizeAddress("nope"))

	_, err := ParseAddress("nope")
	assert.Error(t, err)
}
